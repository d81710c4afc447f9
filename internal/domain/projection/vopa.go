package projection

import (
	"github.com/okian/projector/internal/domain/model"
)

// VOPA returns value over replacement for a projected total over toiMinutes
// of ice time. The per-60 rate above the position's replacement level is
// optionally standardized by the position's standard deviation, the
// defensive contribution is added, and the sum is scaled back to TOI hours.
func VOPA(total, toiMinutes float64, b model.LeagueBaseline, defensive float64, standardize bool) float64 {
	if toiMinutes <= 0 {
		return 0
	}
	hours := toiMinutes / 60
	offense := total/hours - b.ReplacementFPtsPer60
	if standardize && b.StdDevFPtsPer60 > 0 {
		offense /= b.StdDevFPtsPer60
	}
	return (offense + defensive) * hours
}
