// Package talent derives bounded finishing and save-quality multipliers from
// cumulative shot data.
package talent

import (
	"math"

	"github.com/okian/projector/internal/domain/model"
)

// Multiplier bounds and stabilization constants.
const (
	MinMultiplier = 0.7
	MaxMultiplier = 1.5
	// stabilizationShots is the sample at which the raw ratio is fully trusted.
	stabilizationShots = 50.0
	// gsaxPerStep converts regressed GSAx into a factor: +20 GSAx is +100%.
	gsaxPerStep = 20.0
	neutral     = 1.0
)

// Ratio computes the stabilized, clamped goals/xG multiplier.
func Ratio(goals, xg float64, shots int) float64 {
	raw := neutral
	if xg > 0 {
		raw = goals / xg
	}
	s := math.Min(float64(max(shots, 0))/stabilizationShots, 1.0)
	return clamp(raw*s + neutral*(1-s))
}

// Finishing returns the skater finishing multiplier. A nil aggregate yields
// a neutral multiplier and ErrInsufficientData so the caller can record it.
func Finishing(agg *model.ShotAggregate) (float64, error) {
	if agg == nil {
		return neutral, model.ErrInsufficientData
	}
	return Ratio(float64(agg.CumulativeGoals), agg.CumulativeXG, agg.ShotCount), nil
}

// GoalieFactor maps regressed GSAx onto a bounded factor used only by the
// shutout sub-model.
func GoalieFactor(gsax float64) float64 {
	if math.IsNaN(gsax) {
		return neutral
	}
	return clamp(neutral + gsax/gsaxPerStep)
}

// SavePriorShots is the shot count at which a goaltender's own save
// percentage and the league average are weighted equally.
const SavePriorShots = 500.0

// SavePct blends a goaltender's observed save percentage toward the league
// average with a fixed 500-shot prior. Without shots it is the league average.
func SavePct(saves, shotsFaced int, leagueSv float64) float64 {
	return (float64(max(saves, 0)) + SavePriorShots*leagueSv) / (float64(max(shotsFaced, 0)) + SavePriorShots)
}

func clamp(v float64) float64 {
	return math.Max(MinMultiplier, math.Min(MaxMultiplier, v))
}
