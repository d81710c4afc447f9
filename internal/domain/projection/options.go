package projection

import (
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/scoring"
)

// Option applies a configuration option to the Composer.
type Option func(*Composer)

// WithScoring sets the league scoring configuration.
func WithScoring(cfg scoring.Config) Option {
	return func(c *Composer) {
		c.scoring = cfg
	}
}

// WithStandardizedVOPA divides the offensive value by the position's
// standard deviation before adding defense.
func WithStandardizedVOPA(on bool) Option {
	return func(c *Composer) {
		c.standardize = on
	}
}

// WithDefaultTOI overrides the fallback ice time for one position.
func WithDefaultTOI(pos model.Position, minutes float64) Option {
	return func(c *Composer) {
		if minutes > 0 {
			c.defaultTOI[pos] = minutes
		}
	}
}
