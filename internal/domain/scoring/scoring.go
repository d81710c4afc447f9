// Package scoring converts projected stat lines into fantasy points under a
// league's scoring configuration.
package scoring

import (
	"sort"

	"github.com/okian/projector/internal/domain/model"
)

// Default point values per category.
const (
	defaultGoals             = 3.0
	defaultAssists           = 2.0
	defaultShotsOnGoal       = 0.5
	defaultBlocks            = 0.5
	defaultPowerPlayPoints   = 1.0
	defaultShortHandedPoints = 2.0
	defaultHits              = 0.5
	defaultPenaltyMinutes    = 0.25
	defaultWins              = 4.0
	defaultSaves             = 0.2
	defaultGoalsAgainst      = -1.0
	defaultShutouts          = 3.0
)

// Config is a typed scoring configuration. Every tracked category has a
// weight; missing categories keep their documented default.
type Config struct {
	weights model.StatLine
}

// Option applies a configuration option to a Config.
type Option func(*Config)

// WithWeightsFromConfig merges a {stat_name: points} map onto the defaults.
// Unknown names are ignored; use Merge to learn which ones were dropped.
func WithWeightsFromConfig(weights map[string]float64) Option {
	return func(c *Config) {
		for name, v := range weights {
			if s, ok := model.ParseStat(name); ok {
				c.weights[s] = v
			}
		}
	}
}

// Default returns the documented default configuration.
func Default() Config {
	var w model.StatLine
	w[model.Goals] = defaultGoals
	w[model.Assists] = defaultAssists
	w[model.ShotsOnGoal] = defaultShotsOnGoal
	w[model.Blocks] = defaultBlocks
	w[model.PowerPlayPoints] = defaultPowerPlayPoints
	w[model.ShortHandedPoints] = defaultShortHandedPoints
	w[model.Hits] = defaultHits
	w[model.PenaltyMinutes] = defaultPenaltyMinutes
	w[model.Wins] = defaultWins
	w[model.Saves] = defaultSaves
	w[model.GoalsAgainst] = defaultGoalsAgainst
	w[model.Shutouts] = defaultShutouts
	return Config{weights: w}
}

// New builds a Config from the defaults and the given options.
func New(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Merge overlays a league's {stat_name: points} map onto the defaults and
// returns the sorted list of names it did not recognize.
func Merge(weights map[string]float64) (Config, []string) {
	var unknown []string
	for name := range weights {
		if _, ok := model.ParseStat(name); !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return New(WithWeightsFromConfig(weights)), unknown
}

// Weight returns the point value of s.
func (c Config) Weight(s model.Stat) float64 { return c.weights[s] }

// Weights returns all point values as a stat line.
func (c Config) Weights() model.StatLine { return c.weights }

// Points returns the fantasy points of a projected line.
func (c Config) Points(line model.StatLine) float64 { return line.Dot(c.weights) }

// Map returns the configuration as {stat_name: points}.
func (c Config) Map() map[string]float64 { return c.weights.Map() }
