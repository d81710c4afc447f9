package backtest

import (
	"github.com/okian/projector/internal/domain/scoring"
	"github.com/okian/projector/internal/validation"
	"github.com/okian/projector/internal/validation/measure"
	"github.com/okian/projector/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithScoring sets the config realized points are scored with. It should
// match the one the projections were composed with.
func WithScoring(c scoring.Config) Option {
	return func(e *Engine) {
		e.scoring = c
	}
}

// WithBootstrap overrides resampling. Zero fields keep their defaults.
func WithBootstrap(cfg measure.BootstrapConfig) Option {
	return func(e *Engine) {
		if cfg.Samples > 0 {
			e.bootstrap.Samples = cfg.Samples
		}
		if cfg.MinSuccessful > 0 {
			e.bootstrap.MinSuccessful = cfg.MinSuccessful
		}
		if cfg.Seed != 0 {
			e.bootstrap.Seed = cfg.Seed
		}
	}
}

// WithThresholds overrides the leakage cut-offs.
func WithThresholds(t validation.LeakageThresholds) Option {
	return func(e *Engine) {
		if t.Leakage > 0 && t.Caution > 0 {
			e.thresholds = t
		}
	}
}

// WithConcurrency caps the number of dates replayed at once.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
