package repository

import (
	"time"

	"github.com/okian/projector/pkg/logger"
)

// Option applies a configuration option to the SQLStore.
type Option func(*SQLStore)

// WithQueryTimeout bounds every statement; batch writes scale it by batch size.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *SQLStore) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithPool sets connection pool limits. Zero values keep the defaults.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) Option {
	return func(s *SQLStore) {
		if maxOpen > 0 {
			s.maxOpen = maxOpen
		}
		if maxIdle > 0 {
			s.maxIdle = maxIdle
		}
		if lifetime > 0 {
			s.connMaxLifetime = lifetime
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLStore) {
		if l != nil {
			s.logger = l
		}
	}
}
