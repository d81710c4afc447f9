// Package repository holds the rate profile store: point-in-time aggregate
// reads for the engine, projection upserts, and the outcome and shot logs
// the validators consume.
package repository

import (
	"context"
	"time"

	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/snapshot"
)

// SnapshotSource is the point-in-time read side. Every aggregate read
// returns, per key, the newest row whose as-of date is on or before asOf.
type SnapshotSource interface {
	snapshot.Source
}

// ProjectionWriter persists projections. UpsertBatch is all-or-nothing and
// idempotent on (player_id, game_id, projection_date).
type ProjectionWriter interface {
	UpsertBatch(ctx context.Context, batch []model.Projection) error
}

// ProjectionReader reads persisted projections dated within [from, to].
type ProjectionReader interface {
	Projections(ctx context.Context, from, to time.Time) ([]model.Projection, error)
}

// OutcomeSource reads realized per-game results dated within [from, to].
type OutcomeSource interface {
	Outcomes(ctx context.Context, from, to time.Time) ([]model.Outcome, error)
}

// ShotSource reads shot events dated within [from, to].
type ShotSource interface {
	Shots(ctx context.Context, from, to time.Time) ([]model.Shot, error)
}

// Importer loads a Dataset, replacing rows with the same key.
type Importer interface {
	Import(ctx context.Context, d Dataset) error
}

// Store is everything the projector and the validators need.
type Store interface {
	SnapshotSource
	ProjectionWriter
	ProjectionReader
	OutcomeSource
	ShotSource
	Importer
	Close() error
}

// Dataset is a bulk load: versioned aggregates plus the schedule, the
// outcome log and the shot log.
type Dataset struct {
	snapshot.Data
	Outcomes []model.Outcome
	ShotLog  []model.Shot
}

func inRange(t, from, to time.Time) bool {
	d := model.Day(t)
	return !d.Before(model.Day(from)) && !d.After(model.Day(to))
}
