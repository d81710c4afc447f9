package snapshot

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/pkg/logger"
	"github.com/okian/projector/pkg/metrics"
)

// Source is the point-in-time read side of the rate profile store. Every
// method returns, per key, the newest row stamped on or before asOf.
type Source interface {
	RateProfiles(ctx context.Context, asOf time.Time) ([]model.RateProfile, error)
	LeagueBaselines(ctx context.Context, asOf time.Time) ([]model.LeagueBaseline, error)
	ShotAggregates(ctx context.Context, asOf time.Time) ([]model.ShotAggregate, error)
	TeamAggregates(ctx context.Context, asOf time.Time) ([]model.TeamAggregate, error)
	GoalieAggregates(ctx context.Context, asOf time.Time) ([]model.GoalieAggregate, error)
	LeagueContexts(ctx context.Context, asOf time.Time) ([]model.LeagueContext, error)
	Games(ctx context.Context, from, to time.Time) ([]model.GameContext, error)
}

// Load reads every aggregate concurrently and builds a Snapshot for games in
// [from, to]. The schedule is read from the day before from so back-to-back
// detection works on the first day. Any read failure aborts the load.
func Load(ctx context.Context, src Source, asOf, from, to time.Time) (*Snapshot, error) {
	start := time.Now()
	log := logger.Get().Named("snapshot")

	if to.Before(from) {
		return nil, fmt.Errorf("%w: range %s..%s", model.ErrInvalidInput, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	var d Data
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Profiles, err = src.RateProfiles(gctx, asOf)
		return wrap("rate profiles", err)
	})
	g.Go(func() (err error) {
		d.Baselines, err = src.LeagueBaselines(gctx, asOf)
		return wrap("league baselines", err)
	})
	g.Go(func() (err error) {
		d.Shots, err = src.ShotAggregates(gctx, asOf)
		return wrap("shot aggregates", err)
	})
	g.Go(func() (err error) {
		d.Teams, err = src.TeamAggregates(gctx, asOf)
		return wrap("team aggregates", err)
	})
	g.Go(func() (err error) {
		d.Goalies, err = src.GoalieAggregates(gctx, asOf)
		return wrap("goalie aggregates", err)
	})
	g.Go(func() (err error) {
		d.Leagues, err = src.LeagueContexts(gctx, asOf)
		return wrap("league contexts", err)
	})
	g.Go(func() (err error) {
		d.Games, err = src.Games(gctx, model.Day(from).AddDate(0, 0, -1), model.Day(to))
		return wrap("schedule", err)
	})
	if err := g.Wait(); err != nil {
		metrics.RecordErrorByComponent("snapshot", "load")
		return nil, err
	}

	s := New(asOf, from, to, d)
	elapsed := time.Since(start)
	metrics.RecordSnapshotLoad(float64(elapsed.Milliseconds()), s.Size())
	log.Info(ctx, "snapshot loaded",
		logger.String("as_of", s.AsOf().Format(time.DateOnly)),
		logger.Int("rows", s.Size()),
		logger.Int("games", len(s.Window())),
		logger.Duration("elapsed", elapsed),
	)
	if stale := s.Stale(); len(stale) > 0 {
		log.Warn(ctx, "snapshot contains rows newer than as-of date", logger.Int("count", len(stale)))
	}
	if invalid := s.Invalid(); len(invalid) > 0 {
		log.Warn(ctx, "snapshot withheld invalid rows", logger.Any("rows", invalid))
	}
	return s, nil
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("load %s: %w", what, err)
}
