package backtest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/projector/internal/adapters/repository"
	service "github.com/okian/projector/internal/app"
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/scoring"
	"github.com/okian/projector/internal/domain/snapshot"
	"github.com/okian/projector/internal/testkit"
	"github.com/okian/projector/internal/validation"
	"github.com/okian/projector/internal/validation/backtest"
	"github.com/okian/projector/internal/validation/measure"
	logging "github.com/okian/projector/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

var fastBootstrap = backtest.WithBootstrap(measure.BootstrapConfig{Samples: 200, MinSuccessful: 50, Seed: 42})

// oracle projects exactly what happened, the way a pipeline reading
// post-game data would.
type oracle struct {
	outcomes []model.Outcome
	noise    float64
}

func (o oracle) Compute(_ context.Context, snap *snapshot.Snapshot) (service.Computation, error) {
	var comp service.Computation
	sc := scoring.Default()
	for i, out := range o.outcomes {
		if !model.Day(out.Date).Equal(snap.AsOf()) {
			continue
		}
		pts := sc.Points(out.Stats)
		if i%2 == 0 {
			pts += o.noise
		}
		comp.Projections = append(comp.Projections, model.Projection{
			Key:         model.Key{PlayerID: out.PlayerID, GameID: out.GameID, Date: model.Day(out.Date)},
			Position:    out.Position,
			TotalPoints: pts,
			VOPA:        pts,
		})
	}
	return comp, nil
}

// leaky serves profiles from a week in the future.
type leaky struct {
	*repository.MemStore
}

func (l leaky) RateProfiles(ctx context.Context, asOf time.Time) ([]model.RateProfile, error) {
	return l.MemStore.RateProfiles(ctx, asOf.AddDate(0, 0, 7))
}

// inflated raises the centre replacement level above the league average.
type inflated struct {
	*repository.MemStore
}

func (s inflated) LeagueBaselines(ctx context.Context, asOf time.Time) ([]model.LeagueBaseline, error) {
	rows, err := s.MemStore.LeagueBaselines(ctx, asOf)
	out := make([]model.LeagueBaseline, len(rows))
	for i, b := range rows {
		if b.Position == model.Center {
			b.AvgFPtsPer60 = 1
			b.ReplacementFPtsPer60 = 5
		}
		out[i] = b
	}
	return out, err
}

type brokenOutcomes struct {
	*repository.MemStore
}

func (brokenOutcomes) Outcomes(context.Context, time.Time, time.Time) ([]model.Outcome, error) {
	return nil, errors.New("outcome log offline")
}

func TestEngine(t *testing.T) {
	ctx := context.Background()
	store, league, err := testkit.NewStore(ctx, testkit.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	Convey("Given the real engine over a synthetic league", t, func() {
		eng := backtest.New(store, service.New(store), fastBootstrap)
		res, err := eng.Run(ctx, league.First(), league.Last())
		So(err, ShouldBeNil)

		Convey("every completed date is replayed and matched", func() {
			So(res.Dates, ShouldHaveLength, len(league.Completed))
			for _, d := range res.Dates {
				So(d.Err, ShouldBeEmpty)
				So(d.Matched, ShouldBeGreaterThan, 0)
				So(d.Stale, ShouldBeEmpty)
			}
			So(res.Matched, ShouldEqual, len(res.Pairs))
			So(res.Unmatched, ShouldEqual, res.Projections-res.Matched)
		})

		Convey("accuracy statistics are populated", func() {
			So(res.Points.Valid, ShouldBeTrue)
			So(res.VOPA.Valid, ShouldBeTrue)
			So(res.Points.R, ShouldBeGreaterThan, 0)
			So(res.Points.CI.Lower, ShouldBeLessThanOrEqualTo, res.Points.CI.Upper)
			So(res.Points.CIError, ShouldBeEmpty)
			So(res.Errors, ShouldNotBeNil)
			So(res.Errors.P25, ShouldBeLessThanOrEqualTo, res.Errors.P95)
			So(res.Brier, ShouldNotBeNil)
			So(res.BrierGames, ShouldBeGreaterThan, 0)
			So(*res.Brier, ShouldBeBetween, 0, 1)
		})

		Convey("a pre-game forecaster shows no leakage", func() {
			So(res.Leakage, ShouldNotEqual, validation.VerdictLeakage)
			r := res.Report(time.Now())
			So(r.Has(validation.CheckPointInTime), ShouldBeFalse)
			So(r.Kind, ShouldEqual, backtest.ReportKind)
		})

		Convey("the same inputs reproduce the result", func() {
			again, err := backtest.New(store, service.New(store), fastBootstrap).Run(ctx, league.First(), league.Last())
			So(err, ShouldBeNil)
			So(again.Points, ShouldResemble, res.Points)
			So(again.Matched, ShouldEqual, res.Matched)
		})
	})

	Convey("Given a forecaster that has seen the results", t, func() {
		eng := backtest.New(store, oracle{outcomes: league.Dataset.Outcomes, noise: 0.5}, fastBootstrap)
		res, err := eng.Run(ctx, league.First(), league.Last())
		So(err, ShouldBeNil)

		Convey("the correlation is flagged as leakage", func() {
			So(res.Points.R, ShouldBeGreaterThan, 0.7)
			So(res.Leakage, ShouldEqual, validation.VerdictLeakage)

			r := res.Report(time.Now())
			So(r.Status, ShouldEqual, validation.SeverityCritical)
			So(r.Has(validation.CheckLeakage), ShouldBeTrue)
		})
	})

	Convey("Given a store that serves rows from after the as-of date", t, func() {
		src := leaky{store}
		eng := backtest.New(src, service.New(src), fastBootstrap)
		res, err := eng.Run(ctx, league.First(), league.First().AddDate(0, 0, 2))
		So(err, ShouldBeNil)

		Convey("the point-in-time audit reports the rows", func() {
			r := res.Report(time.Now())
			So(r.Has(validation.CheckPointInTime), ShouldBeTrue)
			So(r.Status, ShouldEqual, validation.SeverityCritical)
			So(res.Dates[0].Stale, ShouldNotBeEmpty)
		})
	})

	Convey("Given a store with an invalid centre baseline", t, func() {
		src := inflated{store}
		res, err := backtest.New(src, service.New(src), fastBootstrap).Run(ctx, league.First(), league.First().AddDate(0, 0, 2))
		So(err, ShouldBeNil)

		Convey("the baseline is withheld and reported", func() {
			So(res.Dates[0].Invalid, ShouldNotBeEmpty)
			So(res.Report(time.Now()).Has(backtest.CheckBaseline), ShouldBeTrue)
			for _, p := range res.Pairs {
				So(p.Position, ShouldNotEqual, model.Center)
			}
			So(res.Matched, ShouldBeGreaterThan, 0)
		})
	})

	Convey("Given a range without completed games", t, func() {
		after := league.Upcoming[0]
		res, err := backtest.New(store, service.New(store)).Run(ctx, after, after)
		So(err, ShouldBeNil)

		Convey("the run completes with an insufficient data finding", func() {
			So(res.Dates, ShouldBeEmpty)
			So(res.Leakage, ShouldEqual, validation.VerdictUnknown)
			So(res.Points.Valid, ShouldBeFalse)
			So(res.Report(time.Now()).Has(backtest.CheckSampleSize), ShouldBeTrue)
		})
	})

	Convey("Run rejects bad input and unreadable outcomes", t, func() {
		eng := backtest.New(store, service.New(store))
		_, err := eng.Run(ctx, league.Last(), league.First())
		So(errors.Is(err, backtest.ErrInvalidRange), ShouldBeTrue)

		broken := brokenOutcomes{store}
		_, err = backtest.New(broken, service.New(broken)).Run(ctx, league.First(), league.Last())
		So(errors.Is(err, backtest.ErrLoad), ShouldBeTrue)
	})
}
