package xgeval_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	service "github.com/okian/projector/internal/app"
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/testkit"
	"github.com/okian/projector/internal/validation"
	"github.com/okian/projector/internal/validation/backtest"
	"github.com/okian/projector/internal/validation/measure"
	"github.com/okian/projector/internal/validation/xgeval"
	logging "github.com/okian/projector/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logging.Init(); err != nil {
		panic(err)
	}
}

func ptr[T any](v T) *T { return &v }

type shotLog []model.Shot

func (s shotLog) Shots(context.Context, time.Time, time.Time) ([]model.Shot, error) { return s, nil }

// fixed returns a canned backtest result.
type fixed struct {
	r   float64
	err error
}

func (f fixed) Run(_ context.Context, from, _ time.Time) (backtest.Result, error) {
	if f.err != nil {
		return backtest.Result{}, f.err
	}
	return backtest.Result{
		From:    from,
		Matched: 40,
		Points:  measure.Correlation{Valid: true, N: 40, R: f.r},
	}, nil
}

func TestValidatorScoring(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	Convey("Given a small shot log", t, func() {
		shots := shotLog{
			{ShotID: "a", IsGoal: true, XGTalent: ptr(0.9), XGBase: ptr(0.5)},
			{ShotID: "b", XGFlurry: ptr(0.1)},
			{ShotID: "c", XGBase: ptr(0.2)},
			{ShotID: "d"},
		}
		res, err := xgeval.New(shots, nil).Run(ctx, xgeval.Request{From: day, To: day})
		So(err, ShouldBeNil)

		Convey("shots without xG are counted and skipped", func() {
			So(res.Shots, ShouldEqual, 3)
			So(res.WithoutXG, ShouldEqual, 1)
			So(res.Goals, ShouldEqual, 1)
		})

		Convey("provenance follows the coalesce order", func() {
			So(res.Provenance[model.XGTalent], ShouldEqual, 1)
			So(res.Provenance[model.XGFlurry], ShouldEqual, 1)
			So(res.Provenance[model.XGBase], ShouldEqual, 1)
		})

		Convey("log loss and AUC use the coalesced values", func() {
			want := -(math.Log(0.9) + math.Log(0.9) + math.Log(0.8)) / 3
			So(*res.LogLoss, ShouldAlmostEqual, want, 1e-12)
			So(*res.AUC, ShouldEqual, 1)
		})

		Convey("without a backtester the time slice is not audited", func() {
			So(res.TimeSlice.Verdict, ShouldEqual, validation.VerdictUnknown)
			So(res.Report(time.Now()).Status, ShouldEqual, validation.SeverityInfo)
		})
	})

	Convey("A log without goals leaves AUC undefined", t, func() {
		shots := shotLog{{ShotID: "a", XGBase: ptr(0.1)}, {ShotID: "b", XGBase: ptr(0.3)}}
		res, err := xgeval.New(shots, nil).Run(ctx, xgeval.Request{From: day, To: day})
		So(err, ShouldBeNil)
		So(res.AUC, ShouldBeNil)
		So(res.LogLoss, ShouldNotBeNil)
		So(res.Report(time.Now()).Has(xgeval.CheckAUC), ShouldBeTrue)
	})

	Convey("An inverted range is rejected", t, func() {
		_, err := xgeval.New(shotLog{}, nil).Run(ctx, xgeval.Request{From: day, To: day.AddDate(0, 0, -1)})
		So(errors.Is(err, xgeval.ErrInvalidRange), ShouldBeTrue)
	})
}

func TestTimeSlice(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	shots := shotLog{{ShotID: "a", IsGoal: true, XGBase: ptr(0.4)}, {ShotID: "b", XGBase: ptr(0.1)}}

	Convey("A held-out correlation of 0.85 is leakage", t, func() {
		res, err := xgeval.New(shots, fixed{r: 0.85}).Run(ctx, xgeval.Request{From: day, To: day})
		So(err, ShouldBeNil)
		So(res.TimeSlice.Verdict, ShouldEqual, validation.VerdictLeakage)
		So(res.TimeSlice.Date.Equal(day), ShouldBeTrue)

		r := res.Report(time.Now())
		So(r.Has(validation.CheckLeakage), ShouldBeTrue)
		So(r.Status, ShouldEqual, validation.SeverityCritical)
	})

	Convey("0.65 is a caution", t, func() {
		res, err := xgeval.New(shots, fixed{r: 0.65}).Run(ctx, xgeval.Request{From: day, To: day})
		So(err, ShouldBeNil)
		So(res.TimeSlice.Verdict, ShouldEqual, validation.VerdictCaution)
		So(res.Report(time.Now()).Status, ShouldEqual, validation.SeverityWarning)
	})

	Convey("0.4 is clean", t, func() {
		res, err := xgeval.New(shots, fixed{r: 0.4}).Run(ctx, xgeval.Request{From: day, To: day})
		So(err, ShouldBeNil)
		So(res.TimeSlice.Verdict, ShouldEqual, validation.VerdictClean)
		So(res.Report(time.Now()).Has(validation.CheckLeakage), ShouldBeFalse)
	})

	Convey("A failed replay is a finding, not an error", t, func() {
		res, err := xgeval.New(shots, fixed{err: errors.New("store offline")}).Run(ctx, xgeval.Request{From: day, To: day})
		So(err, ShouldBeNil)
		So(res.TimeSlice.Verdict, ShouldEqual, validation.VerdictUnknown)
		So(res.Report(time.Now()).Has(xgeval.CheckTimeSlice), ShouldBeTrue)
	})
}

func TestValidatorOnSyntheticLeague(t *testing.T) {
	ctx := context.Background()
	store, league, err := testkit.NewStore(ctx, testkit.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	Convey("Given the synthetic shot log and the real engine", t, func() {
		bt := backtest.New(store, service.New(store),
			backtest.WithBootstrap(measure.BootstrapConfig{Samples: 200, MinSuccessful: 50, Seed: 1}))
		res, err := xgeval.New(store, bt).Run(ctx, xgeval.Request{
			From: league.First(), To: league.Last(), SliceDate: league.Completed[7],
		})
		So(err, ShouldBeNil)

		Convey("every shot carries an xG value from one of the three sources", func() {
			So(res.Shots, ShouldBeGreaterThan, 1000)
			So(res.WithoutXG, ShouldEqual, 0)
			So(res.Provenance[model.XGTalent], ShouldBeGreaterThan, 0)
			So(res.Provenance[model.XGFlurry], ShouldBeGreaterThan, 0)
			So(res.Provenance[model.XGBase], ShouldBeGreaterThan, 0)
		})

		Convey("the xG values discriminate goals", func() {
			So(*res.AUC, ShouldBeGreaterThan, 0.6)
			So(*res.LogLoss, ShouldBeLessThan, math.Ln2)
		})

		Convey("the held-out date shows no leakage", func() {
			So(res.TimeSlice.Date.Equal(league.Completed[7]), ShouldBeTrue)
			So(res.TimeSlice.Pairs, ShouldBeGreaterThan, 0)
			So(res.TimeSlice.Verdict, ShouldNotEqual, validation.VerdictLeakage)
		})
	})
}
