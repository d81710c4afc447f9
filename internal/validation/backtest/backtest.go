// Package backtest replays the projection engine over completed games and
// measures it against what actually happened. Every date is recomputed from
// a snapshot as of that date, so the engine never sees the games it is
// graded on.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/projector/internal/adapters/repository"
	service "github.com/okian/projector/internal/app"
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/domain/scoring"
	"github.com/okian/projector/internal/domain/snapshot"
	"github.com/okian/projector/internal/validation"
	"github.com/okian/projector/internal/validation/measure"
	"github.com/okian/projector/pkg/logger"
	"github.com/okian/projector/pkg/metrics"
)

// ReportKind labels backtest reports.
const ReportKind = "backtest"

// Check names emitted by the engine.
const (
	CheckSampleSize = "sample_size"
	CheckBootstrap  = "bootstrap"
	CheckDateFailed = "date_failed"
	CheckBrier      = "brier"
	CheckBaseline   = "invalid_baseline"
)

const (
	defaultConcurrency = 2
	minPairs           = 3
	maxStaleDetails    = 20
)

// Store is what a backtest reads.
type Store interface {
	snapshot.Source
	repository.OutcomeSource
}

// Computer produces ungated projections for a snapshot. *service.Service
// satisfies it.
type Computer interface {
	Compute(ctx context.Context, snap *snapshot.Snapshot) (service.Computation, error)
}

// Pair is one projection matched to its realized outcome.
type Pair struct {
	Key       model.Key      `json:"key"`
	Position  model.Position `json:"position"`
	Projected float64        `json:"projected"`
	VOPA      float64        `json:"vopa"`
	Realized  float64        `json:"realized"`
	// WinProb and Won are set for goaltenders; Won is nil when the result
	// was not recorded.
	WinProb float64 `json:"win_prob,omitempty"`
	Won     *bool   `json:"won,omitempty"`
}

// DateResult summarizes one replayed date.
type DateResult struct {
	Date        time.Time `json:"date"`
	Projections int       `json:"projections"`
	Failures    int       `json:"failures"`
	Matched     int       `json:"matched"`
	Stale       []string  `json:"stale,omitempty"`
	Invalid     []string  `json:"invalid,omitempty"`
	Err         string    `json:"error,omitempty"`
}

// Result is the outcome of one backtest.
type Result struct {
	From        time.Time             `json:"from"`
	To          time.Time             `json:"to"`
	Dates       []DateResult          `json:"dates"`
	Projections int                   `json:"projections"`
	Matched     int                   `json:"matched"`
	Unmatched   int                   `json:"unmatched"`
	VOPA        measure.Correlation   `json:"vopa_correlation"`
	Points      measure.Correlation   `json:"points_correlation"`
	Errors      *measure.ErrorSummary `json:"errors,omitempty"`
	Brier       *float64              `json:"brier,omitempty"`
	BrierGames  int                   `json:"brier_games"`
	Leakage     validation.Verdict    `json:"leakage"`
	Findings    []validation.Finding  `json:"-"`
	Pairs       []Pair                `json:"-"`
}

// Report wraps r as a diagnostic report.
func (r Result) Report(at time.Time) validation.Report {
	return validation.NewReport(ReportKind, at, r, r.Findings)
}

// Engine runs backtests.
type Engine struct {
	store       Store
	computer    Computer
	scoring     scoring.Config
	bootstrap   measure.BootstrapConfig
	thresholds  validation.LeakageThresholds
	concurrency int
	logger      logger.Logger
}

// New constructs an Engine.
func New(store Store, computer Computer, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		computer:    computer,
		scoring:     scoring.Default(),
		bootstrap:   measure.DefaultBootstrap(),
		thresholds:  validation.DefaultLeakageThresholds(),
		concurrency: defaultConcurrency,
		logger:      logger.Get().Named("backtest"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run replays every date in [from, to] that has completed games.
// Per-date failures become findings; only context cancellation and
// unreadable outcomes or schedules fail the run.
func (e *Engine) Run(ctx context.Context, from, to time.Time) (Result, error) {
	from, to = model.Day(from), model.Day(to)
	res := Result{From: from, To: to, Leakage: validation.VerdictUnknown}
	if to.Before(from) {
		return res, fmt.Errorf("%w: %s..%s", ErrInvalidRange, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	games, err := e.store.Games(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("%w: schedule: %w", ErrLoad, err)
	}
	outcomes, err := e.store.Outcomes(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("%w: outcomes: %w", ErrLoad, err)
	}
	dates := completedDates(games)
	index := make(map[[2]string]model.Outcome, len(outcomes))
	for _, o := range outcomes {
		index[[2]string{o.PlayerID, o.GameID}] = o
	}

	days := make([]day, len(dates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, d := range dates {
		g.Go(func() error {
			days[i] = e.replay(gctx, d, index)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	var stale []string
	invalid := map[string]struct{}{}
	for _, d := range days {
		res.Dates = append(res.Dates, d.result)
		res.Projections += d.result.Projections
		res.Matched += d.result.Matched
		res.Pairs = append(res.Pairs, d.pairs...)
		stale = append(stale, d.result.Stale...)
		for _, row := range d.result.Invalid {
			invalid[row] = struct{}{}
		}
		if d.result.Err != "" {
			res.Findings = append(res.Findings, validation.Findingf(CheckDateFailed, validation.SeverityWarning, 0, 0,
				"%s could not be replayed: %s", d.result.Date.Format(time.DateOnly), d.result.Err))
		}
	}
	res.Unmatched = res.Projections - res.Matched
	if len(stale) > 0 {
		res.Findings = append(res.Findings, staleFinding(stale))
	}
	if len(invalid) > 0 {
		res.Findings = append(res.Findings, invalidFinding(invalid))
	}

	e.score(&res)

	var mae, brier float64
	if res.Errors != nil {
		mae = res.Errors.MAE
	}
	if res.Brier != nil {
		brier = *res.Brier
	}
	metrics.UpdateBacktestResults(res.Points.R, mae, brier)
	e.logger.Info(ctx, "backtest complete",
		logger.String("from", from.Format(time.DateOnly)),
		logger.String("to", to.Format(time.DateOnly)),
		logger.Int("dates", len(dates)),
		logger.Int("matched", res.Matched),
		logger.Float64("points_r", res.Points.R),
		logger.String("leakage", string(res.Leakage)),
	)
	return res, nil
}

type day struct {
	result DateResult
	pairs  []Pair
}

// replay recomputes one date from a snapshot as of that date.
func (e *Engine) replay(ctx context.Context, date time.Time, outcomes map[[2]string]model.Outcome) day {
	out := day{result: DateResult{Date: date}}
	snap, err := snapshot.Load(ctx, e.store, date, date, date)
	if err != nil {
		out.result.Err = err.Error()
		return out
	}
	out.result.Stale = snap.Stale()
	out.result.Invalid = snap.Invalid()

	comp, err := e.computer.Compute(ctx, snap)
	if err != nil && !errors.Is(err, service.ErrFatalUnit) {
		out.result.Err = err.Error()
		return out
	}
	if err != nil {
		e.logger.Warn(ctx, "replay stopped on fatal unit", logger.String("date", date.Format(time.DateOnly)), logger.Error(err))
		out.result.Err = err.Error()
	}
	out.result.Projections = len(comp.Projections)
	out.result.Failures = len(comp.Failures)

	for _, p := range comp.Projections {
		o, ok := outcomes[[2]string{p.PlayerID, p.GameID}]
		if !ok {
			continue
		}
		pair := Pair{
			Key:       p.Key,
			Position:  p.Position,
			Projected: p.TotalPoints,
			VOPA:      p.VOPA,
			Realized:  e.scoring.Points(o.Stats),
		}
		if p.Position.IsGoalie() {
			pair.WinProb = p.WinProbability()
			pair.Won = o.GoalieWin
		}
		out.pairs = append(out.pairs, pair)
	}
	out.result.Matched = len(out.pairs)
	return out
}

// score computes the accuracy statistics and their findings.
func (e *Engine) score(res *Result) {
	n := len(res.Pairs)
	if n < minPairs {
		res.Findings = append(res.Findings, validation.Findingf(CheckSampleSize, validation.SeverityWarning,
			float64(n), minPairs, "only %d matched projections; correlations need at least %d", n, minPairs))
	}

	projected := make([]float64, n)
	vopa := make([]float64, n)
	realized := make([]float64, n)
	var probs []float64
	var won []bool
	for i, p := range res.Pairs {
		projected[i], vopa[i], realized[i] = p.Projected, p.VOPA, p.Realized
		if p.Won != nil {
			probs = append(probs, p.WinProb)
			won = append(won, *p.Won)
		}
	}

	res.Points = measure.Correlate(projected, realized, e.bootstrap)
	res.VOPA = measure.Correlate(vopa, realized, e.bootstrap)
	for _, c := range []struct {
		metric string
		corr   measure.Correlation
	}{{"points", res.Points}, {"vopa", res.VOPA}} {
		if !c.corr.Valid {
			continue
		}
		if f, ok := e.thresholds.Finding(c.metric, c.corr.R); ok {
			res.Findings = append(res.Findings, f)
		}
		if c.corr.CIError != "" {
			res.Findings = append(res.Findings, validation.Findingf(CheckBootstrap, validation.SeverityWarning,
				float64(c.corr.CI.Successful), float64(e.bootstrap.MinSuccessful),
				"%s confidence interval unavailable: %s", c.metric, c.corr.CIError))
		}
	}
	if res.Points.Valid {
		res.Leakage = e.thresholds.Classify(res.Points.R)
	}

	if n > 0 {
		if s, err := measure.AbsoluteErrors(projected, realized); err == nil {
			res.Errors = &s
		}
	}

	res.BrierGames = len(probs)
	if b, err := measure.Brier(probs, won); err == nil {
		res.Brier = &b
	} else {
		res.Findings = append(res.Findings, validation.Findingf(CheckBrier, validation.SeverityInfo, 0, 0,
			"no goaltender games with a recorded result"))
	}
}

func staleFinding(stale []string) validation.Finding {
	sort.Strings(stale)
	f := validation.Findingf(validation.CheckPointInTime, validation.SeverityCritical, float64(len(stale)), 0,
		"%d snapshot rows are stamped after their as-of date", len(stale))
	f.Details = map[string]any{"rows": stale[:min(len(stale), maxStaleDetails)]}
	return f
}

// invalidFinding reports baselines withheld from replayed snapshots. The
// positions they cover were skipped, so accuracy figures omit them.
func invalidFinding(rows map[string]struct{}) validation.Finding {
	list := make([]string, 0, len(rows))
	for r := range rows {
		list = append(list, r)
	}
	sort.Strings(list)
	f := validation.Findingf(CheckBaseline, validation.SeverityWarning, float64(len(list)), 0,
		"%d league baselines failed validation and were withheld", len(list))
	f.Details = map[string]any{"rows": list[:min(len(list), maxStaleDetails)]}
	return f
}

// completedDates returns the distinct days with at least one completed game.
func completedDates(games []model.GameContext) []time.Time {
	seen := make(map[time.Time]struct{})
	var out []time.Time
	for _, g := range games {
		if !g.Completed {
			continue
		}
		d := model.Day(g.Date)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
