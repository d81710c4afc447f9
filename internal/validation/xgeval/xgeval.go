// Package xgeval grades the upstream expected-goals values on their own,
// independent of the projection engine, and runs the time-slice leakage
// audit.
package xgeval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/projector/internal/adapters/repository"
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/validation"
	"github.com/okian/projector/internal/validation/backtest"
	"github.com/okian/projector/internal/validation/measure"
	"github.com/okian/projector/pkg/logger"
	"github.com/okian/projector/pkg/metrics"
)

// ReportKind labels xG validation reports.
const ReportKind = "xg_validation"

// Check names emitted by the validator.
const (
	CheckShotSample = "shot_sample"
	CheckAUC        = "auc"
	CheckTimeSlice  = "time_slice"
)

// Backtester replays projections over a date range. *backtest.Engine
// satisfies it.
type Backtester interface {
	Run(ctx context.Context, from, to time.Time) (backtest.Result, error)
}

// Request selects the shots in [From, To] and the held-out date for the
// time-slice audit. A zero SliceDate means To.
type Request struct {
	From      time.Time
	To        time.Time
	SliceDate time.Time
}

// TimeSlice is the leakage audit for one held-out date.
type TimeSlice struct {
	Date    time.Time           `json:"date"`
	Pairs   int                 `json:"pairs"`
	Points  measure.Correlation `json:"points_correlation"`
	Verdict validation.Verdict  `json:"verdict"`
}

// Result is the outcome of one validation.
type Result struct {
	From       time.Time              `json:"from"`
	To         time.Time              `json:"to"`
	Shots      int                    `json:"shots"`
	Goals      int                    `json:"goals"`
	WithoutXG  int                    `json:"without_xg"`
	Provenance map[model.XGSource]int `json:"provenance"`
	LogLoss    *float64               `json:"log_loss,omitempty"`
	AUC        *float64               `json:"auc,omitempty"`
	TimeSlice  TimeSlice              `json:"time_slice"`
	Findings   []validation.Finding   `json:"-"`
}

// Report wraps r as a diagnostic report.
func (r Result) Report(at time.Time) validation.Report {
	return validation.NewReport(ReportKind, at, r, r.Findings)
}

// Validator grades xG values and audits one time slice.
type Validator struct {
	shots      repository.ShotSource
	backtester Backtester
	thresholds validation.LeakageThresholds
	logger     logger.Logger
}

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithThresholds overrides the leakage cut-offs.
func WithThresholds(t validation.LeakageThresholds) Option {
	return func(v *Validator) {
		if t.Leakage > 0 && t.Caution > 0 {
			v.thresholds = t
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// New constructs a Validator. A nil backtester skips the time-slice audit.
func New(shots repository.ShotSource, bt Backtester, opts ...Option) *Validator {
	v := &Validator{
		shots:      shots,
		backtester: bt,
		thresholds: validation.DefaultLeakageThresholds(),
		logger:     logger.Get().Named("xgeval"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Run scores every shot with a known xG value in the range, then replays
// the held-out date. Poor scores are findings; only a failed read or a
// cancelled context is an error.
func (v *Validator) Run(ctx context.Context, req Request) (Result, error) {
	from, to := model.Day(req.From), model.Day(req.To)
	res := Result{From: from, To: to, Provenance: map[model.XGSource]int{}}
	if to.Before(from) {
		return res, fmt.Errorf("%w: %s..%s", ErrInvalidRange, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	shots, err := v.shots.Shots(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	v.score(&res, shots)

	slice := req.SliceDate
	if slice.IsZero() {
		slice = to
	}
	if err := v.timeSlice(ctx, &res, model.Day(slice)); err != nil {
		return res, err
	}

	var ll, auc float64
	if res.LogLoss != nil {
		ll = *res.LogLoss
	}
	if res.AUC != nil {
		auc = *res.AUC
	}
	metrics.UpdateXGValidation(ll, auc)
	v.logger.Info(ctx, "xg validation complete",
		logger.Int("shots", res.Shots),
		logger.Float64("log_loss", ll),
		logger.Float64("auc", auc),
		logger.String("time_slice", string(res.TimeSlice.Verdict)),
	)
	return res, nil
}

// score computes Log Loss and AUC over coalesced xG values.
func (v *Validator) score(res *Result, shots []model.Shot) {
	probs := make([]float64, 0, len(shots))
	goals := make([]bool, 0, len(shots))
	for _, s := range shots {
		xg, src, ok := s.XG()
		if !ok {
			res.WithoutXG++
			continue
		}
		res.Provenance[src]++
		probs = append(probs, xg)
		goals = append(goals, s.IsGoal)
		if s.IsGoal {
			res.Goals++
		}
	}
	res.Shots = len(probs)

	if res.Shots == 0 {
		res.Findings = append(res.Findings, validation.Findingf(CheckShotSample, validation.SeverityWarning, 0, 0,
			"no shots with an expected-goals value in range"))
		return
	}
	if ll, err := measure.LogLoss(probs, goals); err == nil {
		res.LogLoss = &ll
	}
	auc, err := measure.AUC(probs, goals)
	switch {
	case errors.Is(err, measure.ErrSingleClass):
		res.Findings = append(res.Findings, validation.Findingf(CheckAUC, validation.SeverityWarning, float64(res.Goals), 0,
			"AUC undefined: %d goals among %d shots", res.Goals, res.Shots))
	case err == nil:
		res.AUC = &auc
		if auc <= 0.5 {
			res.Findings = append(res.Findings, validation.Findingf(CheckAUC, validation.SeverityCritical, auc, 0.5,
				"AUC %.3f: xG does not separate goals from non-goals", auc))
		}
	}
}

// timeSlice replays one date from a snapshot as of that date and grades
// the projected/realized correlation for leakage.
func (v *Validator) timeSlice(ctx context.Context, res *Result, date time.Time) error {
	res.TimeSlice = TimeSlice{Date: date, Verdict: validation.VerdictUnknown}
	if v.backtester == nil {
		return nil
	}
	bt, err := v.backtester.Run(ctx, date, date)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.Findings = append(res.Findings, validation.Findingf(CheckTimeSlice, validation.SeverityWarning, 0, 0,
			"time slice %s could not be replayed: %v", date.Format(time.DateOnly), err))
		return nil
	}
	res.TimeSlice.Pairs = bt.Matched
	res.TimeSlice.Points = bt.Points
	if !bt.Points.Valid {
		res.Findings = append(res.Findings, validation.Findingf(CheckTimeSlice, validation.SeverityInfo, float64(bt.Matched), 0,
			"time slice %s has too few matched projections to audit", date.Format(time.DateOnly)))
		return nil
	}
	res.TimeSlice.Verdict = v.thresholds.Classify(bt.Points.R)
	if f, ok := v.thresholds.Finding("time_slice_points", bt.Points.R); ok {
		f.Details["date"] = date.Format(time.DateOnly)
		res.Findings = append(res.Findings, f)
	}
	return nil
}
