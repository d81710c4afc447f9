// Package gate partitions a batch of projections into valid, review and
// rejected tiers before anything is persisted.
package gate

import (
	"context"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/pkg/logger"
	"github.com/okian/projector/pkg/metrics"
)

// Default thresholds.
const (
	DefaultWarnPoints   = 25.0
	DefaultRejectPoints = 35.0
	DefaultZScore       = 3.0
)

// Flag reasons.
const (
	ReasonWarnThreshold = "above_warn_threshold"
	ReasonZScore        = "z_score"
	ReasonGoalsOverSOG  = "goals_exceed_shots"
	ReasonNegativeStat  = "negative_stat"
	ReasonNonFinite     = "non_finite"
)

// Thresholds configures the gate.
type Thresholds struct {
	WarnPoints   float64
	RejectPoints float64
	ZScore       float64
}

// DefaultThresholds returns 25 points, 35 points and 3σ.
func DefaultThresholds() Thresholds {
	return Thresholds{WarnPoints: DefaultWarnPoints, RejectPoints: DefaultRejectPoints, ZScore: DefaultZScore}
}

// Flagged is a projection the gate did not pass outright.
type Flagged struct {
	Projection model.Projection `json:"projection"`
	Reasons    []string         `json:"reasons"`
	ZScore     float64          `json:"z_score"`
}

// Decision is the gate's partition of one batch. Each input projection
// appears in exactly one tier, with its Status set accordingly.
type Decision struct {
	Valid    []model.Projection
	Review   []Flagged
	Rejected []Flagged
	Mean     float64
	StdDev   float64
}

// Persistable returns valid and review projections, in input order of each tier.
func (d Decision) Persistable() []model.Projection {
	out := make([]model.Projection, 0, len(d.Valid)+len(d.Review))
	out = append(out, d.Valid...)
	for _, f := range d.Review {
		out = append(out, f.Projection)
	}
	return out
}

// Gate applies flat, statistical and hard invariant checks.
type Gate struct {
	thresholds Thresholds
	logger     logger.Logger
}

// Option applies a configuration option to the Gate.
type Option func(*Gate)

// WithThresholds overrides the defaults. Non-positive values are ignored.
func WithThresholds(t Thresholds) Option {
	return func(g *Gate) {
		if t.WarnPoints > 0 {
			g.thresholds.WarnPoints = t.WarnPoints
		}
		if t.RejectPoints > 0 {
			g.thresholds.RejectPoints = t.RejectPoints
		}
		if t.ZScore > 0 {
			g.thresholds.ZScore = t.ZScore
		}
	}
}

// WithLogger sets a custom logger for the gate.
func WithLogger(l logger.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Gate with default thresholds.
func New(opts ...Option) *Gate {
	g := &Gate{thresholds: DefaultThresholds()}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Get().Named("gate")
	}
	return g
}

// Thresholds returns the active thresholds.
func (g *Gate) Thresholds() Thresholds { return g.thresholds }

// Evaluate partitions batch. The population mean and standard deviation are
// taken over the finite totals of the whole batch.
func (g *Gate) Evaluate(ctx context.Context, batch []model.Projection) Decision {
	var d Decision

	totals := make([]float64, 0, len(batch))
	for _, p := range batch {
		if !math.IsNaN(p.TotalPoints) && !math.IsInf(p.TotalPoints, 0) {
			totals = append(totals, p.TotalPoints)
		}
	}
	if len(totals) > 0 {
		d.Mean, _ = stats.Mean(totals)
		d.StdDev, _ = stats.StandardDeviationPopulation(totals)
	}

	for _, p := range batch {
		f := Flagged{Projection: p}
		hard := hardViolations(p)
		f.Reasons = append(f.Reasons, hard...)

		if d.StdDev > 0 {
			f.ZScore = (p.TotalPoints - d.Mean) / d.StdDev
		}
		if p.TotalPoints > g.thresholds.WarnPoints {
			f.Reasons = append(f.Reasons, ReasonWarnThreshold)
		}
		if f.ZScore > g.thresholds.ZScore {
			f.Reasons = append(f.Reasons, ReasonZScore)
		}

		switch {
		case len(hard) > 0 || p.TotalPoints > g.thresholds.RejectPoints:
			f.Projection.Status = model.StatusRejected
			d.Rejected = append(d.Rejected, f)
			metrics.RecordGateDecision(string(model.StatusRejected))
			g.logger.Warn(ctx, "projection rejected",
				logger.String("key", p.Key.String()),
				logger.Float64("total_points", p.TotalPoints),
				logger.Any("reasons", f.Reasons),
			)
		case len(f.Reasons) > 0:
			f.Projection.Status = model.StatusReview
			d.Review = append(d.Review, f)
			metrics.RecordGateDecision(string(model.StatusReview))
			g.logger.Info(ctx, "projection flagged for review",
				logger.String("key", p.Key.String()),
				logger.Float64("total_points", p.TotalPoints),
				logger.Float64("z_score", f.ZScore),
				logger.Any("reasons", f.Reasons),
			)
		default:
			p.Status = model.StatusValid
			d.Valid = append(d.Valid, p)
			metrics.RecordGateDecision(string(model.StatusValid))
		}
	}
	return d
}

// hardViolations checks invariants that hold regardless of thresholds.
func hardViolations(p model.Projection) []string {
	var out []string
	if math.IsNaN(p.TotalPoints) || math.IsInf(p.TotalPoints, 0) {
		out = append(out, ReasonNonFinite)
	}
	if p.Stats.Get(model.Goals) > p.Stats.Get(model.ShotsOnGoal) {
		out = append(out, ReasonGoalsOverSOG)
	}
	if _, neg := p.Stats.Negative(); neg {
		out = append(out, ReasonNegativeStat)
	}
	return out
}
