// Package calibration audits two kinds of systematic bias: a position whose
// value scores track realized points worse than the others, and shot-danger
// zones where the upstream xG over- or under-predicts scoring.
package calibration

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/okian/projector/internal/adapters/repository"
	"github.com/okian/projector/internal/domain/model"
	"github.com/okian/projector/internal/validation"
	"github.com/okian/projector/internal/validation/backtest"
	"github.com/okian/projector/internal/validation/measure"
	"github.com/okian/projector/pkg/logger"
)

// ReportKind labels calibration reports.
const ReportKind = "calibration"

// Check names emitted by the auditor.
const (
	CheckPositional = "positional_calibration"
	CheckSpatial    = "spatial_calibration"
)

// Audit thresholds.
const (
	MinPositionSamples = 10
	PositionalGap      = 0.15
	SpatialTolerance   = 0.05

	highDangerDistance = 20.0
	highDangerAngle    = 45.0
	mediumDistance     = 40.0
)

// Zone is a shot-danger bucket.
type Zone string

// Zones, most to least dangerous.
const (
	ZoneHigh   Zone = "high"
	ZoneMedium Zone = "medium"
	ZoneLow    Zone = "low"
)

var zoneOrder = []Zone{ZoneHigh, ZoneMedium, ZoneLow}

// ZoneOf buckets a shot by distance in feet and angle in degrees from the
// center line.
func ZoneOf(distance, angle float64) Zone {
	switch {
	case distance <= highDangerDistance && math.Abs(angle) <= highDangerAngle:
		return ZoneHigh
	case distance <= mediumDistance:
		return ZoneMedium
	}
	return ZoneLow
}

// PositionResult is one position's VOPA/realized correlation.
type PositionResult struct {
	Position model.Position `json:"position"`
	N        int            `json:"n"`
	Valid    bool           `json:"valid"`
	R        float64        `json:"r"`
	// OthersMean is the mean correlation of the other audited positions.
	OthersMean float64 `json:"others_mean"`
	Flagged    bool    `json:"flagged"`
}

// Positional correlates VOPA with realized points per position. Positions
// with fewer than ten pairs are reported but not audited.
func Positional(pairs []backtest.Pair) ([]PositionResult, []validation.Finding) {
	type series struct{ vopa, realized []float64 }
	byPos := make(map[model.Position]*series)
	for _, p := range pairs {
		s := byPos[p.Position]
		if s == nil {
			s = &series{}
			byPos[p.Position] = s
		}
		s.vopa = append(s.vopa, p.VOPA)
		s.realized = append(s.realized, p.Realized)
	}

	out := make([]PositionResult, 0, len(byPos))
	for pos, s := range byPos {
		res := PositionResult{Position: pos, N: len(s.vopa)}
		if res.N >= MinPositionSamples {
			if r, err := measure.Pearson(s.vopa, s.realized); err == nil {
				res.Valid, res.R = true, r
			}
		}
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })

	var findings []validation.Finding
	for i := range out {
		if !out[i].Valid {
			continue
		}
		var sum float64
		others := 0
		for j := range out {
			if j != i && out[j].Valid {
				sum += out[j].R
				others++
			}
		}
		if others == 0 {
			continue
		}
		out[i].OthersMean = sum / float64(others)
		if out[i].R < out[i].OthersMean-PositionalGap {
			out[i].Flagged = true
			f := validation.Findingf(CheckPositional, validation.SeverityWarning, out[i].R, out[i].OthersMean-PositionalGap,
				"%s VOPA correlation %.3f trails the other positions (%.3f) by more than %.2f",
				out[i].Position, out[i].R, out[i].OthersMean, PositionalGap)
			f.Details = map[string]any{"position": out[i].Position, "n": out[i].N}
			findings = append(findings, f)
		}
	}
	return out, findings
}

// ZoneResult is one danger zone's shooting percentage against mean xG.
type ZoneResult struct {
	Zone        Zone    `json:"zone"`
	Shots       int     `json:"shots"`
	Goals       int     `json:"goals"`
	ShootingPct float64 `json:"shooting_pct"`
	MeanXG      float64 `json:"mean_xg"`
	// Delta is ShootingPct - MeanXG.
	Delta   float64 `json:"delta"`
	Flagged bool    `json:"flagged"`
}

// Spatial compares actual and expected shooting percentage per zone over
// unblocked shots with an xG value.
func Spatial(shots []model.Shot) ([]ZoneResult, []validation.Finding) {
	acc := make(map[Zone]*ZoneResult, len(zoneOrder))
	for _, s := range shots {
		if s.Blocked {
			continue
		}
		xg, _, ok := s.XG()
		if !ok {
			continue
		}
		z := ZoneOf(s.Distance, s.Angle)
		r := acc[z]
		if r == nil {
			r = &ZoneResult{Zone: z}
			acc[z] = r
		}
		r.Shots++
		r.MeanXG += xg
		if s.IsGoal {
			r.Goals++
		}
	}

	var out []ZoneResult
	var findings []validation.Finding
	for _, z := range zoneOrder {
		r := acc[z]
		if r == nil {
			continue
		}
		r.MeanXG /= float64(r.Shots)
		r.ShootingPct = float64(r.Goals) / float64(r.Shots)
		r.Delta = r.ShootingPct - r.MeanXG
		if math.Abs(r.Delta) > SpatialTolerance {
			r.Flagged = true
			f := validation.Findingf(CheckSpatial, validation.SeverityWarning, r.Delta, SpatialTolerance,
				"%s danger shots: shooting %.3f against mean xG %.3f", z, r.ShootingPct, r.MeanXG)
			f.Details = map[string]any{"zone": z, "shots": r.Shots}
			findings = append(findings, f)
		}
		out = append(out, *r)
	}
	return out, findings
}

// Backtester replays projections over a date range. *backtest.Engine
// satisfies it.
type Backtester interface {
	Run(ctx context.Context, from, to time.Time) (backtest.Result, error)
}

// Result is the outcome of one audit.
type Result struct {
	From      time.Time            `json:"from"`
	To        time.Time            `json:"to"`
	Positions []PositionResult     `json:"positions"`
	Zones     []ZoneResult         `json:"zones"`
	Findings  []validation.Finding `json:"-"`
}

// Report wraps r as a diagnostic report.
func (r Result) Report(at time.Time) validation.Report {
	return validation.NewReport(ReportKind, at, r, r.Findings)
}

// Auditor runs both audits over a date range.
type Auditor struct {
	backtester Backtester
	shots      repository.ShotSource
	logger     logger.Logger
}

// NewAuditor constructs an Auditor.
func NewAuditor(bt Backtester, shots repository.ShotSource, l logger.Logger) *Auditor {
	if l == nil {
		l = logger.Get().Named("calibration")
	}
	return &Auditor{backtester: bt, shots: shots, logger: l}
}

// Run replays [from, to] for the positional audit and reads its shots for
// the spatial one.
func (a *Auditor) Run(ctx context.Context, from, to time.Time) (Result, error) {
	res := Result{From: model.Day(from), To: model.Day(to)}

	bt, err := a.backtester.Run(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("positional audit: %w", err)
	}
	var pf []validation.Finding
	res.Positions, pf = Positional(bt.Pairs)

	shots, err := a.shots.Shots(ctx, from, to)
	if err != nil {
		return res, fmt.Errorf("spatial audit: %w", err)
	}
	var sf []validation.Finding
	res.Zones, sf = Spatial(shots)

	res.Findings = append(pf, sf...)
	a.logger.Info(ctx, "calibration audit complete",
		logger.Int("positions", len(res.Positions)),
		logger.Int("zones", len(res.Zones)),
		logger.Int("findings", len(res.Findings)),
	)
	return res, nil
}
