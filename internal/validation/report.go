// Package validation holds the diagnostic report shared by the backtest,
// xG and calibration validators. Findings are values: a validator always
// completes and reports, however poorly the system under test performs.
package validation

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/okian/projector/pkg/metrics"
)

// Severity grades a finding.
type Severity string

// Severities, least to most serious.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	}
	return 0
}

// Finding is one diagnostic observation.
type Finding struct {
	Check     string         `json:"check"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Value     float64        `json:"value"`
	Threshold float64        `json:"threshold,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Findingf builds a finding with a formatted message. Non-finite values
// are stored as zero.
func Findingf(check string, sev Severity, value, threshold float64, format string, args ...any) Finding {
	return Finding{
		Check:     check,
		Severity:  sev,
		Message:   fmt.Sprintf(format, args...),
		Value:     finite(value),
		Threshold: finite(threshold),
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Report is the machine-readable output of one validator run.
type Report struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	GeneratedAt time.Time `json:"generated_at"`
	Status      Severity  `json:"status"`
	Findings    []Finding `json:"findings"`
	Result      any       `json:"result"`
}

// NewReport stamps a report and counts its findings.
func NewReport(kind string, at time.Time, result any, findings []Finding) Report {
	if findings == nil {
		findings = []Finding{}
	}
	r := Report{
		ID:          uuid.NewString(),
		Kind:        kind,
		GeneratedAt: at.UTC(),
		Status:      Worst(findings),
		Findings:    findings,
		Result:      result,
	}
	for _, f := range findings {
		metrics.RecordFinding(f.Check, string(f.Severity))
	}
	return r
}

// Worst returns the most serious severity among findings, or info.
func Worst(findings []Finding) Severity {
	worst := SeverityInfo
	for _, f := range findings {
		if f.Severity.rank() > worst.rank() {
			worst = f.Severity
		}
	}
	return worst
}

// Has reports whether any finding carries check.
func (r Report) Has(check string) bool {
	for _, f := range r.Findings {
		if f.Check == check {
			return true
		}
	}
	return false
}

// WriteJSON writes r as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
