package validation

import "math"

// Leakage thresholds on projection/outcome correlation. A forecaster that
// only sees pre-game data should not come close to perfect foresight.
const (
	DefaultLeakageThreshold = 0.7
	DefaultCautionThreshold = 0.6
)

// Verdict classifies a correlation for leakage.
type Verdict string

// Verdicts.
const (
	VerdictClean   Verdict = "clean"
	VerdictCaution Verdict = "caution"
	VerdictLeakage Verdict = "leakage_detected"
	VerdictUnknown Verdict = "insufficient_data"
)

// Check names shared by validators.
const (
	CheckLeakage     = "leakage"
	CheckPointInTime = "point_in_time"
)

// LeakageThresholds holds the caution and leakage cut-offs.
type LeakageThresholds struct {
	Leakage float64
	Caution float64
}

// DefaultLeakageThresholds returns 0.7 and 0.6.
func DefaultLeakageThresholds() LeakageThresholds {
	return LeakageThresholds{Leakage: DefaultLeakageThreshold, Caution: DefaultCautionThreshold}
}

// Classify grades r. NaN is insufficient data.
func (t LeakageThresholds) Classify(r float64) Verdict {
	switch {
	case math.IsNaN(r):
		return VerdictUnknown
	case r > t.Leakage:
		return VerdictLeakage
	case r > t.Caution:
		return VerdictCaution
	}
	return VerdictClean
}

// Finding turns a verdict on metric into a finding; clean and unknown
// verdicts produce none.
func (t LeakageThresholds) Finding(metric string, r float64) (Finding, bool) {
	switch t.Classify(r) {
	case VerdictLeakage:
		f := Findingf(CheckLeakage, SeverityCritical, r, t.Leakage,
			"%s correlation %.3f exceeds %.2f: possible look-ahead leakage", metric, r, t.Leakage)
		f.Details = map[string]any{"metric": metric, "verdict": VerdictLeakage}
		return f, true
	case VerdictCaution:
		f := Findingf(CheckLeakage, SeverityWarning, r, t.Caution,
			"%s correlation %.3f exceeds caution level %.2f", metric, r, t.Caution)
		f.Details = map[string]any{"metric": metric, "verdict": VerdictCaution}
		return f, true
	}
	return Finding{}, false
}
