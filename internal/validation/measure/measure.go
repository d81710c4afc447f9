// Package measure implements the accuracy statistics used by the
// validators: Pearson correlation with a bootstrap interval, absolute error
// percentiles, Brier score, log loss and rank AUC.
package measure

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Bootstrap defaults.
const (
	DefaultBootstrapSamples = 1000
	DefaultMinSuccessful    = 100
	DefaultSeed             = 42

	ciLower = 0.025
	ciUpper = 0.975

	minPearsonSamples = 3
	probFloor         = 1e-4
	probCeil          = 1 - probFloor
)

// Pearson returns the sample correlation of x and y.
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return math.NaN(), fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(x), len(y))
	}
	if len(x) < minPearsonSamples {
		return math.NaN(), fmt.Errorf("%w: %d pairs", ErrInsufficientSamples, len(x))
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return math.NaN(), ErrDegenerate
	}
	return r, nil
}

// PValue is the two-sided significance of r over n pairs under a Student t
// with n-2 degrees of freedom.
func PValue(r float64, n int) float64 {
	if n <= 2 || math.IsNaN(r) {
		return math.NaN()
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * (1 - tDist.CDF(math.Abs(t)))
}

// BootstrapConfig controls resampling.
type BootstrapConfig struct {
	Samples       int
	MinSuccessful int
	Seed          uint64
}

// DefaultBootstrap returns 1000 resamples, at least 100 successful, seed 42.
func DefaultBootstrap() BootstrapConfig {
	return BootstrapConfig{Samples: DefaultBootstrapSamples, MinSuccessful: DefaultMinSuccessful, Seed: DefaultSeed}
}

// Interval is a percentile bootstrap confidence interval.
type Interval struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Successful int     `json:"successful"`
	Requested  int     `json:"requested"`
}

// BootstrapPearson resamples pairs with replacement and takes the 2.5 and
// 97.5 percentiles of the resampled correlations. Degenerate resamples are
// skipped; fewer than MinSuccessful survivors is an error, reported with
// the counts. Bounds stay zero on error.
func BootstrapPearson(x, y []float64, cfg BootstrapConfig) (Interval, error) {
	iv := Interval{Requested: cfg.Samples}
	if len(x) != len(y) {
		return iv, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(x), len(y))
	}
	n := len(x)
	if n < minPearsonSamples {
		return iv, fmt.Errorf("%w: %d pairs", ErrInsufficientSamples, n)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	rs := make([]float64, 0, cfg.Samples)
	bx, by := make([]float64, n), make([]float64, n)
	for i := 0; i < cfg.Samples; i++ {
		for j := 0; j < n; j++ {
			k := rng.IntN(n)
			bx[j], by[j] = x[k], y[k]
		}
		if r, err := Pearson(bx, by); err == nil {
			rs = append(rs, r)
		}
	}
	iv.Successful = len(rs)
	if iv.Successful < cfg.MinSuccessful || iv.Successful == 0 {
		return iv, fmt.Errorf("%w: %d of %d", ErrBootstrapFailed, iv.Successful, cfg.Samples)
	}
	sort.Float64s(rs)
	iv.Lower = stat.Quantile(ciLower, stat.Empirical, rs, nil)
	iv.Upper = stat.Quantile(ciUpper, stat.Empirical, rs, nil)
	return iv, nil
}

// Correlation is a Pearson estimate with its significance and interval.
// Valid is false when the pairs could not support an estimate; R and P are
// then zero so the value stays JSON-encodable.
type Correlation struct {
	Valid   bool     `json:"valid"`
	N       int      `json:"n"`
	R       float64  `json:"r"`
	P       float64  `json:"p_value"`
	CI      Interval `json:"ci"`
	CIError string   `json:"ci_error,omitempty"`
	Skipped string   `json:"skipped,omitempty"`
}

// Correlate estimates r, its p-value and a bootstrap interval. A failed
// bootstrap leaves the point estimate valid and records the reason.
func Correlate(x, y []float64, cfg BootstrapConfig) Correlation {
	c := Correlation{N: len(x)}
	r, err := Pearson(x, y)
	if err != nil {
		c.Skipped = err.Error()
		return c
	}
	c.Valid, c.R, c.P = true, r, PValue(r, len(x))
	if iv, err := BootstrapPearson(x, y, cfg); err != nil {
		c.CI, c.CIError = iv, err.Error()
	} else {
		c.CI = iv
	}
	return c
}

// ErrorSummary describes absolute errors between forecasts and outcomes.
type ErrorSummary struct {
	N   int     `json:"n"`
	MAE float64 `json:"mae"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// AbsoluteErrors returns the mean absolute error and its nearest-rank
// percentiles.
func AbsoluteErrors(predicted, actual []float64) (ErrorSummary, error) {
	if len(predicted) != len(actual) {
		return ErrorSummary{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(predicted), len(actual))
	}
	if len(predicted) == 0 {
		return ErrorSummary{}, fmt.Errorf("%w: no pairs", ErrInsufficientSamples)
	}
	errs := make(stats.Float64Data, len(predicted))
	for i := range predicted {
		errs[i] = math.Abs(predicted[i] - actual[i])
	}

	out := ErrorSummary{N: len(errs)}
	var err error
	if out.MAE, err = stats.Mean(errs); err != nil {
		return ErrorSummary{}, err
	}
	for _, p := range []struct {
		pct float64
		dst *float64
	}{{25, &out.P25}, {50, &out.P50}, {75, &out.P75}, {95, &out.P95}} {
		if *p.dst, err = stats.PercentileNearestRank(errs, p.pct); err != nil {
			return ErrorSummary{}, err
		}
	}
	return out, nil
}

// Brier returns mean((p - outcome)^2) with outcomes in {0, 1}.
func Brier(probs []float64, outcomes []bool) (float64, error) {
	if len(probs) != len(outcomes) {
		return math.NaN(), fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(probs), len(outcomes))
	}
	if len(probs) == 0 {
		return math.NaN(), fmt.Errorf("%w: no outcomes", ErrInsufficientSamples)
	}
	var sum float64
	for i, p := range probs {
		d := p - indicator(outcomes[i])
		sum += d * d
	}
	return sum / float64(len(probs)), nil
}

// LogLoss returns the mean binary cross-entropy with p clamped to
// [0.0001, 0.9999].
func LogLoss(probs []float64, outcomes []bool) (float64, error) {
	if len(probs) != len(outcomes) {
		return math.NaN(), fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(probs), len(outcomes))
	}
	if len(probs) == 0 {
		return math.NaN(), fmt.Errorf("%w: no outcomes", ErrInsufficientSamples)
	}
	var sum float64
	for i, p := range probs {
		p = math.Min(math.Max(p, probFloor), probCeil)
		if outcomes[i] {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(probs)), nil
}

// AUC is the probability that a random positive scores above a random
// negative, ties counting one half. It is computed from average ranks.
func AUC(scores []float64, positive []bool) (float64, error) {
	if len(scores) != len(positive) {
		return math.NaN(), fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(scores), len(positive))
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	var nPos, nNeg int
	var rankSum float64
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && scores[idx[j]] == scores[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks i+1..j
		for k := i; k < j; k++ {
			if positive[idx[k]] {
				nPos++
				rankSum += avg
			} else {
				nNeg++
			}
		}
		i = j
	}
	if nPos == 0 || nNeg == 0 {
		return math.NaN(), fmt.Errorf("%w: %d positives, %d negatives", ErrSingleClass, nPos, nNeg)
	}
	return (rankSum - float64(nPos)*float64(nPos+1)/2) / (float64(nPos) * float64(nNeg)), nil
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
