package measure

import "errors"

var (
	ErrLengthMismatch      = errors.New("series lengths differ")
	ErrInsufficientSamples = errors.New("insufficient samples")
	// ErrDegenerate means a series has zero variance.
	ErrDegenerate      = errors.New("degenerate series")
	ErrBootstrapFailed = errors.New("too few successful bootstrap resamples")
	ErrSingleClass     = errors.New("outcomes contain a single class")
)
