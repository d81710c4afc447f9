package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for the projection pipeline. These allow errors.Is from callers.
var (
	// ErrMissingEntity means a player, game, goalie or league row was not found.
	ErrMissingEntity = errors.New("missing entity")
	// ErrInsufficientData means an optional aggregate was absent and a neutral default applies.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrImplausibleResult means a computed projection violated a sanity bound.
	ErrImplausibleResult = errors.New("implausible result")
	// ErrInvalidInput means an input value could not be parsed or is out of range.
	ErrInvalidInput = errors.New("invalid input")
)

// Kind tells the batch runner what to do with a failed unit.
type Kind int

// Failure kinds.
const (
	// KindSkip drops the unit and counts it as failed.
	KindSkip Kind = iota
	// KindRetry marks a transient failure worth another attempt.
	KindRetry
	// KindFatal aborts the whole batch.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindSkip:
		return "skip"
	case KindRetry:
		return "retry"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

// UnitError is the failure of one (player, game) unit.
type UnitError struct {
	Kind     Kind
	PlayerID string
	GameID   string
	Err      error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s player=%s game=%s: %v", e.Kind, e.PlayerID, e.GameID, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// Skip builds a KindSkip unit error.
func Skip(playerID, gameID string, err error) *UnitError {
	return &UnitError{Kind: KindSkip, PlayerID: playerID, GameID: gameID, Err: err}
}

// Missing builds a KindSkip unit error wrapping ErrMissingEntity.
func Missing(playerID, gameID, what string) *UnitError {
	return Skip(playerID, gameID, fmt.Errorf("%w: %s", ErrMissingEntity, what))
}

// KindOf classifies any error. Unknown errors are treated as skips so one
// bad unit never aborts a batch.
func KindOf(err error) Kind {
	var ue *UnitError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindSkip
}

// Reason returns a short label for metrics and summaries.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMissingEntity):
		return "missing_entity"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, ErrImplausibleResult):
		return "implausible_result"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	}
	return "other"
}
