package backtest

import "errors"

var (
	ErrInvalidRange = errors.New("invalid backtest range")
	ErrLoad         = errors.New("backtest load failed")
)
