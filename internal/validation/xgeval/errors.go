package xgeval

import "errors"

var (
	ErrInvalidRange = errors.New("invalid validation range")
	ErrLoad         = errors.New("shot log load failed")
)
