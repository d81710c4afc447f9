package service

import "errors"

var (
	// ErrInvalidRequest means the batch range is empty or inverted.
	ErrInvalidRequest = errors.New("invalid batch request")
	// ErrSnapshotLoad aborts a batch: nothing can be computed without a snapshot.
	ErrSnapshotLoad = errors.New("snapshot load failed")
	// ErrFatalUnit aborts a batch when a unit reports a fatal failure.
	ErrFatalUnit = errors.New("fatal unit failure")
	// ErrQueueClosed means the job queue closed before every job was enqueued.
	ErrQueueClosed = errors.New("job queue closed")
	// ErrWrite means at least one write batch failed after retries.
	ErrWrite = errors.New("projection write failed")
)
