package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// Sentinel kinds for store errors.
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	// ErrTransient marks failures worth retrying: lock contention,
	// serialization conflicts, dropped connections, timeouts.
	ErrTransient = errors.New("transient store failure")
)

// SQLite primary result codes.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// classify wraps err with ErrTransient when a retry may succeed.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "40", "08", "53", "57":
			// transaction rollback, connection, resources, operator intervention
			return true
		}
		return false
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code() & 0xff
		return code == sqliteBusy || code == sqliteLocked
	}
	return false
}
