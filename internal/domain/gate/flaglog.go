package gate

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// FlagRecord is one line of the flag log.
type FlagRecord struct {
	RunID    string    `json:"run_id"`
	LoggedAt time.Time `json:"logged_at"`
	Tier     string    `json:"tier"`
	Mean     float64   `json:"batch_mean"`
	StdDev   float64   `json:"batch_std_dev"`
	Flagged
}

// WriteFlagLog writes every review and rejected item as JSON Lines with its
// full multiplier breakdown. Rejected items come first.
func WriteFlagLog(w io.Writer, runID string, at time.Time, d Decision) error {
	enc := json.NewEncoder(w)
	write := func(items []Flagged) error {
		for _, f := range items {
			rec := FlagRecord{
				RunID:    runID,
				LoggedAt: at.UTC(),
				Tier:     string(f.Projection.Status),
				Mean:     d.Mean,
				StdDev:   d.StdDev,
				Flagged:  f,
			}
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("encode flag record %s: %w", f.Projection.Key, err)
			}
		}
		return nil
	}
	if err := write(d.Rejected); err != nil {
		return err
	}
	return write(d.Review)
}
