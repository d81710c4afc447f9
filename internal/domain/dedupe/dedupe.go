// Package dedupe tracks projection keys already scheduled in a batch so every
// (player, game, date) is computed at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"

	"github.com/okian/projector/internal/domain/model"
)

const defaultMaxSize = 100_000

// Deduper records seen projection keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key model.Key) bool

	Size() int
}

// inMemoryDeduper keeps keys in a map. In bounded mode (maxSize > 0) the
// oldest key is evicted first; otherwise the set grows without limit.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		seen:    make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key model.Key) bool {
	id := key.String()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			delete(d.seen, d.order.Remove(oldest).(string))
		}
	}
	d.seen[id] = d.order.PushBack(id)
	return false
}

// Size returns the current number of recorded keys.
func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
