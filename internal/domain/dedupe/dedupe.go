// Package dedupe tracks idempotency keys so a retried write is applied once.
package dedupe

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

const defaultMaxSize = 10_000

// ErrInProgress is returned to a retry whose key is still being written.
var ErrInProgress = errors.New("request with this idempotency key is in progress")

// State is what Claim found for a key.
type State int

const (
	// Claimed means the key was new and the caller now owns the write.
	Claimed State = iota
	// InProgress means another caller owns the key and has not finished.
	InProgress
	// Done means a write with this key completed successfully.
	Done
)

func (s State) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case InProgress:
		return "in_progress"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Deduper records idempotency keys and the state of their writes.
type Deduper interface {
	// Claim atomically looks key up and, when it is unknown, records it as
	// in progress on behalf of the caller.
	Claim(ctx context.Context, key string) State

	// Complete marks a claimed key as written. Later claims report Done.
	Complete(ctx context.Context, key string)

	// Release forgets a claimed key so the client may retry after a failed write.
	Release(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key  string
	done bool
}

// inMemoryDeduper keeps keys in insertion order. Once maxSize is reached
// the oldest completed key is evicted; in-progress keys are evicted only
// when nothing else is left. maxSize <= 0 means unbounded.
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

func (d *inMemoryDeduper) Claim(_ context.Context, key string) State {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, exists := d.seen[key]; exists {
		if el.Value.(*entry).done {
			return Done
		}
		return InProgress
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evict()
	}
	d.seen[key] = d.order.PushBack(&entry{key: key})
	return Claimed
}

// evict drops the oldest completed key, or the oldest key if none is done.
func (d *inMemoryDeduper) evict() {
	victim := d.order.Front()
	for el := victim; el != nil; el = el.Next() {
		if el.Value.(*entry).done {
			victim = el
			break
		}
	}
	d.order.Remove(victim)
	delete(d.seen, victim.Value.(*entry).key)
}

func (d *inMemoryDeduper) Complete(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, exists := d.seen[key]; exists {
		el.Value.(*entry).done = true
	}
}

func (d *inMemoryDeduper) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, exists := d.seen[key]; exists && !el.Value.(*entry).done {
		d.order.Remove(el)
		delete(d.seen, key)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}
