// Package exchange turns raw capture events and HAR archives into
// ordered CapturedExchange values and owns the bounded session buffer.
package exchange

import (
	"sync"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// DefaultMaxExchanges caps how many exchanges a session retains.
const DefaultMaxExchanges = 500

// Buffer is a bounded append-only exchange window. Session indices keep
// growing after eviction so correlation links into retained exchanges
// stay stable.
type Buffer struct {
	mu      sync.Mutex
	max     int
	next    int
	dropped int
	items   []types.CapturedExchange
}

// NewBuffer returns a buffer retaining at most max exchanges;
// max <= 0 selects DefaultMaxExchanges.
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = DefaultMaxExchanges
	}
	return &Buffer{max: max}
}

// Append assigns the next session index to ex, stores it and returns
// the stored value. The oldest exchanges are evicted beyond the cap.
func (b *Buffer) Append(ex types.CapturedExchange) types.CapturedExchange {
	b.mu.Lock()
	defer b.mu.Unlock()

	ex.Index = b.next
	b.next++
	b.items = append(b.items, ex)
	if over := len(b.items) - b.max; over > 0 {
		b.items = append(b.items[:0:0], b.items[over:]...)
		b.dropped += over
	}
	return ex
}

// Snapshot copies the retained window in index order.
func (b *Buffer) Snapshot() []types.CapturedExchange {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.CapturedExchange, len(b.items))
	copy(out, b.items)
	return out
}

// Len reports how many exchanges are currently retained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dropped reports how many exchanges were evicted so far.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Reset clears the window and restarts indexing at zero.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
	b.next = 0
	b.dropped = 0
}
