package cache

import (
	"sync"
	"time"

	"PricePulse/internal/domain/models"
)

// Bounded is a fixed-capacity FIFO buffer of recent ticks. The oldest tick
// is evicted first; there is no access-based reordering. A single writer
// (the poll scheduler) appends; readers may call Since/Last/Len
// concurrently and always observe a complete append.
type Bounded struct {
	mu    sync.RWMutex
	buf   []models.Tick
	start int
	size  int
}

// NewBounded creates a cache holding at most capacity ticks.
func NewBounded(capacity int) *Bounded {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bounded{buf: make([]models.Tick, capacity)}
}

// Append pushes t to the back, dropping the oldest tick when full.
func (b *Bounded) Append(t models.Tick) {
	b.mu.Lock()
	defer b.mu.Unlock()

	end := (b.start + b.size) % len(b.buf)
	b.buf[end] = t
	if b.size < len(b.buf) {
		b.size++
		return
	}
	b.start = (b.start + 1) % len(b.buf)
}

// Since returns the ordered ticks with timestamp >= cutoff. The result is a
// copy and safe to retain.
func (b *Bounded) Since(cutoff time.Time) []models.Tick {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Tick, 0, b.size)
	for i := 0; i < b.size; i++ {
		t := b.buf[(b.start+i)%len(b.buf)]
		if !t.Timestamp.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// Last returns the most recent tick, or false when the cache is empty.
func (b *Bounded) Last() (models.Tick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return models.Tick{}, false
	}
	return b.buf[(b.start+b.size-1)%len(b.buf)], true
}

// Len returns the current number of cached ticks.
func (b *Bounded) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Covers reports whether the cached window reaches back to cutoff, i.e.
// a query from cutoff forward can be served without the durable store.
func (b *Bounded) Covers(cutoff time.Time) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return false
	}
	return !b.buf[b.start].Timestamp.After(cutoff)
}
