package cache

import (
	"testing"
	"time"

	"PricePulse/internal/domain/models"
)

func tick(sec int) models.Tick {
	return models.Tick{
		Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(sec) * time.Second),
		Price:     float64(sec),
	}
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	b := NewBounded(3)
	for i := 0; i < 4; i++ {
		b.Append(tick(i))
	}

	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}
	got := b.Since(time.Time{})
	if len(got) != 3 {
		t.Fatalf("since returned %d ticks", len(got))
	}
	for i, want := range []float64{1, 2, 3} {
		if got[i].Price != want {
			t.Fatalf("tick %d price = %v, want %v", i, got[i].Price, want)
		}
	}
}

func TestNeverExceedsCapacity(t *testing.T) {
	b := NewBounded(10)
	for i := 0; i < 100; i++ {
		b.Append(tick(i))
		if b.Len() > 10 {
			t.Fatalf("len %d exceeds capacity after append %d", b.Len(), i)
		}
	}
	last, ok := b.Last()
	if !ok || last.Price != 99 {
		t.Fatalf("last = %v ok=%v, want price 99", last, ok)
	}
}

func TestSinceFiltersByCutoff(t *testing.T) {
	b := NewBounded(5)
	for i := 0; i < 5; i++ {
		b.Append(tick(i * 10))
	}

	got := b.Since(tick(20).Timestamp)
	if len(got) != 3 {
		t.Fatalf("since returned %d ticks, want 3", len(got))
	}
	if got[0].Price != 20 {
		t.Fatalf("first tick price = %v, want 20", got[0].Price)
	}
}

func TestLastEmpty(t *testing.T) {
	b := NewBounded(5)
	if _, ok := b.Last(); ok {
		t.Fatalf("expected no last tick on empty cache")
	}
}

func TestCovers(t *testing.T) {
	b := NewBounded(5)
	if b.Covers(time.Time{}) {
		t.Fatalf("empty cache must not cover any cutoff")
	}
	for i := 0; i < 3; i++ {
		b.Append(tick(i * 10))
	}
	if !b.Covers(tick(0).Timestamp) {
		t.Fatalf("expected coverage from first cached tick")
	}
	if b.Covers(tick(0).Timestamp.Add(-time.Second)) {
		t.Fatalf("coverage must not extend before the first cached tick")
	}
}
