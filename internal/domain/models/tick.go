package models

import (
	"math"
	"time"
)

// Tick is one ingested price observation for the configured pair.
type Tick struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Change    float64   `json:"change"` // 24h percent change
	Volume    float64   `json:"volume"` // 24h volume
}

// Valid reports whether every numeric field is finite. Ticks failing this
// are never stored.
func (t *Tick) Valid() bool {
	return isFinite(t.Price) && isFinite(t.Change) && isFinite(t.Volume)
}

// Bucket is an aggregation of ticks over one fixed time window, keyed by
// the window start (UTC).
type Bucket struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`  // last value seen in the window
	Change    float64   `json:"change"` // last value seen in the window
	Volume    float64   `json:"volume"` // sum over the window
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
