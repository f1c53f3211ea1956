package repository

// Granularity selects a bucket width for chart aggregation.
type Granularity string

const (
	G1m  Granularity = "1m"
	G5m  Granularity = "5m"
	G30m Granularity = "30m"
	G1h  Granularity = "1h"
	G1d  Granularity = "D"
)

// IsValidGranularity returns true if g is a supported granularity.
func IsValidGranularity(g Granularity) bool {
	switch g {
	case G1m, G5m, G30m, G1h, G1d:
		return true
	default:
		return false
	}
}

// DefaultGranularity returns the default granularity.
func DefaultGranularity() Granularity { return G1m }

// NormalizeGranularity converts raw string to a valid granularity (or default).
func NormalizeGranularity(s string) Granularity {
	if s == "" {
		return DefaultGranularity()
	}
	g := Granularity(s)
	if IsValidGranularity(g) {
		return g
	}
	return DefaultGranularity()
}
