package aggregate

import (
	"math"
	"sort"
	"time"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
)

var widths = map[domrepo.Granularity]time.Duration{
	domrepo.G1m:  time.Minute,
	domrepo.G5m:  5 * time.Minute,
	domrepo.G30m: 30 * time.Minute,
	domrepo.G1h:  time.Hour,
	domrepo.G1d:  24 * time.Hour,
}

// Width returns the fixed bucket width for a granularity.
func Width(g domrepo.Granularity) time.Duration {
	if w, ok := widths[g]; ok {
		return w
	}
	return widths[domrepo.DefaultGranularity()]
}

// Window returns how far back a single request for a granularity may scan.
func Window(g domrepo.Granularity) time.Duration {
	switch g {
	case domrepo.G1d:
		return 30 * 24 * time.Hour
	case domrepo.G1h:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Cutoff returns the lower-bound instant for a query at granularity g.
func Cutoff(now time.Time, g domrepo.Granularity) time.Time {
	return now.UTC().Add(-Window(g))
}

// Buckets folds rows into fixed-width windows for the granularity. Keys are
// the row timestamp in UTC milliseconds floored to the bucket width, so the
// result is identical regardless of server local time. Rows are sorted by
// timestamp before folding; within a bucket price and change take the value
// of the latest row and volume accumulates, counting non-finite volume as 0.
// The result is sorted ascending with one bucket per distinct key.
func Buckets(rows []models.Tick, g domrepo.Granularity) []models.Bucket {
	if len(rows) == 0 {
		return []models.Bucket{}
	}

	sorted := make([]models.Tick, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	width := Width(g).Milliseconds()
	byKey := make(map[int64]*models.Bucket)
	for i := range sorted {
		r := &sorted[i]
		key := floorTo(r.Timestamp.UTC().UnixMilli(), width)

		b, ok := byKey[key]
		if !ok {
			b = &models.Bucket{Timestamp: time.UnixMilli(key).UTC()}
			byKey[key] = b
		}
		b.Price = r.Price
		b.Change = r.Change
		if !math.IsNaN(r.Volume) && !math.IsInf(r.Volume, 0) {
			b.Volume += r.Volume
		}
	}

	out := make([]models.Bucket, 0, len(byKey))
	for _, b := range byKey {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Rebucket folds already-bucketed points at the same granularity. Used to
// verify idempotence and to coarsen cached points to a wider granularity.
func Rebucket(points []models.Bucket, g domrepo.Granularity) []models.Bucket {
	rows := make([]models.Tick, len(points))
	for i, p := range points {
		rows[i] = models.Tick{
			Timestamp: p.Timestamp,
			Price:     p.Price,
			Change:    p.Change,
			Volume:    p.Volume,
		}
	}
	return Buckets(rows, g)
}

func floorTo(ms, width int64) int64 {
	q := ms / width
	if ms%width != 0 && ms < 0 {
		q--
	}
	return q * width
}
