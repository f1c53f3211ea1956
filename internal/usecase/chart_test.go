package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	tickcache "PricePulse/internal/cache"
	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	pkgcache "PricePulse/pkg/cache"
	applogger "PricePulse/pkg/logger"
)

type fakeTickStore struct {
	rows       []models.Tick
	rangeErr   error
	latestErr  error
	rangeCalls int
	inserted   []models.Tick
	insertErr  error
}

func (s *fakeTickStore) Insert(_ context.Context, t *models.Tick) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, *t)
	return nil
}

func (s *fakeTickStore) Range(_ context.Context, from, to time.Time) ([]models.Tick, error) {
	s.rangeCalls++
	if s.rangeErr != nil {
		return nil, s.rangeErr
	}
	out := make([]models.Tick, 0, len(s.rows))
	for _, t := range s.rows {
		if !t.Timestamp.Before(from) && !t.Timestamp.After(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTickStore) Latest(_ context.Context, n int) ([]models.Tick, error) {
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	if len(s.rows) == 0 {
		return nil, nil
	}
	if n > len(s.rows) {
		n = len(s.rows)
	}
	return s.rows[len(s.rows)-n:], nil
}

func (s *fakeTickStore) Health(context.Context) error { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordPoll(string)             {}
func (nopMetrics) SetBackoff(bool)               {}
func (nopMetrics) SetCacheSize(int)              {}
func (nopMetrics) SetRelayClients(int)           {}
func (nopMetrics) RecordBroadcast(string)        {}
func (nopMetrics) RecordError(string)            {}
func (nopMetrics) RecordLatency(string, float64) {}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

var chartNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func tickAt(offset time.Duration, price float64) models.Tick {
	return models.Tick{Timestamp: chartNow.Add(offset), Price: price, Change: 1, Volume: 10}
}

func newChartUC(t *testing.T, ticks *tickcache.Bounded, store *fakeTickStore, opts ...ChartOption) *ChartUseCase {
	t.Helper()
	uc := NewChartUseCase(ticks, store, nopMetrics{}, testLogger(t), opts...)
	uc.now = func() time.Time { return chartNow }
	return uc
}

func TestGetChartServesFromMemoryWhenCovered(t *testing.T) {
	ticks := tickcache.NewBounded(100)
	// Earliest cached tick predates the 24h cutoff for 1m.
	ticks.Append(tickAt(-25*time.Hour, 90))
	ticks.Append(tickAt(-2*time.Minute, 100))
	ticks.Append(tickAt(-1*time.Minute, 101))
	store := &fakeTickStore{}

	uc := newChartUC(t, ticks, store)
	resp, err := uc.GetChart(context.Background(), GetChartParams{Granularity: domrepo.G1m, Page: 0, Limit: 500})
	if err != nil {
		t.Fatalf("GetChart: %v", err)
	}
	if store.rangeCalls != 0 {
		t.Fatalf("expected no store query, got %d", store.rangeCalls)
	}
	if len(resp.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(resp.Points))
	}
	if resp.Latest == nil || resp.Latest.Price != 101 {
		t.Fatalf("unexpected latest: %+v", resp.Latest)
	}
}

func TestGetChartFallsBackToStore(t *testing.T) {
	ticks := tickcache.NewBounded(100)
	// Cache only reaches back 2 minutes, the 1m window needs 24h.
	ticks.Append(tickAt(-2*time.Minute, 100))
	store := &fakeTickStore{rows: []models.Tick{
		tickAt(-3*time.Hour, 95),
		tickAt(-1*time.Hour, 97),
	}}

	uc := newChartUC(t, ticks, store)
	resp, err := uc.GetChart(context.Background(), GetChartParams{Granularity: domrepo.G1m, Page: 0, Limit: 500})
	if err != nil {
		t.Fatalf("GetChart: %v", err)
	}
	if store.rangeCalls != 1 {
		t.Fatalf("expected 1 store query, got %d", store.rangeCalls)
	}
	if len(resp.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(resp.Points))
	}
}

func TestGetChartStoreFailure(t *testing.T) {
	ticks := tickcache.NewBounded(100)
	store := &fakeTickStore{rangeErr: errors.New("connection refused")}

	uc := newChartUC(t, ticks, store)
	if _, err := uc.GetChart(context.Background(), GetChartParams{Granularity: domrepo.G1h, Page: 0, Limit: 500}); err == nil {
		t.Fatal("expected error when store query fails")
	}
}

func TestGetChartPagination(t *testing.T) {
	ticks := tickcache.NewBounded(100)
	ticks.Append(tickAt(-25*time.Hour, 90))
	for i := 0; i < 5; i++ {
		ticks.Append(tickAt(time.Duration(-10+i)*time.Minute, 100+float64(i)))
	}
	store := &fakeTickStore{}
	uc := newChartUC(t, ticks, store)

	first, err := uc.GetChart(context.Background(), GetChartParams{Granularity: domrepo.G1m, Page: 0, Limit: 2})
	if err != nil {
		t.Fatalf("GetChart page 0: %v", err)
	}
	if len(first.Points) != 2 || !first.HasMore {
		t.Fatalf("unexpected first page: points=%d hasMore=%v", len(first.Points), first.HasMore)
	}
	if first.NextPage == nil || *first.NextPage != 1 {
		t.Fatalf("unexpected nextPage: %v", first.NextPage)
	}

	second, err := uc.GetChart(context.Background(), GetChartParams{Granularity: domrepo.G1m, Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("GetChart page 1: %v", err)
	}
	if len(second.Points) != 2 {
		t.Fatalf("expected 2 points on page 1, got %d", len(second.Points))
	}
	if second.Points[0].Timestamp.Before(first.Points[1].Timestamp) {
		t.Fatal("pages out of order")
	}

	past, err := uc.GetChart(context.Background(), GetChartParams{Granularity: domrepo.G1m, Page: 99, Limit: 2})
	if err != nil {
		t.Fatalf("GetChart past end: %v", err)
	}
	if len(past.Points) != 0 || past.HasMore || past.NextPage != nil {
		t.Fatalf("expected empty page past the end, got %+v", past)
	}
}

func TestGetChartRejectsBadParams(t *testing.T) {
	uc := newChartUC(t, tickcache.NewBounded(10), &fakeTickStore{})

	cases := []GetChartParams{
		{Granularity: "2m", Page: 0, Limit: 10},
		{Granularity: domrepo.G1m, Page: -1, Limit: 10},
		{Granularity: domrepo.G1m, Page: 0, Limit: 0},
		{Granularity: domrepo.G1m, Page: 0, Limit: 20001},
	}
	for _, p := range cases {
		if _, err := uc.GetChart(context.Background(), p); err == nil {
			t.Fatalf("expected error for params %+v", p)
		}
	}
}

func TestGetChartResponseCache(t *testing.T) {
	ticks := tickcache.NewBounded(100)
	ticks.Append(tickAt(-25*time.Hour, 90))
	ticks.Append(tickAt(-1*time.Minute, 100))
	store := &fakeTickStore{}
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()

	uc := newChartUC(t, ticks, store, WithResponseCache(mem, time.Minute))

	p := GetChartParams{Granularity: domrepo.G1m, Page: 0, Limit: 500}
	first, err := uc.GetChart(context.Background(), p)
	if err != nil {
		t.Fatalf("GetChart: %v", err)
	}

	// A new tick must not show up until the cached page expires.
	ticks.Append(tickAt(-30*time.Second, 200))
	second, err := uc.GetChart(context.Background(), p)
	if err != nil {
		t.Fatalf("GetChart cached: %v", err)
	}
	if len(second.Points) != len(first.Points) {
		t.Fatalf("expected cached response, got %d points vs %d", len(second.Points), len(first.Points))
	}
}

func TestGetLatestFromCache(t *testing.T) {
	ticks := tickcache.NewBounded(10)
	ticks.Append(tickAt(-time.Minute, 123))
	uc := newChartUC(t, ticks, &fakeTickStore{})

	got, err := uc.GetLatest(context.Background())
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got.Price != 123 {
		t.Fatalf("unexpected latest: %+v", got)
	}
}

func TestGetLatestFromStoreWhenCacheEmpty(t *testing.T) {
	store := &fakeTickStore{rows: []models.Tick{tickAt(-time.Hour, 88)}}
	uc := newChartUC(t, tickcache.NewBounded(10), store)

	got, err := uc.GetLatest(context.Background())
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if got.Price != 88 {
		t.Fatalf("unexpected latest: %+v", got)
	}
}

func TestGetLatestNoData(t *testing.T) {
	uc := newChartUC(t, tickcache.NewBounded(10), &fakeTickStore{})

	if _, err := uc.GetLatest(context.Background()); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestTickInsertJobReinserts(t *testing.T) {
	store := &fakeTickStore{}
	job := NewTickInsertJob(store, nopMetrics{})

	tick := tickAt(-time.Minute, 55)
	raw, err := json.Marshal(tick)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := job.Handle(context.Background(), json.RawMessage(raw)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(store.inserted) != 1 || store.inserted[0].Price != 55 {
		t.Fatalf("unexpected inserts: %+v", store.inserted)
	}
}

func TestTickInsertJobPropagatesStoreError(t *testing.T) {
	store := &fakeTickStore{insertErr: errors.New("still down")}
	job := NewTickInsertJob(store, nopMetrics{})

	tick := tickAt(-time.Minute, 55)
	if err := job.Handle(context.Background(), tick); err == nil {
		t.Fatal("expected error when store insert fails")
	}
}
