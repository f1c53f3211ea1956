package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PricePulse/internal/cache"
	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	applogger "PricePulse/pkg/logger"
)

type fakeSource struct {
	mu       sync.Mutex
	outcomes []domrepo.Outcome
	calls    int
	block    chan struct{} // when set, FetchOne waits until closed
	started  chan struct{}
}

func (f *fakeSource) FetchOne(ctx context.Context) domrepo.Outcome {
	f.mu.Lock()
	f.calls++
	out := domrepo.Failed("no scripted outcome")
	if len(f.outcomes) > 0 {
		out = f.outcomes[0]
		f.outcomes = f.outcomes[1:]
	}
	block := f.block
	started := f.started
	f.mu.Unlock()

	if started != nil {
		close(started)
		f.mu.Lock()
		f.started = nil
		f.mu.Unlock()
	}
	if block != nil {
		<-block
	}
	return out
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	mu       sync.Mutex
	inserted []models.Tick
	failWith error
}

func (f *fakeStore) Insert(ctx context.Context, t *models.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.inserted = append(f.inserted, *t)
	return nil
}

func (f *fakeStore) Range(ctx context.Context, from, to time.Time) ([]models.Tick, error) {
	return nil, nil
}

func (f *fakeStore) Latest(ctx context.Context, n int) ([]models.Tick, error) {
	return nil, nil
}

func (f *fakeStore) Health(ctx context.Context) error { return nil }

type fakeQueue struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msgType)
	return nil
}

type fakePublisher struct {
	err   error
	calls int
}

func (f *fakePublisher) Publish(ctx context.Context, t *models.Tick) error {
	f.calls++
	return f.err
}

func (f *fakePublisher) Close() error { return nil }

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
	l, err := applogger.New(&applogger.Config{Level: "error", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func sampleTick() *models.Tick {
	return &models.Tick{
		Timestamp: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Price:     5.0,
		Change:    1.0,
		Volume:    10.0,
	}
}

func newScheduler(t *testing.T, src domrepo.TickSource, store domrepo.TickStore, opts ...Option) (*Scheduler, *cache.Bounded) {
	t.Helper()
	c := cache.NewBounded(100)
	s := New(src, c, store, nopMetrics{}, testLogger(t), opts...)
	return s, c
}

func TestRateLimitedEntersBackoff(t *testing.T) {
	src := &fakeSource{outcomes: []domrepo.Outcome{domrepo.Throttled()}}
	s, _ := newScheduler(t, src, &fakeStore{})

	next := s.poll(context.Background())
	if s.Mode() != ModeBackoff {
		t.Fatalf("mode = %v, want Backoff", s.Mode())
	}
	if next != 60*time.Second {
		t.Fatalf("next = %v, want 60s", next)
	}
}

func TestSuccessEndsBackoffImmediately(t *testing.T) {
	src := &fakeSource{outcomes: []domrepo.Outcome{
		domrepo.Throttled(),
		domrepo.Succeeded(sampleTick()),
	}}
	store := &fakeStore{}
	s, c := newScheduler(t, src, store)

	s.poll(context.Background())
	next := s.poll(context.Background())

	if s.Mode() != ModeNormal {
		t.Fatalf("mode = %v, want Normal after one success", s.Mode())
	}
	if next != 20*time.Second {
		t.Fatalf("next = %v, want 20s", next)
	}
	if c.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", c.Len())
	}
	if len(store.inserted) != 1 {
		t.Fatalf("store inserts = %d, want 1", len(store.inserted))
	}
}

func TestSoftFailureKeepsMode(t *testing.T) {
	src := &fakeSource{outcomes: []domrepo.Outcome{
		domrepo.Failed("status 500"),
		domrepo.Throttled(),
		domrepo.Failed("decode: bad"),
	}}
	s, c := newScheduler(t, src, &fakeStore{})

	if next := s.poll(context.Background()); next != 20*time.Second {
		t.Fatalf("soft failure in normal mode: next = %v, want 20s", next)
	}
	if s.Mode() != ModeNormal {
		t.Fatalf("mode changed on soft failure")
	}

	s.poll(context.Background()) // enter backoff

	if next := s.poll(context.Background()); next != 60*time.Second {
		t.Fatalf("soft failure in backoff mode: next = %v, want 60s", next)
	}
	if s.Mode() != ModeBackoff {
		t.Fatalf("soft failure must not end backoff")
	}
	if c.Len() != 0 {
		t.Fatalf("nothing should be cached on failures")
	}
}

func TestNoOverlap(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	src := &fakeSource{
		outcomes: []domrepo.Outcome{domrepo.Succeeded(sampleTick())},
		block:    block,
		started:  started,
	}
	s, _ := newScheduler(t, src, &fakeStore{})

	done := make(chan time.Duration, 1)
	go func() {
		done <- s.poll(context.Background())
	}()
	<-started

	// Second timer fire while the first fetch is still in flight.
	next := s.poll(context.Background())
	if next != 20*time.Second {
		t.Fatalf("skip reschedule = %v, want 20s", next)
	}
	if src.callCount() != 1 {
		t.Fatalf("fetch count = %d, want 1 (no overlapping fetch)", src.callCount())
	}

	close(block)
	<-done

	// Guard is released after completion: the next fire fetches again.
	s.poll(context.Background())
	if src.callCount() != 2 {
		t.Fatalf("fetch count = %d, want 2 after release", src.callCount())
	}
}

func TestStoreFailureDoesNotAffectScheduling(t *testing.T) {
	src := &fakeSource{outcomes: []domrepo.Outcome{domrepo.Succeeded(sampleTick())}}
	store := &fakeStore{failWith: errors.New("insert: connection refused")}
	queue := &fakeQueue{}
	s, c := newScheduler(t, src, store, WithRetryQueue(queue))

	next := s.poll(context.Background())
	if next != 20*time.Second {
		t.Fatalf("next = %v, want 20s despite store failure", next)
	}
	if s.Mode() != ModeNormal {
		t.Fatalf("store failure must not change mode")
	}
	if c.Len() != 1 {
		t.Fatalf("tick must still be cached on store failure")
	}
	if len(queue.messages) != 1 || queue.messages[0] != RetryMessageType {
		t.Fatalf("retry queue messages = %v", queue.messages)
	}
}

func TestPublishBestEffort(t *testing.T) {
	src := &fakeSource{outcomes: []domrepo.Outcome{domrepo.Succeeded(sampleTick())}}
	pub := &fakePublisher{err: errors.New("broker down")}
	s, _ := newScheduler(t, src, &fakeStore{}, WithPublisher(pub))

	next := s.poll(context.Background())
	if next != 20*time.Second {
		t.Fatalf("next = %v, want 20s despite publish failure", next)
	}
	if pub.calls != 1 {
		t.Fatalf("publish calls = %d, want 1", pub.calls)
	}
}

func TestCustomIntervals(t *testing.T) {
	src := &fakeSource{outcomes: []domrepo.Outcome{domrepo.Throttled()}}
	s, _ := newScheduler(t, src, &fakeStore{}, WithIntervals(time.Second, 3*time.Second))

	if next := s.poll(context.Background()); next != 3*time.Second {
		t.Fatalf("next = %v, want 3s", next)
	}
}
