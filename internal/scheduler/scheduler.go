package scheduler

import (
	"context"
	"sync"
	"time"

	"PricePulse/internal/cache"
	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	applogger "PricePulse/pkg/logger"
)

// Mode is the poll cadence state. Exactly one is active at a time.
type Mode int

const (
	ModeNormal Mode = iota
	ModeBackoff
)

func (m Mode) String() string {
	if m == ModeBackoff {
		return "backoff"
	}
	return "normal"
}

// RetryMessageType is the retry-queue message type for failed tick inserts.
const RetryMessageType = "tick_insert"

// Scheduler drives the tick source on a timer and owns the backoff state
// machine. Only one scheduler should run per process: backoff state is
// inherently singular for one upstream identity.
//
// Transitions: Normal->Backoff on RateLimited, Backoff->Normal on the next
// Success (a single success ends backoff, no gradual ramp). SoftFailure and
// overlapping timer fires are self-loops.
type Scheduler struct {
	source  domrepo.TickSource
	cache   *cache.Bounded
	store   domrepo.TickStore
	pub     domrepo.TickPublisher // optional
	retry   domrepo.RetryQueue    // optional
	metrics domrepo.Metrics
	log     *applogger.Logger

	normalEvery  time.Duration
	backoffEvery time.Duration

	mu         sync.Mutex
	mode       Mode
	inProgress bool
}

// Option configures Scheduler.
type Option func(*Scheduler)

// WithPublisher attaches a downstream tick publisher.
func WithPublisher(pub domrepo.TickPublisher) Option {
	return func(s *Scheduler) { s.pub = pub }
}

// WithRetryQueue attaches a retry queue for failed durable writes.
func WithRetryQueue(q domrepo.RetryQueue) Option {
	return func(s *Scheduler) { s.retry = q }
}

// WithIntervals overrides the normal and backoff poll intervals.
func WithIntervals(normal, backoff time.Duration) Option {
	return func(s *Scheduler) {
		if normal > 0 {
			s.normalEvery = normal
		}
		if backoff > 0 {
			s.backoffEvery = backoff
		}
	}
}

// New creates a Scheduler in Normal mode.
func New(
	source domrepo.TickSource,
	tickCache *cache.Bounded,
	store domrepo.TickStore,
	metrics domrepo.Metrics,
	log *applogger.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		source:       source,
		cache:        tickCache,
		store:        store,
		metrics:      metrics,
		log:          log,
		normalEvery:  20 * time.Second,
		backoffEvery: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the current cadence state.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("poll scheduler started",
		applogger.Duration("normal_ms", s.normalEvery),
		applogger.Duration("backoff_ms", s.backoffEvery),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("poll scheduler stopped")
			return
		case <-timer.C:
			timer.Reset(s.poll(ctx))
		}
	}
}

// poll handles one timer fire and returns the delay until the next one.
func (s *Scheduler) poll(ctx context.Context) time.Duration {
	s.mu.Lock()
	if s.inProgress {
		// No-overlap guard: at most one fetch in flight. Coalesce into a
		// reschedule at the interval the current mode implies.
		next := s.intervalLocked()
		s.mu.Unlock()
		s.log.Warn("poll skipped: fetch already in progress")
		s.metrics.RecordPoll("skipped")
		return next
	}
	s.inProgress = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inProgress = false
		s.mu.Unlock()
	}()

	start := time.Now()
	out := s.source.FetchOne(ctx)
	s.metrics.RecordLatency("fetch", time.Since(start).Seconds())

	switch out.Status {
	case domrepo.RateLimited:
		return s.onRateLimited()
	case domrepo.Success:
		return s.onSuccess(ctx, out.Tick)
	default:
		return s.onSoftFailure(out.Reason)
	}
}

func (s *Scheduler) onRateLimited() time.Duration {
	s.mu.Lock()
	s.mode = ModeBackoff
	s.mu.Unlock()

	s.log.Warn("upstream rate limited, backing off",
		applogger.Duration("next_ms", s.backoffEvery))
	s.metrics.RecordPoll("rate_limited")
	s.metrics.SetBackoff(true)
	return s.backoffEvery
}

func (s *Scheduler) onSoftFailure(reason string) time.Duration {
	// Transient upstream issues are not rate limiting and must not stall
	// future polling. Mode is untouched.
	s.mu.Lock()
	next := s.intervalLocked()
	s.mu.Unlock()

	s.log.Warn("poll soft failure", applogger.String("reason", reason))
	s.metrics.RecordPoll("soft_failure")
	return next
}

func (s *Scheduler) onSuccess(ctx context.Context, t *models.Tick) time.Duration {
	s.mu.Lock()
	if s.mode == ModeBackoff {
		s.mode = ModeNormal
		s.mu.Unlock()
		s.log.Info("upstream recovered, resuming normal cadence")
		s.metrics.SetBackoff(false)
	} else {
		s.mu.Unlock()
	}

	s.cache.Append(*t)
	s.metrics.SetCacheSize(s.cache.Len())
	s.persist(ctx, t)
	s.publish(ctx, t)

	s.metrics.RecordPoll("success")
	return s.normalEvery
}

// persist writes the tick to the durable store. Failure is logged and
// enqueued for retry; it never affects scheduling.
func (s *Scheduler) persist(ctx context.Context, t *models.Tick) {
	start := time.Now()
	err := s.store.Insert(ctx, t)
	s.metrics.RecordLatency("store_insert", time.Since(start).Seconds())
	if err == nil {
		return
	}

	s.log.Error("tick persist failed", applogger.Error(err))
	s.metrics.RecordError("store_insert")

	if s.retry == nil {
		return
	}
	if qerr := s.retry.PublishMessage(ctx, RetryMessageType, t); qerr != nil {
		s.log.Error("tick retry enqueue failed", applogger.Error(qerr))
		s.metrics.RecordError("retry_enqueue")
	}
}

// publish forwards the tick to downstream consumers, best-effort.
func (s *Scheduler) publish(ctx context.Context, t *models.Tick) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, t); err != nil {
		s.log.Warn("tick publish failed", applogger.Error(err))
		s.metrics.RecordError("publish")
	}
}

func (s *Scheduler) intervalLocked() time.Duration {
	if s.mode == ModeBackoff {
		return s.backoffEvery
	}
	return s.normalEvery
}
