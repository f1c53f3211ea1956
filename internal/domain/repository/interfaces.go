package repository

import (
	"context"
	"time"

	"PricePulse/internal/domain/models"
)

// OutcomeStatus classifies one upstream fetch attempt.
type OutcomeStatus int

const (
	// Success carries exactly one parsed tick.
	Success OutcomeStatus = iota
	// RateLimited means the upstream answered HTTP 429. Triggers backoff.
	RateLimited
	// SoftFailure covers malformed payloads, other non-2xx statuses, and
	// transport errors. Never changes the poll cadence.
	SoftFailure
)

// Outcome is the result of TickSource.FetchOne. All fetch failures are
// values, never errors that escape the source boundary.
type Outcome struct {
	Status OutcomeStatus
	Tick   *models.Tick // set when Status == Success
	Reason string       // set when Status == SoftFailure
}

func Succeeded(t *models.Tick) Outcome { return Outcome{Status: Success, Tick: t} }
func Throttled() Outcome               { return Outcome{Status: RateLimited} }
func Failed(reason string) Outcome     { return Outcome{Status: SoftFailure, Reason: reason} }

// TickSource performs one upstream fetch attempt and classifies the result.
type TickSource interface {
	FetchOne(ctx context.Context) Outcome
}

// TickStore is the durable store for ticks.
type TickStore interface {
	Insert(ctx context.Context, t *models.Tick) error
	Range(ctx context.Context, from, to time.Time) ([]models.Tick, error)
	Latest(ctx context.Context, n int) ([]models.Tick, error)
	Health(ctx context.Context) error
}

// MessageStore reads recent broadcast-message rows for relay snapshots.
type MessageStore interface {
	Recent(ctx context.Context, n int) ([]models.Message, error)
}

// TickPublisher publishes accepted ticks for downstream consumers.
type TickPublisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	Close() error
}

// ChangeFeed delivers insert/delete notifications on the watched table.
// Delivery is asynchronous and at-least-once, with no ordering guarantee
// relative to the originating write's visibility in MessageStore.
type ChangeFeed interface {
	Events() <-chan models.ChangeEvent
}

// RetryQueue accepts failed durable writes for background retry.
type RetryQueue interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

type Metrics interface {
	RecordPoll(outcome string)
	SetBackoff(active bool)
	SetCacheSize(n int)
	SetRelayClients(n int)
	RecordBroadcast(kind string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
