package usecase

import (
	"context"
	"fmt"

	"PricePulse/internal/domain/models"
	domrepo "PricePulse/internal/domain/repository"
	"PricePulse/internal/scheduler"
	"PricePulse/pkg/queue"
)

// TickInsertJob re-attempts durable tick inserts that failed during a
// poll. The queue's own retry and dead-letter handling takes over when
// the store stays unavailable.
type TickInsertJob struct {
	store   domrepo.TickStore
	metrics domrepo.Metrics
}

func NewTickInsertJob(store domrepo.TickStore, metrics domrepo.Metrics) *TickInsertJob {
	return &TickInsertJob{store: store, metrics: metrics}
}

func (j *TickInsertJob) Name() string { return "tick-insert-retry" }

func (j *TickInsertJob) Type() string { return scheduler.RetryMessageType }

func (j *TickInsertJob) Handle(ctx context.Context, payload interface{}) error {
	tick, err := queue.ParsePayload[models.Tick](payload)
	if err != nil {
		return fmt.Errorf("parse tick payload: %w", err)
	}
	if !tick.Valid() {
		// A tick that was valid at enqueue time cannot become invalid;
		// drop rather than retry forever.
		j.metrics.RecordError("retry_invalid_tick")
		return nil
	}

	if err := j.store.Insert(ctx, tick); err != nil {
		j.metrics.RecordError("retry_store_insert")
		return fmt.Errorf("retry insert: %w", err)
	}
	return nil
}
