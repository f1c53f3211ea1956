package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"PricePulse/internal/domain/models"
	applogger "PricePulse/pkg/logger"
)

// feedEnvelope is the wire format of one change-feed record.
type feedEnvelope struct {
	Op  string          `json:"op"`
	Row *models.Message `json:"row,omitempty"`
}

// KafkaChangeFeed turns a Kafka topic of insert/delete envelopes into a
// ChangeEvent channel. It implements kafka.MessageHandler so it plugs
// straight into the shared consumer; decoded events are delivered on
// Events() for the relay hub.
type KafkaChangeFeed struct {
	topic  string
	events chan models.ChangeEvent
	l      *applogger.Logger
}

func NewKafkaChangeFeed(topic string, buffer int, l *applogger.Logger) *KafkaChangeFeed {
	if buffer <= 0 {
		buffer = 64
	}
	return &KafkaChangeFeed{
		topic:  topic,
		events: make(chan models.ChangeEvent, buffer),
		l:      l,
	}
}

// Topic implements kafka.MessageHandler.
func (f *KafkaChangeFeed) Topic() string { return f.topic }

// Handle decodes one envelope and forwards it as a ChangeEvent. Malformed
// records are logged and dropped; returning an error here would only make
// the consumer retry a record that can never parse.
func (f *KafkaChangeFeed) Handle(ctx context.Context, data []byte) error {
	var env feedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.l.Warn("change feed record unparseable", applogger.Error(err))
		return nil
	}

	ev, err := f.toEvent(env)
	if err != nil {
		f.l.Warn("change feed record dropped", applogger.Error(err))
		return nil
	}

	select {
	case f.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (f *KafkaChangeFeed) toEvent(env feedEnvelope) (models.ChangeEvent, error) {
	switch models.ChangeOp(env.Op) {
	case models.OpInsert:
		if env.Row == nil {
			return models.ChangeEvent{}, fmt.Errorf("insert without row")
		}
		return models.ChangeEvent{Op: models.OpInsert, Row: env.Row}, nil
	case models.OpDelete:
		if env.Row == nil {
			return models.ChangeEvent{}, fmt.Errorf("delete without row")
		}
		if env.Row.ID != "" {
			return models.ChangeEvent{Op: models.OpDelete, ID: env.Row.ID}, nil
		}
		// No durable identifier on the source row, fall back to the
		// content fields so subscribers can match by equality.
		return models.ChangeEvent{Op: models.OpDelete, Match: env.Row}, nil
	default:
		return models.ChangeEvent{}, fmt.Errorf("unknown op %q", env.Op)
	}
}

// Events implements ChangeFeed.
func (f *KafkaChangeFeed) Events() <-chan models.ChangeEvent {
	return f.events
}
