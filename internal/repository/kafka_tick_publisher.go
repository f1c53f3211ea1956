package repository

import (
	"context"
	"strconv"

	"PricePulse/internal/domain/models"
	pkgkafka "PricePulse/pkg/kafka"
)

// KafkaTickPublisher publishes accepted ticks to a Kafka topic for
// downstream consumers. Keys are the tick's millisecond timestamp so a
// replay of the topic preserves ordering per partition.
type KafkaTickPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaTickPublisher(producer *pkgkafka.Producer, topic string) *KafkaTickPublisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

// Publish implements TickPublisher.
func (p *KafkaTickPublisher) Publish(ctx context.Context, t *models.Tick) error {
	key := strconv.FormatInt(t.Timestamp.UnixMilli(), 10)
	return p.producer.Publish(ctx, p.topic, []byte(key), t)
}

// Close implements TickPublisher.
func (p *KafkaTickPublisher) Close() error {
	return p.producer.Close()
}
