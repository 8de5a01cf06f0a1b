package repository

import (
	"context"
	"fmt"

	"SigWatch/internal/domain/models"
	pkgkafka "SigWatch/pkg/kafka"
)

// KafkaAlertPublisher hands alert events to a Kafka topic. Messages are
// keyed by entity id so one entity's alerts stay ordered per partition.
type KafkaAlertPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaAlertPublisher creates a Kafka-backed alert publisher.
func NewKafkaAlertPublisher(producer *pkgkafka.Producer, topic string) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{producer: producer, topic: topic}
}

// Publish sends one alert event.
func (p *KafkaAlertPublisher) Publish(ctx context.Context, event *models.AlertEvent) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(event.EntityID), event); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close closes the underlying producer.
func (p *KafkaAlertPublisher) Close() error {
	return p.producer.Close()
}
