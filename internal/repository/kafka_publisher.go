package repository

import (
	"context"

	"CalmPulse/internal/domain/models"
	drepo "CalmPulse/internal/domain/repository"
	pkgkafka "CalmPulse/pkg/kafka"
)

// KafkaEventPublisher forwards anxiety events to the companion-app sync
// topic. Keyed by source device so a consumer sees one device's events in
// order.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) drepo.EventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, ev models.AnxietyEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.Source), map[string]interface{}{
		"id":          ev.ID,
		"ts":          ev.Timestamp.UnixMilli(),
		"type":        string(ev.Type),
		"confidence":  ev.Confidence,
		"heart_rate":  ev.HeartRate,
		"baseline_hr": ev.BaselineHeartRate,
		"activity":    string(ev.Activity),
		"method":      string(ev.Method),
		"source":      string(ev.Source),
	})
}

// Close is a no-op: the producer is shared with the log collector and owned
// by the application.
func (p *KafkaEventPublisher) Close() error { return nil }
