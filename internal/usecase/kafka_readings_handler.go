package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CalmPulse/internal/domain/models"
	xlogger "CalmPulse/pkg/logger"
)

// KafkaReadingsHandler consumes biometric readings relayed through Kafka by
// phone companions that cannot hold a direct WebSocket open. Implements
// pkg/kafka.MessageHandler.
type KafkaReadingsHandler struct {
	topic     string
	collector *ReadingCollector
	logger    *xlogger.Logger
}

func NewKafkaReadingsHandler(topic string, collector *ReadingCollector, logger *xlogger.Logger) *KafkaReadingsHandler {
	return &KafkaReadingsHandler{topic: topic, collector: collector, logger: logger}
}

func (h *KafkaReadingsHandler) Topic() string { return h.topic }

// readingPayload mirrors the wearable bridge wire format: millisecond
// timestamps, absent channels omitted.
type readingPayload struct {
	T           int64    `json:"t"`
	HeartRate   *float64 `json:"hr"`
	HRV         *float64 `json:"hrv"`
	Temperature *float64 `json:"temp"`
	Motion      *float64 `json:"motion"`
	Confidence  float64  `json:"confidence"`
	Source      string   `json:"source"`
}

// Handle decodes one reading and submits it to the pipeline. A decode failure
// is permanent and reported as an error so the consumer's retry/DLQ policy
// applies; processing failures are repository errors and also retryable.
func (h *KafkaReadingsHandler) Handle(ctx context.Context, data []byte) error {
	var p readingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode reading: %w", err)
	}
	r := models.Reading{
		Timestamp:   time.UnixMilli(p.T),
		HeartRate:   p.HeartRate,
		HRV:         p.HRV,
		Temperature: p.Temperature,
		Motion:      p.Motion,
		Confidence:  p.Confidence,
		Source:      models.BiometricSource(p.Source),
	}
	if _, err := h.collector.Submit(ctx, r); err != nil {
		h.logger.Error("kafka reading processing failed", xlogger.Error(err))
		return err
	}
	return nil
}
