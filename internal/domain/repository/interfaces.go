package repository

import (
	"context"
	"time"

	"CalmPulse/internal/domain/models"
)

// ReadingSource supplies sanitizable readings from a wearable bridge. The
// concrete transport (WebSocket, Kafka, plain HTTP) is selected by config.
type ReadingSource interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Reading, <-chan error)
	Close() error
}

// Store is the persistence contract the engine core depends on. The engine
// never retries repository errors; they propagate to the pipeline caller.
type Store interface {
	Init(ctx context.Context) error // ensure schema, health checks

	SaveReading(ctx context.Context, r models.Reading) error
	ReadingCount(ctx context.Context) (int64, error)
	RecentReadings(ctx context.Context, n int) ([]models.Reading, error)

	Baseline(ctx context.Context, hour int) (*models.Baseline, error)
	Baselines(ctx context.Context) ([]models.Baseline, error)
	SaveBaseline(ctx context.Context, b models.Baseline) error

	SaveEvent(ctx context.Context, ev models.AnxietyEvent) (string, error)
	Events(ctx context.Context, since time.Time, limit int) ([]models.AnxietyEvent, error)

	SaveFeedback(ctx context.Context, fb models.Feedback) error
	FeedbackSince(ctx context.Context, since time.Time) ([]models.Feedback, error)

	Health(ctx context.Context) error
	Close() error
}

// ReadingArchive is an optional long-horizon sink for raw readings, used for
// offline model work. Writes are batched and best-effort; the detection
// pipeline never blocks on it.
type ReadingArchive interface {
	Archive(ctx context.Context, readings []models.Reading) error
	Close() error
}

// EventPublisher forwards emitted anxiety events to external consumers
// (companion app sync, notification relays).
type EventPublisher interface {
	Publish(ctx context.Context, ev models.AnxietyEvent) error
	Close() error
}

// Metrics records operational metrics for the pipeline.
type Metrics interface {
	RecordReading(source string)
	RecordDetection(method, eventType string)
	RecordError(kind string)
	RecordThreshold(value float64)
	RecordTrust(value float64)
	RecordPhase(phase string)
	RecordLatency(op string, seconds float64)
}
