package usecase

import (
	"context"
	"sync"
	"time"

	"CalmPulse/internal/domain/models"
	drepo "CalmPulse/internal/domain/repository"
	"CalmPulse/internal/engine"
	xlogger "CalmPulse/pkg/logger"
)

// ReadingCollector drains a wearable stream into the detection engine.
// Streamed, broker-relayed, and HTTP-submitted readings all end up in
// Engine.Process, which serializes them into the single-writer pipeline.
type ReadingCollector struct {
	source  drepo.ReadingSource
	eng     *engine.Engine
	archive drepo.ReadingArchive // nil when archiving is disabled
	metrics drepo.Metrics
	logger  *xlogger.Logger

	reconnectDelay time.Duration
	batchSize      int
	batchTimeout   time.Duration

	mu    sync.Mutex
	batch []models.Reading
}

func NewReadingCollector(source drepo.ReadingSource, eng *engine.Engine, archive drepo.ReadingArchive,
	metrics drepo.Metrics, logger *xlogger.Logger, reconnectDelay time.Duration,
	batchSize int, batchTimeout time.Duration) *ReadingCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if batchTimeout <= 0 {
		batchTimeout = 30 * time.Second
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	return &ReadingCollector{
		source:         source,
		eng:            eng,
		archive:        archive,
		metrics:        metrics,
		logger:         logger,
		reconnectDelay: reconnectDelay,
		batchSize:      batchSize,
		batchTimeout:   batchTimeout,
	}
}

// Start connects the stream and launches the consume and archive-flush loops.
func (c *ReadingCollector) Start(ctx context.Context) error {
	if c.source != nil {
		if err := c.source.Connect(ctx); err != nil {
			return err
		}
		go c.consume(ctx)
	}
	if c.archive != nil {
		go c.flushLoop(ctx)
	}
	return nil
}

// Submit runs one externally supplied reading (HTTP ingest) through the
// engine and queues it for archival.
func (c *ReadingCollector) Submit(ctx context.Context, r models.Reading) (*models.AnxietyEvent, error) {
	ev, err := c.eng.Process(ctx, r)
	if err != nil {
		return nil, err
	}
	c.enqueue(r)
	return ev, nil
}

func (c *ReadingCollector) consume(ctx context.Context) {
	readings, errs := c.source.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			if err == nil {
				continue
			}
			c.metrics.RecordError("stream")
			c.logger.Warn("wearable stream error, reconnecting", xlogger.Error(err))
			readings, errs = c.reconnect(ctx)
			if readings == nil {
				return
			}
		case r, ok := <-readings:
			if !ok {
				readings, errs = c.reconnect(ctx)
				if readings == nil {
					return
				}
				continue
			}
			if _, err := c.eng.Process(ctx, r); err != nil {
				c.logger.Error("reading processing failed", xlogger.Error(err))
			}
			c.enqueue(r)
		}
	}
}

func (c *ReadingCollector) reconnect(ctx context.Context) (<-chan models.Reading, <-chan error) {
	_ = c.source.Close()
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(c.reconnectDelay):
		}
		if err := c.source.Connect(ctx); err != nil {
			c.metrics.RecordError("stream_reconnect")
			c.logger.Warn("wearable reconnect failed", xlogger.Error(err))
			continue
		}
		c.logger.Info("wearable stream reconnected")
		readings, errs := c.source.Read(ctx)
		return readings, errs
	}
}

func (c *ReadingCollector) enqueue(r models.Reading) {
	if c.archive == nil {
		return
	}
	c.mu.Lock()
	c.batch = append(c.batch, r)
	full := len(c.batch) >= c.batchSize
	c.mu.Unlock()
	if full {
		c.flush(context.Background())
	}
}

func (c *ReadingCollector) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(c.batchTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.flush(context.Background())
			return
		case <-ticker.C:
			c.flush(ctx)
		}
	}
}

// flush hands the pending batch to the archive. Best-effort: on failure the
// batch is dropped rather than retried, the store copy is authoritative.
func (c *ReadingCollector) flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.batch
	c.batch = nil
	c.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	if err := c.archive.Archive(ctx, batch); err != nil {
		c.metrics.RecordError("archive")
	}
}

// Shutdown closes the stream and flushes what remains.
func (c *ReadingCollector) Shutdown(ctx context.Context) error {
	c.flush(ctx)
	if c.source != nil {
		return c.source.Close()
	}
	return nil
}
