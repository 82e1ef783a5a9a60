package usecase

import (
	"context"

	"CalmPulse/internal/domain/models"
	drepo "CalmPulse/internal/domain/repository"
	xlogger "CalmPulse/pkg/logger"
)

// Broadcaster fans an event out to live in-process subscribers (the WebSocket
// hub). Implementations must not block.
type Broadcaster interface {
	Broadcast(ev models.AnxietyEvent)
}

// EventDispatcher drains the engine's event stream and forwards each event to
// the external publisher and the live subscribers. Publish failures are
// logged and counted but never stall the stream; the store copy of the event
// already exists by the time it reaches the channel.
type EventDispatcher struct {
	events    <-chan models.AnxietyEvent
	publisher drepo.EventPublisher // nil when external sync is disabled
	live      Broadcaster          // nil when no live endpoint is mounted
	metrics   drepo.Metrics
	logger    *xlogger.Logger
	done      chan struct{}
}

func NewEventDispatcher(events <-chan models.AnxietyEvent, publisher drepo.EventPublisher,
	live Broadcaster, metrics drepo.Metrics, logger *xlogger.Logger) *EventDispatcher {
	return &EventDispatcher{
		events:    events,
		publisher: publisher,
		live:      live,
		metrics:   metrics,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start launches the dispatch loop. It exits when the engine closes its
// event channel or the context is cancelled.
func (d *EventDispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-d.events:
				if !ok {
					return
				}
				d.dispatch(ctx, ev)
			}
		}
	}()
}

func (d *EventDispatcher) dispatch(ctx context.Context, ev models.AnxietyEvent) {
	if d.live != nil {
		d.live.Broadcast(ev)
	}
	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, ev); err != nil {
			d.metrics.RecordError("publish_event")
			d.logger.Warn("event publish failed",
				xlogger.String("event_id", ev.ID),
				xlogger.Error(err))
		}
	}
}

// Wait blocks until the dispatch loop has drained and exited.
func (d *EventDispatcher) Wait() {
	<-d.done
}
