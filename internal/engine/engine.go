package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"CalmPulse/internal/domain/models"
	drepo "CalmPulse/internal/domain/repository"
	domsvc "CalmPulse/internal/domain/service"
	xlogger "CalmPulse/pkg/logger"
)

const eventBuffer = 128

// Engine is the hybrid anxiety detection pipeline. Readings are processed
// one at a time: sanitize, feature-engineer, run both detectors, fuse, emit.
// Ingest paths (stream, broker workers, HTTP) may all call Process; procMu
// enforces the single-writer discipline so one reading runs to completion
// before the next is accepted. Feedback arrives asynchronously and meets the
// ingestion path only inside State.
type Engine struct {
	params    Params
	store     drepo.Store
	rules     *RuleDetector
	scorer    *MLScorer
	combiner  *Combiner
	baselines *BaselineEngine
	feedback  *FeedbackLoop
	state     *State
	logger    *xlogger.Logger
	metrics   drepo.Metrics

	procMu     sync.Mutex
	events     chan models.AnxietyEvent
	processed  atomic.Int64
	recalcBusy atomic.Bool
	closed     atomic.Bool
}

func New(store drepo.Store, backend domsvc.Scorer, metrics drepo.Metrics, logger *xlogger.Logger, params Params) *Engine {
	state := NewState(params)
	scorer := NewMLScorer(backend, state, logger, params)
	return &Engine{
		params:    params,
		store:     store,
		rules:     NewRuleDetector(params),
		scorer:    scorer,
		combiner:  NewCombiner(params),
		baselines: NewBaselineEngine(store, logger, params),
		feedback:  NewFeedbackLoop(store, scorer, state, metrics, logger, params),
		state:     state,
		logger:    logger,
		metrics:   metrics,
		events:    make(chan models.AnxietyEvent, eventBuffer),
	}
}

// Start performs first-run bootstrap: initial baselines from stored history
// and the feedback-derived statistics from stored feedback. Neither failure
// is fatal.
func (e *Engine) Start(ctx context.Context) {
	e.baselines.Bootstrap(ctx)
	if err := e.feedback.Refresh(ctx); err != nil {
		e.logger.Warn("initial feedback stats refresh failed", xlogger.Error(err))
	}
}

// Events exposes emitted detections as a bounded stream for the single
// in-process subscriber.
func (e *Engine) Events() <-chan models.AnxietyEvent {
	return e.events
}

// Process runs one reading through the full pipeline and returns the emitted
// event, if any. A nil event is the common case and covers every
// insufficient-data condition; only repository failures surface as errors.
// Concurrent callers are serialized.
func (e *Engine) Process(ctx context.Context, raw models.Reading) (*models.AnxietyEvent, error) {
	e.procMu.Lock()
	defer e.procMu.Unlock()
	start := time.Now()

	reading, ok := Sanitize(raw, time.Now(), e.params.MaxReadingAge)
	if !ok {
		e.metrics.RecordError("stale_reading")
		return nil, nil
	}

	if err := e.store.SaveReading(ctx, reading); err != nil {
		e.metrics.RecordError("save_reading")
		return nil, fmt.Errorf("save reading: %w", err)
	}
	e.metrics.RecordReading(string(reading.Source))

	if n := e.processed.Add(1); int(n)%e.params.RecalcEvery == 0 {
		e.maybeRecalculate(ctx)
	}

	count, err := e.store.ReadingCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading count: %w", err)
	}

	baseline, err := e.store.Baseline(ctx, reading.Timestamp.Local().Hour())
	if err != nil {
		return nil, fmt.Errorf("baseline lookup: %w", err)
	}
	if baseline == nil {
		baseline, err = e.baselines.MaterializeHour(ctx, reading.Timestamp.Local().Hour())
		if err != nil {
			return nil, err
		}
		if baseline == nil {
			// Still no reference for this hour; detection is disabled for it,
			// which is not an error.
			return nil, nil
		}
	}

	recent, err := e.store.RecentReadings(ctx, e.params.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("recent readings: %w", err)
	}
	feedback24, err := e.store.FeedbackSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("recent feedback: %w", err)
	}

	fv := BuildFeatures(reading, *baseline, recent, feedback24)
	isNight := e.params.IsNight(reading.Timestamp.Local().Hour())

	ruleEv := e.rules.Detect(reading, *baseline, isNight)

	mlEv, score, err := e.scorer.Detect(fv, reading, *baseline, len(recent), isNight)
	if err != nil {
		if !errors.Is(err, ErrScorerUnavailable) {
			e.logger.Warn("ml scorer failed", xlogger.Error(err))
		}
		e.metrics.RecordError("scorer")
		mlEv = nil
	}

	trust := e.state.Trust()
	phase := e.combiner.PhaseFor(count)
	e.metrics.RecordPhase(string(phase))

	fused := e.combiner.Fuse(ruleEv, mlEv, phase, trust)
	e.metrics.RecordLatency("process", time.Since(start).Seconds())
	if fused == nil {
		return nil, nil
	}

	fused.ID = uuid.NewString()
	if _, err := e.store.SaveEvent(ctx, *fused); err != nil {
		e.metrics.RecordError("save_event")
		return nil, fmt.Errorf("save event: %w", err)
	}

	// Cache the prediction behind the event so later feedback can be turned
	// into a label. Rule-only events carry their confidence as the score
	// proxy when the model produced nothing.
	cachedScore := score
	if mlEv == nil && score == 0 {
		cachedScore = fused.Confidence
	}
	e.state.RecordPrediction(fused.ID, fv, cachedScore, fused.Timestamp)

	e.metrics.RecordDetection(string(fused.Method), string(fused.Type))
	e.logger.Info("anxiety event detected",
		xlogger.String("event_id", fused.ID),
		xlogger.String("type", string(fused.Type)),
		xlogger.String("method", string(fused.Method)),
		xlogger.Float64("confidence", fused.Confidence),
		xlogger.String("phase", string(phase)))

	if !e.closed.Load() {
		e.events <- *fused
	}
	return fused, nil
}

// maybeRecalculate refreshes hour baselines from the freshest readings.
// Single-flight: a recalculation still in progress skips this trigger.
// Baseline writes may run concurrently with baseline reads; each bucket is
// replaced whole.
func (e *Engine) maybeRecalculate(ctx context.Context) {
	if !e.recalcBusy.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer e.recalcBusy.Store(false)
		recent, err := e.store.RecentReadings(ctx, e.params.RecalcEvery)
		if err != nil {
			e.logger.Warn("baseline recalc: fetch failed", xlogger.Error(err))
			return
		}
		if err := e.baselines.Recalculate(ctx, recent); err != nil {
			e.logger.Warn("baseline recalc failed", xlogger.Error(err))
		}
		if err := e.feedback.Refresh(ctx); err != nil {
			e.logger.Warn("feedback stats refresh failed", xlogger.Error(err))
		}
	}()
}

// RecordFeedback delegates to the feedback loop.
func (e *Engine) RecordFeedback(ctx context.Context, eventID string, wasCorrect bool, anxietyLevel *int, notes string, timing models.FeedbackTiming) (models.Feedback, error) {
	return e.feedback.Record(ctx, eventID, wasCorrect, anxietyLevel, notes, timing)
}

// ReportManualEvent delegates to the feedback loop.
func (e *Engine) ReportManualEvent(ctx context.Context, ts time.Time, notes string) (models.Feedback, error) {
	return e.feedback.ReportManual(ctx, ts, notes)
}

// AlertThreshold exposes the personalized alert cutoff for downstream
// notification gating.
func (e *Engine) AlertThreshold() float64 {
	return e.state.AlertThreshold()
}

// Status snapshots the adaptive state for the status API and metrics.
func (e *Engine) Status(ctx context.Context) (models.EngineStatus, error) {
	count, err := e.store.ReadingCount(ctx)
	if err != nil {
		return models.EngineStatus{}, fmt.Errorf("reading count: %w", err)
	}
	st := models.EngineStatus{
		Phase:             e.combiner.PhaseFor(count),
		AdjustedThreshold: e.state.AdjustedThreshold(),
		ThresholdUpdates:  e.state.Adjustments(),
		TrustScore:        e.state.Trust(),
		FeedbackErrorRate: e.state.FeedbackErrorRate(),
		ReadingCount:      count,
		Processed:         e.processed.Load(),
		ScorerReady:       e.scorer.backend != nil && e.scorer.backend.Ready(),
	}
	return st, nil
}

// Close stops event emission. Taking procMu waits out the in-flight Process
// call, so its send lands before the channel closes; a Process entered after
// Close sees the closed flag and skips the send.
func (e *Engine) Close() {
	if e.closed.CompareAndSwap(false, true) {
		e.procMu.Lock()
		close(e.events)
		e.procMu.Unlock()
	}
}
