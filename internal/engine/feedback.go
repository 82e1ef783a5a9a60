package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CalmPulse/internal/domain/models"
	drepo "CalmPulse/internal/domain/repository"
	xlogger "CalmPulse/pkg/logger"
)

// Windows over which feedback influences the adaptive state.
const (
	trustWindow    = 30 * 24 * time.Hour // combiner trust score
	feedbackWindow = 7 * 24 * time.Hour  // threshold-manager statistics
)

// FeedbackLoop turns user verdicts on past events into threshold adaptation
// and a refreshed trust score. It runs on the user-interaction path, so it
// may interleave with ingestion; all shared state lives behind State's lock.
type FeedbackLoop struct {
	store   drepo.Store
	scorer  *MLScorer
	state   *State
	params  Params
	logger  *xlogger.Logger
	metrics drepo.Metrics
}

func NewFeedbackLoop(store drepo.Store, scorer *MLScorer, state *State, metrics drepo.Metrics, logger *xlogger.Logger, params Params) *FeedbackLoop {
	return &FeedbackLoop{store: store, scorer: scorer, state: state, params: params, logger: logger, metrics: metrics}
}

// Record persists a correctness verdict on a prior event and, when the
// prediction behind it is still cached, feeds the derived label into
// threshold adaptation. Finally the windowed statistics are recomputed.
func (l *FeedbackLoop) Record(ctx context.Context, eventID string, wasCorrect bool, anxietyLevel *int, notes string, timing models.FeedbackTiming) (models.Feedback, error) {
	fb := models.Feedback{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		EventID:      eventID,
		WasCorrect:   wasCorrect,
		AnxietyLevel: anxietyLevel,
		Notes:        notes,
		Timing:       timing,
	}
	if err := l.store.SaveFeedback(ctx, fb); err != nil {
		return models.Feedback{}, fmt.Errorf("save feedback: %w", err)
	}

	if pred, ok := l.state.LookupPrediction(eventID); ok {
		label := impliedLabel(pred.Score)
		if !wasCorrect {
			label = 1 - label
		}
		l.scorer.Learn(pred.Features, pred.Score, label)
	} else {
		l.logger.Debug("feedback without cached prediction",
			xlogger.String("event_id", eventID))
	}

	if err := l.Refresh(ctx); err != nil {
		l.logger.Warn("feedback stats refresh failed", xlogger.Error(err))
	}
	l.metrics.RecordTrust(l.state.Trust())
	l.metrics.RecordThreshold(l.state.AdjustedThreshold())
	return fb, nil
}

// ReportManual records an episode the engine never flagged. The nearest
// cached prediction inside the match window becomes a forced positive label;
// absent one, only the feedback record is stored.
func (l *FeedbackLoop) ReportManual(ctx context.Context, ts time.Time, notes string) (models.Feedback, error) {
	eventID := ""
	pred, matched := l.state.NearestPrediction(ts, l.params.ManualMatchWindow)
	if matched {
		eventID = pred.EventID
	}

	fb := models.Feedback{
		ID:         uuid.NewString(),
		Timestamp:  time.Now(),
		EventID:    eventID,
		WasCorrect: false, // the system missed this one
		Notes:      notes,
		Timing:     models.FeedbackRetrospective,
	}
	if err := l.store.SaveFeedback(ctx, fb); err != nil {
		return models.Feedback{}, fmt.Errorf("save manual feedback: %w", err)
	}

	if matched {
		l.scorer.Learn(pred.Features, pred.Score, 1)
		l.logger.Info("manual report matched prediction",
			xlogger.String("event_id", pred.EventID))
	} else {
		l.logger.Info("manual report without matching prediction")
	}

	if err := l.Refresh(ctx); err != nil {
		l.logger.Warn("feedback stats refresh failed", xlogger.Error(err))
	}
	return fb, nil
}

// Refresh recomputes both feedback-derived statistics: the combiner's trust
// score over the trust window and the threshold manager's feedback counts
// over the shorter feedback window. Runs on every feedback call and on
// periodic recalculation.
func (l *FeedbackLoop) Refresh(ctx context.Context) error {
	if err := l.refreshThresholdStats(ctx); err != nil {
		return err
	}
	return l.RefreshTrust(ctx)
}

// refreshThresholdStats feeds the recent feedback set into the threshold
// manager as windowed counts.
func (l *FeedbackLoop) refreshThresholdStats(ctx context.Context) error {
	since := time.Now().Add(-feedbackWindow)
	items, err := l.store.FeedbackSince(ctx, since)
	if err != nil {
		return fmt.Errorf("feedback since %s: %w", since.Format(time.RFC3339), err)
	}
	incorrect := 0
	for _, fb := range items {
		if !fb.WasCorrect {
			incorrect++
		}
	}
	l.state.SetFeedbackWindow(len(items), incorrect)
	return nil
}

// RefreshTrust recomputes the trust score as the fraction of feedback marked
// correct over the trust window. No feedback leaves the neutral 0.5.
func (l *FeedbackLoop) RefreshTrust(ctx context.Context) error {
	since := time.Now().Add(-trustWindow)
	items, err := l.store.FeedbackSince(ctx, since)
	if err != nil {
		return fmt.Errorf("feedback since %s: %w", since.Format(time.RFC3339), err)
	}
	if len(items) == 0 {
		l.state.SetTrust(0.5)
		return nil
	}
	correct := 0
	for _, fb := range items {
		if fb.WasCorrect {
			correct++
		}
	}
	l.state.SetTrust(float64(correct) / float64(len(items)))
	return nil
}

// impliedLabel maps a raw score to the label the prediction implied.
func impliedLabel(score float64) float64 {
	if score > 0.5 {
		return 1
	}
	return 0
}
