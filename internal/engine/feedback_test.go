package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"CalmPulse/internal/domain/models"
)

func newFeedbackLoop(t *testing.T, store *memStore) (*FeedbackLoop, *State) {
	t.Helper()
	state := NewState(DefaultParams())
	scorer := NewMLScorer(&stubScorer{ready: true}, state, testLogger(t), DefaultParams())
	loop := NewFeedbackLoop(store, scorer, state, nopMetrics{}, testLogger(t), DefaultParams())
	return loop, state
}

func TestRecordIncorrectVerdictFlipsLabelAndRaisesThreshold(t *testing.T) {
	store := newMemStore()
	loop, state := newFeedbackLoop(t, store)
	ctx := context.Background()

	// Cached prediction leaned anxious (0.8). User says the alert was wrong:
	// the implied label 1 flips to 0, a false positive, threshold up by 0.01.
	state.RecordPrediction("ev-1", models.FeatureVector{}, 0.8, time.Now())
	before := state.AdjustedThreshold()

	fb, err := loop.Record(ctx, "ev-1", false, nil, "sitting calmly", models.FeedbackImmediate)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if fb.ID == "" {
		t.Fatalf("feedback id not assigned")
	}
	if len(store.feedback) != 1 {
		t.Fatalf("feedback not persisted")
	}
	if after := state.AdjustedThreshold(); math.Abs(after-(before+0.01)) > 1e-9 {
		t.Fatalf("threshold %v -> %v, want +0.01", before, after)
	}
}

func TestRecordCorrectVerdictKeepsThreshold(t *testing.T) {
	store := newMemStore()
	loop, state := newFeedbackLoop(t, store)

	state.RecordPrediction("ev-1", models.FeatureVector{}, 0.8, time.Now())
	before := state.AdjustedThreshold()
	if _, err := loop.Record(context.Background(), "ev-1", true, nil, "", models.FeedbackImmediate); err != nil {
		t.Fatalf("record: %v", err)
	}
	if state.AdjustedThreshold() != before {
		t.Fatalf("threshold moved on confirmed detection")
	}
}

func TestRecordWithoutCachedPredictionStillPersists(t *testing.T) {
	store := newMemStore()
	loop, state := newFeedbackLoop(t, store)

	before := state.AdjustedThreshold()
	if _, err := loop.Record(context.Background(), "unknown", false, nil, "", models.FeedbackDelayed); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(store.feedback) != 1 {
		t.Fatalf("feedback not persisted")
	}
	if state.AdjustedThreshold() != before {
		t.Fatalf("threshold must not move without a cached prediction")
	}
}

func TestReportManualMatchesNearestPrediction(t *testing.T) {
	store := newMemStore()
	loop, state := newFeedbackLoop(t, store)
	ctx := context.Background()
	now := time.Now()

	// Suppressed prediction 5 minutes before the reported episode, scored
	// below the cutoff (0.3). Manual report forces label 1: a false negative,
	// threshold down by 0.01.
	state.RecordPrediction("ev-missed", models.FeatureVector{}, 0.3, now.Add(-5*time.Minute))
	before := state.AdjustedThreshold()

	fb, err := loop.ReportManual(ctx, now, "panic on the train")
	if err != nil {
		t.Fatalf("report manual: %v", err)
	}
	if fb.EventID != "ev-missed" {
		t.Fatalf("event id = %q, want ev-missed", fb.EventID)
	}
	if fb.WasCorrect {
		t.Fatalf("manual reports record a miss")
	}
	if fb.Timing != models.FeedbackRetrospective {
		t.Fatalf("timing = %s, want %s", fb.Timing, models.FeedbackRetrospective)
	}
	if after := state.AdjustedThreshold(); math.Abs(after-(before-0.01)) > 1e-9 {
		t.Fatalf("threshold %v -> %v, want -0.01", before, after)
	}
}

func TestReportManualOutsideWindowStoresRecordOnly(t *testing.T) {
	store := newMemStore()
	loop, state := newFeedbackLoop(t, store)
	now := time.Now()

	state.RecordPrediction("ev-old", models.FeatureVector{}, 0.3, now.Add(-30*time.Minute))
	before := state.AdjustedThreshold()

	fb, err := loop.ReportManual(context.Background(), now, "")
	if err != nil {
		t.Fatalf("report manual: %v", err)
	}
	if fb.EventID != "" {
		t.Fatalf("event id = %q, want empty (no match inside 10m)", fb.EventID)
	}
	if state.AdjustedThreshold() != before {
		t.Fatalf("threshold must not move without a matched prediction")
	}
	if len(store.feedback) != 1 {
		t.Fatalf("feedback not persisted")
	}
}

func TestRefreshTrust(t *testing.T) {
	store := newMemStore()
	loop, state := newFeedbackLoop(t, store)
	ctx := context.Background()

	if err := loop.RefreshTrust(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if state.Trust() != 0.5 {
		t.Fatalf("trust with no feedback = %v, want 0.5", state.Trust())
	}

	now := time.Now()
	for i := 0; i < 3; i++ {
		store.feedback = append(store.feedback, models.Feedback{Timestamp: now, WasCorrect: true})
	}
	store.feedback = append(store.feedback, models.Feedback{Timestamp: now, WasCorrect: false})
	// Stale feedback outside the 30 day window is ignored.
	store.feedback = append(store.feedback, models.Feedback{
		Timestamp: now.Add(-31 * 24 * time.Hour), WasCorrect: false,
	})

	if err := loop.RefreshTrust(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if state.Trust() != 0.75 {
		t.Fatalf("trust = %v, want 0.75", state.Trust())
	}
}

func TestRecordRefreshesThresholdWindowStats(t *testing.T) {
	store := newMemStore()
	loop, state := newFeedbackLoop(t, store)
	now := time.Now()

	store.feedback = append(store.feedback,
		models.Feedback{Timestamp: now, EventID: "e1", WasCorrect: true},
		models.Feedback{Timestamp: now, EventID: "e2", WasCorrect: true},
		models.Feedback{Timestamp: now, EventID: "e3", WasCorrect: false},
		// outside the 7 day feedback window, inside the 30 day trust window
		models.Feedback{Timestamp: now.Add(-8 * 24 * time.Hour), WasCorrect: false},
	)

	if _, err := loop.Record(context.Background(), "unknown", true, nil, "", models.FeedbackImmediate); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Five records stored, four inside the window, one of them incorrect.
	if got := state.FeedbackErrorRate(); math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("feedback error rate = %v, want 0.25", got)
	}
	// Trust still spans the longer window: 3 of 5 correct.
	if got := state.Trust(); math.Abs(got-0.6) > 1e-9 {
		t.Fatalf("trust = %v, want 0.6", got)
	}
}

func TestPredictionCacheEvictsOldest(t *testing.T) {
	state := NewState(DefaultParams())
	base := time.Now()
	for i := 0; i < DefaultParams().PredictionCacheCap+1; i++ {
		state.RecordPrediction(
			string(rune('a'+i%26))+string(rune('0'+i/26)),
			models.FeatureVector{}, 0.5, base.Add(time.Duration(i)*time.Second))
	}
	if _, ok := state.LookupPrediction("a0"); ok {
		t.Fatalf("oldest prediction must be evicted")
	}
	if len(state.predictions) != DefaultParams().PredictionCacheCap {
		t.Fatalf("cache size = %d, want %d", len(state.predictions), DefaultParams().PredictionCacheCap)
	}
}
