package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"CalmPulse/internal/domain/models"
)

func newMLScorer(t *testing.T, backend *stubScorer) (*MLScorer, *State) {
	t.Helper()
	state := NewState(DefaultParams())
	return NewMLScorer(backend, state, testLogger(t), DefaultParams()), state
}

func TestPredictWithConfidence(t *testing.T) {
	s, _ := newMLScorer(t, &stubScorer{score: 0.9, ready: true})
	score, conf, err := s.PredictWithConfidence(models.FeatureVector{})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if score != 0.9 {
		t.Fatalf("score = %v, want 0.9", score)
	}
	if math.Abs(conf-0.8) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.8", conf)
	}
}

func TestPredictUnavailableWhenBackendNotReady(t *testing.T) {
	s, _ := newMLScorer(t, &stubScorer{score: 0.9, ready: false})
	if _, err := s.Predict(models.FeatureVector{}); !errors.Is(err, ErrScorerUnavailable) {
		t.Fatalf("err = %v, want ErrScorerUnavailable", err)
	}
}

func TestDetectRequiresEnoughRecentReadings(t *testing.T) {
	s, _ := newMLScorer(t, &stubScorer{score: 0.95, ready: true})
	ev, _, err := s.Detect(models.FeatureVector{}, reading(time.Now(), 90),
		models.Baseline{AvgHeartRate: 60}, 4, false)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if ev != nil {
		t.Fatalf("must not detect with fewer than 5 recent readings")
	}
}

func TestDetectFiresAboveAdjustedThreshold(t *testing.T) {
	// Score 0.95: above the initial 0.5 threshold and calibrated confidence
	// 0.9 passes the 0.7 gate.
	s, _ := newMLScorer(t, &stubScorer{score: 0.95, ready: true})
	ev, score, err := s.Detect(models.FeatureVector{}, reading(time.Now(), 90),
		models.Baseline{AvgHeartRate: 60}, 10, false)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if ev == nil {
		t.Fatalf("expected ML detection")
	}
	if score != 0.95 {
		t.Fatalf("raw score = %v, want 0.95", score)
	}
	if ev.Method != models.MethodMLBased {
		t.Fatalf("method = %s, want %s", ev.Method, models.MethodMLBased)
	}
}

func TestDetectConfidenceGateSuppressesWeakScores(t *testing.T) {
	// Score 0.6 clears the threshold but calibrated confidence 0.2 < 0.7.
	s, _ := newMLScorer(t, &stubScorer{score: 0.6, ready: true})
	ev, _, err := s.Detect(models.FeatureVector{}, reading(time.Now(), 90),
		models.Baseline{AvgHeartRate: 60}, 10, false)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if ev != nil {
		t.Fatalf("weak score must not fire, got %+v", ev)
	}
}

func TestFalsePositiveRaisesThresholdByLearningRate(t *testing.T) {
	s, state := newMLScorer(t, &stubScorer{ready: true})
	before := state.AdjustedThreshold()

	// Predicted anxious (0.8), user says wrong: label 0.
	s.Learn(models.FeatureVector{}, 0.8, 0)
	after := state.AdjustedThreshold()
	if math.Abs(after-(before+0.01)) > 1e-9 {
		t.Fatalf("threshold %v -> %v, want +0.01", before, after)
	}
	if state.Adjustments() != 1 {
		t.Fatalf("adjustments = %d, want 1", state.Adjustments())
	}
}

func TestFalseNegativeLowersThreshold(t *testing.T) {
	s, state := newMLScorer(t, &stubScorer{ready: true})
	before := state.AdjustedThreshold()
	s.Learn(models.FeatureVector{}, 0.2, 1)
	if after := state.AdjustedThreshold(); math.Abs(after-(before-0.01)) > 1e-9 {
		t.Fatalf("threshold %v -> %v, want -0.01", before, after)
	}
}

func TestCorrectPredictionLeavesThresholdAlone(t *testing.T) {
	s, state := newMLScorer(t, &stubScorer{ready: true})
	before := state.AdjustedThreshold()
	s.Learn(models.FeatureVector{}, 0.8, 1)
	s.Learn(models.FeatureVector{}, 0.2, 0)
	if state.AdjustedThreshold() != before {
		t.Fatalf("threshold moved on correct predictions")
	}
}

func TestThresholdStaysInBounds(t *testing.T) {
	s, state := newMLScorer(t, &stubScorer{ready: true})
	for i := 0; i < 500; i++ {
		s.Learn(models.FeatureVector{}, 0.8, 0) // relentless false positives
	}
	if th := state.AdjustedThreshold(); th != 0.8 {
		t.Fatalf("threshold = %v, want clamp at 0.8", th)
	}
	for i := 0; i < 1000; i++ {
		s.Learn(models.FeatureVector{}, 0.2, 1) // relentless false negatives
	}
	if th := state.AdjustedThreshold(); th != 0.2 {
		t.Fatalf("threshold = %v, want clamp at 0.2", th)
	}
	if at := state.AlertThreshold(); at < 0.5 || at > 0.9 {
		t.Fatalf("alert threshold %v outside [0.5, 0.9]", at)
	}
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	s, state := newMLScorer(t, &stubScorer{ready: true})
	for i := 0; i < 1200; i++ {
		s.Learn(models.FeatureVector{}, 0.8, 1)
	}
	state.mu.Lock()
	n := len(state.history)
	state.mu.Unlock()
	if n != 1000 {
		t.Fatalf("history length = %d, want capped at 1000", n)
	}
}

func TestTopFeatureCorrelation(t *testing.T) {
	// Feature 3 tracks the label perfectly; everything else is constant.
	var samples []trainingSample
	for i := 0; i < 60; i++ {
		label := float64(i % 2)
		var fv models.FeatureVector
		fv[3] = label
		samples = append(samples, trainingSample{Features: fv, Score: 0.5, Label: label})
	}
	feat, corr := topFeatureCorrelation(samples)
	if feat != 3 {
		t.Fatalf("top feature = %d, want 3", feat)
	}
	if math.Abs(corr-1) > 1e-9 {
		t.Fatalf("correlation = %v, want 1", corr)
	}
}
