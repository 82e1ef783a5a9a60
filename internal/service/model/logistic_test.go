package model

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"CalmPulse/internal/domain/models"
)

func writeArtifact(t *testing.T, a artifact) string {
	t.Helper()
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func validArtifact() artifact {
	a := artifact{
		Version: 1,
		Terms:   models.FeatureCount,
		Weights: make([]float64, models.FeatureCount),
		Means:   make([]float64, models.FeatureCount),
		Stds:    make([]float64, models.FeatureCount),
	}
	for i := range a.Stds {
		a.Stds[i] = 1
	}
	return a
}

func TestInitializeAndPredict(t *testing.T) {
	a := validArtifact()
	a.Weights[0] = 2.0
	a.Bias = -1.0

	s := NewLogisticScorer(writeArtifact(t, a))
	if s.Ready() {
		t.Fatalf("ready before initialize")
	}
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !s.Ready() {
		t.Fatalf("not ready after initialize")
	}

	var fv models.FeatureVector
	low, err := s.Predict(fv)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	fv[0] = 3.0
	high, err := s.Predict(fv)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if low <= 0 || low >= 1 || high <= 0 || high >= 1 {
		t.Fatalf("scores out of (0,1): %v %v", low, high)
	}
	if high <= low {
		t.Fatalf("positive weight did not raise score: %v -> %v", low, high)
	}
}

func TestPredictBeforeInitialize(t *testing.T) {
	s := NewLogisticScorer("does-not-exist.json")
	if _, err := s.Predict(models.FeatureVector{}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestInitializeRejectsWrongFeatureCount(t *testing.T) {
	a := validArtifact()
	a.Terms = 5
	a.Weights = a.Weights[:5]
	a.Means = a.Means[:5]
	a.Stds = a.Stds[:5]

	s := NewLogisticScorer(writeArtifact(t, a))
	if err := s.Initialize(); !errors.Is(err, ErrFeatureSize) {
		t.Fatalf("expected ErrFeatureSize, got %v", err)
	}
	if s.Ready() {
		t.Fatalf("ready after rejected artifact")
	}
}

func TestInitializeMissingFile(t *testing.T) {
	s := NewLogisticScorer(filepath.Join(t.TempDir(), "missing.json"))
	if err := s.Initialize(); err == nil {
		t.Fatalf("expected error for missing artifact")
	}
}

func TestPredictZeroStdSkipsNormalization(t *testing.T) {
	a := validArtifact()
	a.Stds[3] = 0
	a.Means[3] = 100
	a.Weights[3] = 1.0

	s := NewLogisticScorer(writeArtifact(t, a))
	if err := s.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	var fv models.FeatureVector
	fv[3] = 0.5
	got, err := s.Predict(fv)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	// z = 0.5, sigmoid(0.5) ~ 0.622
	if got < 0.62 || got > 0.63 {
		t.Fatalf("unexpected score %v", got)
	}
}
