// Package model provides the pretrained scorer backend. The artifact is a
// JSON file produced by the offline training pipeline; on device it is only
// ever read.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"CalmPulse/internal/domain/models"
	domsvc "CalmPulse/internal/domain/service"
)

var (
	// ErrNotInitialized means Predict was called before a successful
	// Initialize.
	ErrNotInitialized = errors.New("model backend not initialized")
	// ErrFeatureSize means the artifact does not match the engine's feature
	// vector layout.
	ErrFeatureSize = errors.New("feature size mismatch")
)

// artifact is the serialized logistic model: weights over standardized
// features plus the normalization parameters captured at training time.
type artifact struct {
	Version int       `json:"version"`
	Terms   int       `json:"feature_count"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Means   []float64 `json:"means"`
	Stds    []float64 `json:"stds"`
}

// LogisticScorer scores feature vectors with a pretrained logistic model.
type LogisticScorer struct {
	path string

	mu    sync.RWMutex
	model *artifact
}

func NewLogisticScorer(path string) *LogisticScorer {
	return &LogisticScorer{path: path}
}

// Initialize loads and validates the artifact. Missing or malformed
// artifacts leave the backend unready; the engine then runs rule-only.
func (s *LogisticScorer) Initialize() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read model artifact: %w", err)
	}
	var a artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return fmt.Errorf("parse model artifact: %w", err)
	}
	if a.Terms != models.FeatureCount ||
		len(a.Weights) != models.FeatureCount ||
		len(a.Means) != models.FeatureCount ||
		len(a.Stds) != models.FeatureCount {
		return fmt.Errorf("%w: artifact has %d terms, engine expects %d",
			ErrFeatureSize, a.Terms, models.FeatureCount)
	}
	s.mu.Lock()
	s.model = &a
	s.mu.Unlock()
	return nil
}

// Ready reports whether the backend can score.
func (s *LogisticScorer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil
}

// Predict standardizes the vector with the training-time parameters and
// applies the logistic function. The result is always in (0,1).
func (s *LogisticScorer) Predict(fv models.FeatureVector) (float64, error) {
	s.mu.RLock()
	m := s.model
	s.mu.RUnlock()
	if m == nil {
		return 0, ErrNotInitialized
	}

	z := m.Bias
	for i := 0; i < models.FeatureCount; i++ {
		v := fv[i]
		if m.Stds[i] > 0 {
			v = (v - m.Means[i]) / m.Stds[i]
		}
		z += m.Weights[i] * v
	}
	return 1 / (1 + math.Exp(-z)), nil
}

var _ domsvc.Scorer = (*LogisticScorer)(nil)
