package service

import "CalmPulse/internal/domain/models"

// Scorer is the opaque pretrained model backend. Predict must accept exactly
// a FeatureCount-length vector and return a score in [0,1]; anything else is
// a typed error from the implementation.
type Scorer interface {
	Initialize() error
	Ready() bool
	Predict(features models.FeatureVector) (float64, error)
}
