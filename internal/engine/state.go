package engine

import (
	"sync"
	"time"

	"CalmPulse/internal/domain/models"
)

// trainingSample is one (features, rawScore, correctLabel) tuple retained for
// threshold adaptation diagnostics.
type trainingSample struct {
	Features models.FeatureVector
	Score    float64
	Label    float64
}

// prediction is what the feedback loop needs to turn a verdict on a past
// event into a training label.
type prediction struct {
	EventID   string
	Timestamp time.Time
	Features  models.FeatureVector
	Score     float64
}

// State is the session-lifetime mutable core of the engine: the adapted
// thresholds, the rolling training history, the recent-prediction cache, and
// the cached trust score. Both the ingestion path and the asynchronous
// feedback path touch it, so every access goes through the mutex. Nothing in
// here survives a process restart.
type State struct {
	mu sync.Mutex

	adjustedThreshold float64
	alertThreshold    float64
	adjustments       int
	trust             float64

	history    []trainingSample
	historyCap int
	sinceCheck int // samples added since the last error audit

	// feedback-window statistics held for the threshold manager, refreshed
	// from the repository on every feedback call
	fbWindowTotal     int
	fbWindowIncorrect int

	predictions map[string]prediction
	predCap     int
}

func NewState(p Params) *State {
	return &State{
		adjustedThreshold: 0.5,
		alertThreshold:    (p.AlertThresholdMin + p.AlertThresholdMax) / 2,
		trust:             0.5,
		historyCap:        p.HistoryCap,
		predictions:       make(map[string]prediction),
		predCap:           p.PredictionCacheCap,
	}
}

func (s *State) AdjustedThreshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustedThreshold
}

func (s *State) AlertThreshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alertThreshold
}

func (s *State) Adjustments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustments
}

func (s *State) Trust() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trust
}

func (s *State) SetTrust(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	s.mu.Lock()
	s.trust = v
	s.mu.Unlock()
}

// SetFeedbackWindow replaces the windowed feedback counts the threshold
// manager keeps alongside its rolling sample history.
func (s *State) SetFeedbackWindow(total, incorrect int) {
	s.mu.Lock()
	s.fbWindowTotal = total
	s.fbWindowIncorrect = incorrect
	s.mu.Unlock()
}

// FeedbackErrorRate is the incorrect fraction of the feedback window, 0 when
// the window is empty.
func (s *State) FeedbackErrorRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feedbackErrorRateLocked()
}

func (s *State) feedbackErrorRateLocked() float64 {
	if s.fbWindowTotal == 0 {
		return 0
	}
	return float64(s.fbWindowIncorrect) / float64(s.fbWindowTotal)
}

// RecordPrediction caches the inputs behind an emitted event so later
// feedback can be converted into a label. The cache holds the most recent
// PredictionCacheCap entries; the oldest by timestamp is evicted.
func (s *State) RecordPrediction(eventID string, features models.FeatureVector, score float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.predictions) >= s.predCap {
		oldestID := ""
		var oldest time.Time
		for id, p := range s.predictions {
			if oldestID == "" || p.Timestamp.Before(oldest) {
				oldestID, oldest = id, p.Timestamp
			}
		}
		delete(s.predictions, oldestID)
	}
	s.predictions[eventID] = prediction{EventID: eventID, Timestamp: ts, Features: features, Score: score}
}

// LookupPrediction returns the cached prediction for an event id, if still
// retained.
func (s *State) LookupPrediction(eventID string) (prediction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.predictions[eventID]
	return p, ok
}

// NearestPrediction finds the cached prediction closest to ts within the
// window, for manual reports that never matched a flagged event.
func (s *State) NearestPrediction(ts time.Time, window time.Duration) (prediction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best prediction
	found := false
	for _, p := range s.predictions {
		d := p.Timestamp.Sub(ts)
		if d < 0 {
			d = -d
		}
		if d > window {
			continue
		}
		if !found {
			best, found = p, true
			continue
		}
		bd := best.Timestamp.Sub(ts)
		if bd < 0 {
			bd = -bd
		}
		if d < bd {
			best = p
		}
	}
	return best, found
}
