package engine

import (
	"time"

	"CalmPulse/internal/domain/models"
)

// Physiological plausibility bounds. Values outside are sensor artifacts, not
// extreme humans.
const (
	hrMinValid   = 40.0
	hrMaxValid   = 200.0
	hrvMinValid  = 5.0
	hrvMaxValid  = 200.0
	tempMinValid = 32.0
	tempMaxValid = 42.0
)

// Sanitize returns a cleaned copy of r with implausible channels nulled out.
// ok is false when the reading is too far from now in either direction, in
// which case the reading must not be forwarded downstream.
func Sanitize(r models.Reading, now time.Time, maxAge time.Duration) (models.Reading, bool) {
	age := now.Sub(r.Timestamp)
	if age > maxAge || age < -maxAge {
		return models.Reading{}, false
	}

	out := r
	if r.HeartRate != nil && (*r.HeartRate < hrMinValid || *r.HeartRate > hrMaxValid) {
		out.HeartRate = nil
	}
	if r.HRV != nil && (*r.HRV < hrvMinValid || *r.HRV > hrvMaxValid) {
		out.HRV = nil
	}
	if r.Temperature != nil && (*r.Temperature < tempMinValid || *r.Temperature > tempMaxValid) {
		out.Temperature = nil
	}
	if r.Motion != nil && *r.Motion < 0 {
		out.Motion = nil
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	} else if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, true
}
