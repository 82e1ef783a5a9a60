package engine

import (
	"testing"
	"time"

	"CalmPulse/internal/domain/models"
)

func TestSanitizeNullsOutOfRangeHeartRate(t *testing.T) {
	now := time.Now()
	for _, hr := range []float64{39, 39.9, 201, 250, -10} {
		r := models.Reading{
			Timestamp:  now,
			HeartRate:  fp(hr),
			HRV:        fp(50),
			Motion:     fp(0.3),
			Confidence: 0.9,
			Source:     models.SourceWatch,
		}
		out, ok := Sanitize(r, now, time.Hour)
		if !ok {
			t.Fatalf("hr %v: reading rejected, want accepted", hr)
		}
		if out.HeartRate != nil {
			t.Fatalf("hr %v: heart rate not nulled", hr)
		}
		if out.HRV == nil || *out.HRV != 50 {
			t.Fatalf("hr %v: hrv modified", hr)
		}
		if out.Motion == nil || *out.Motion != 0.3 {
			t.Fatalf("hr %v: motion modified", hr)
		}
		if out.Confidence != 0.9 {
			t.Fatalf("hr %v: confidence modified", hr)
		}
	}
}

func TestSanitizeKeepsBoundaryValues(t *testing.T) {
	now := time.Now()
	r := models.Reading{Timestamp: now, HeartRate: fp(40), HRV: fp(5), Temperature: fp(32)}
	out, ok := Sanitize(r, now, time.Hour)
	if !ok {
		t.Fatalf("rejected")
	}
	if out.HeartRate == nil || out.HRV == nil || out.Temperature == nil {
		t.Fatalf("boundary values must survive: %+v", out)
	}
}

func TestSanitizeNullsImplausibleHRVAndTemp(t *testing.T) {
	now := time.Now()
	r := models.Reading{Timestamp: now, HRV: fp(300), Temperature: fp(45)}
	out, _ := Sanitize(r, now, time.Hour)
	if out.HRV != nil {
		t.Fatalf("hrv 300 not nulled")
	}
	if out.Temperature != nil {
		t.Fatalf("temperature 45 not nulled")
	}
}

func TestSanitizeRejectsStaleAndFutureReadings(t *testing.T) {
	now := time.Now()
	past := models.Reading{Timestamp: now.Add(-61 * time.Minute), HeartRate: fp(70)}
	if _, ok := Sanitize(past, now, time.Hour); ok {
		t.Fatalf("reading 61m in the past must be rejected")
	}
	future := models.Reading{Timestamp: now.Add(61 * time.Minute), HeartRate: fp(70)}
	if _, ok := Sanitize(future, now, time.Hour); ok {
		t.Fatalf("reading 61m in the future must be rejected")
	}
	recent := models.Reading{Timestamp: now.Add(-59 * time.Minute), HeartRate: fp(70)}
	if _, ok := Sanitize(recent, now, time.Hour); !ok {
		t.Fatalf("reading 59m in the past must be accepted")
	}
}

func TestSanitizeClampsConfidence(t *testing.T) {
	now := time.Now()
	out, _ := Sanitize(models.Reading{Timestamp: now, Confidence: 1.7}, now, time.Hour)
	if out.Confidence != 1 {
		t.Fatalf("confidence = %v, want 1", out.Confidence)
	}
}
