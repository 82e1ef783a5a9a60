package engine

import (
	"math"
	"testing"
	"time"

	"CalmPulse/internal/domain/models"
)

func TestBuildFeaturesLengthAndFiniteness(t *testing.T) {
	// All-nil optionals, zero baseline, no context at all.
	fv := BuildFeatures(models.Reading{Timestamp: time.Now()}, models.Baseline{}, nil, nil)
	if len(fv) != models.FeatureCount {
		t.Fatalf("vector length = %d, want %d", len(fv), models.FeatureCount)
	}
	for i, v := range fv {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("feature %d is not finite: %v", i, v)
		}
	}
}

func TestBuildFeaturesDeltasAndRatios(t *testing.T) {
	ts := atHour(6, 0)
	current := models.Reading{
		Timestamp: ts,
		HeartRate: fp(90),
		HRV:       fp(30),
		Motion:    fp(0.2),
	}
	baseline := models.Baseline{Hour: 6, AvgHeartRate: 60, AvgHRV: 60}

	fv := BuildFeatures(current, baseline, nil, nil)
	if fv[models.FeatHRDelta] != 30 {
		t.Fatalf("hr delta = %v, want 30", fv[models.FeatHRDelta])
	}
	if fv[models.FeatHRPercentile] != 0.5 {
		t.Fatalf("hr percentile = %v, want 0.5", fv[models.FeatHRPercentile])
	}
	if fv[models.FeatHRVRatio] != 0.5 {
		t.Fatalf("hrv ratio = %v, want 0.5", fv[models.FeatHRVRatio])
	}
}

func TestBuildFeaturesZeroBaselineDefaults(t *testing.T) {
	fv := BuildFeatures(models.Reading{Timestamp: time.Now(), HeartRate: fp(80)},
		models.Baseline{}, nil, nil)
	if fv[models.FeatHRPercentile] != 0 {
		t.Fatalf("hr percentile with zero baseline = %v, want 0", fv[models.FeatHRPercentile])
	}
	if fv[models.FeatHRVRatio] != 1 {
		t.Fatalf("hrv ratio with zero baseline = %v, want 1", fv[models.FeatHRVRatio])
	}
}

func TestBuildFeaturesCircadianEncoding(t *testing.T) {
	ts := atHour(6, 0)
	fv := BuildFeatures(models.Reading{Timestamp: ts, HeartRate: fp(60)},
		models.Baseline{AvgHeartRate: 60}, nil, nil)
	if math.Abs(fv[models.FeatHourSin]-1) > 1e-9 {
		t.Fatalf("sin(2pi*6/24) = %v, want 1", fv[models.FeatHourSin])
	}
	if math.Abs(fv[models.FeatHourCos]) > 1e-9 {
		t.Fatalf("cos(2pi*6/24) = %v, want 0", fv[models.FeatHourCos])
	}
}

func TestTrendSlopeRequiresTwoPoints(t *testing.T) {
	ref := time.Now()
	if s := trendSlope([]models.Reading{reading(ref, 70)}, ref, 5*time.Minute); s != 0 {
		t.Fatalf("slope with one point = %v, want 0", s)
	}

	// Strictly increasing heart rate: positive slope of 2 bpm per sample.
	var rs []models.Reading
	for i := 0; i < 5; i++ {
		rs = append(rs, reading(ref.Add(time.Duration(i-5)*30*time.Second), 70+float64(i)*2))
	}
	s := trendSlope(rs, ref, 5*time.Minute)
	if math.Abs(s-2) > 1e-9 {
		t.Fatalf("slope = %v, want 2", s)
	}
}

func TestTrendSlopeIgnoresReadingsOutsideLookback(t *testing.T) {
	ref := time.Now()
	rs := []models.Reading{
		reading(ref.Add(-20*time.Minute), 200), // outside 5m lookback
		reading(ref.Add(-2*time.Minute), 70),
		reading(ref.Add(-1*time.Minute), 70),
	}
	if s := trendSlope(rs, ref, 5*time.Minute); s != 0 {
		t.Fatalf("slope = %v, want 0 (flat inside lookback)", s)
	}
}

func TestHRStdDev(t *testing.T) {
	ref := time.Now()
	rs := []models.Reading{reading(ref, 70), reading(ref, 70), reading(ref, 70)}
	if sd := hrStdDev(rs, 10); sd != 0 {
		t.Fatalf("stddev of constant series = %v, want 0", sd)
	}
	if sd := hrStdDev(rs[:1], 10); sd != 0 {
		t.Fatalf("stddev with one point = %v, want 0", sd)
	}
}

func TestSustainedElevationStopsAtFirstFailure(t *testing.T) {
	ref := time.Now()
	rs := []models.Reading{
		reading(ref.Add(-4*time.Minute), 90), // above threshold but not consecutive
		reading(ref.Add(-3*time.Minute), 60),
		reading(ref.Add(-2*time.Minute), 85),
		reading(ref.Add(-1*time.Minute), 85),
	}
	// baseline 60: threshold is 69.
	if n := sustainedElevation(rs, 60, 20); n != 2 {
		t.Fatalf("sustained count = %d, want 2", n)
	}
	if n := sustainedElevation(rs, 0, 20); n != 0 {
		t.Fatalf("sustained count with zero baseline = %d, want 0", n)
	}
}

func TestFeedbackSignalsDefaultNeutral(t *testing.T) {
	fp_, trust := feedbackSignals(nil)
	if fp_ != 0.5 || trust != 0.5 {
		t.Fatalf("defaults = (%v, %v), want (0.5, 0.5)", fp_, trust)
	}

	fb := []models.Feedback{
		{EventID: "e1", WasCorrect: true}, {EventID: "e2", WasCorrect: true},
		{EventID: "e3", WasCorrect: false}, {EventID: "e4", WasCorrect: false},
	}
	fp_, trust = feedbackSignals(fb)
	if fp_ != 0.5 || trust != 0.5 {
		t.Fatalf("half-correct = (%v, %v), want (0.5, 0.5)", fp_, trust)
	}

	fb = append(fb, models.Feedback{EventID: "e5", WasCorrect: true})
	fp_, trust = feedbackSignals(fb)
	if trust != 0.6 {
		t.Fatalf("trust = %v, want 0.6", trust)
	}
	if math.Abs(fp_-0.4) > 1e-9 {
		t.Fatalf("fp rate = %v, want 0.4", fp_)
	}
}

func TestFeedbackSignalsManualMissIsNotFalsePositive(t *testing.T) {
	// An unmatched manual report has no event id: a miss, not a false alarm.
	// It lowers trust but leaves the false-positive rate alone.
	fb := []models.Feedback{
		{EventID: "e1", WasCorrect: true},
		{WasCorrect: false},
	}
	fp_, trust := feedbackSignals(fb)
	if fp_ != 0 {
		t.Fatalf("fp rate = %v, want 0 (no incorrect event verdicts)", fp_)
	}
	if trust != 0.5 {
		t.Fatalf("trust = %v, want 0.5", trust)
	}

	// With only misses the event set is empty: the rate stays neutral.
	fp_, _ = feedbackSignals([]models.Feedback{{WasCorrect: false}})
	if fp_ != 0.5 {
		t.Fatalf("fp rate = %v, want neutral 0.5 with no event feedback", fp_)
	}
}
