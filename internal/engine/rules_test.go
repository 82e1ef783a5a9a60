package engine

import (
	"testing"
	"time"

	"CalmPulse/internal/domain/models"
)

func ruleReading(hr float64, motion float64) models.Reading {
	return models.Reading{
		Timestamp:  time.Now(),
		HeartRate:  fp(hr),
		Motion:     fp(motion),
		Confidence: 1.0,
		Source:     models.SourceWatch,
	}
}

func TestExerciseGuardDominates(t *testing.T) {
	d := NewRuleDetector(DefaultParams())
	baseline := models.Baseline{AvgHeartRate: 60, AvgHRV: 60}

	// Extreme elevation and suppressed HRV, but the user is moving hard.
	r := ruleReading(190, 3.5)
	r.HRV = fp(10)
	if ev := d.Detect(r, baseline, false); ev != nil {
		t.Fatalf("exercise guard must suppress detection, got %+v", ev)
	}
}

func TestThirtyThreePercentElevationFires(t *testing.T) {
	d := NewRuleDetector(DefaultParams())
	baseline := models.Baseline{AvgHeartRate: 60}

	ev := d.Detect(ruleReading(80, 0.2), baseline, false)
	if ev == nil {
		t.Fatalf("expected detection at 33%% above baseline while sedentary")
	}
	if ev.Type != models.EventGeneralSpike {
		t.Fatalf("type = %s, want %s", ev.Type, models.EventGeneralSpike)
	}
	if ev.Method != models.MethodRuleBased {
		t.Fatalf("method = %s, want %s", ev.Method, models.MethodRuleBased)
	}
	// delta 20 (+0.3), no HRV (+0.1), base 0.5: confidence 0.9.
	if ev.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", ev.Confidence)
	}
	if ev.Activity != models.ActivitySedentary {
		t.Fatalf("activity = %s, want %s", ev.Activity, models.ActivitySedentary)
	}
}

func TestNightDetectionIsPreSleep(t *testing.T) {
	d := NewRuleDetector(DefaultParams())
	ev := d.Detect(ruleReading(80, 0.2), models.Baseline{AvgHeartRate: 60}, true)
	if ev == nil {
		t.Fatalf("expected detection")
	}
	if ev.Type != models.EventPreSleep {
		t.Fatalf("type = %s, want %s", ev.Type, models.EventPreSleep)
	}
}

func TestNoDetectionWithoutHeartRate(t *testing.T) {
	d := NewRuleDetector(DefaultParams())
	r := models.Reading{Timestamp: time.Now(), Motion: fp(0.1), Confidence: 1}
	if ev := d.Detect(r, models.Baseline{AvgHeartRate: 60}, false); ev != nil {
		t.Fatalf("detection without heart rate")
	}
}

func TestElevationAloneIsNotEnoughWhenActive(t *testing.T) {
	d := NewRuleDetector(DefaultParams())
	baseline := models.Baseline{AvgHeartRate: 60, AvgHRV: 60}

	// Elevated HR, light activity (not sedentary), healthy HRV.
	r := ruleReading(80, 1.0)
	r.HRV = fp(58)
	if ev := d.Detect(r, baseline, false); ev != nil {
		t.Fatalf("need HRV reduction or sedentary state, got %+v", ev)
	}

	// Same but HRV clearly suppressed: fires.
	r.HRV = fp(20)
	if ev := d.Detect(r, baseline, false); ev == nil {
		t.Fatalf("suppressed HRV with elevation should fire")
	}
}

func TestLowSignalQualityScalesConfidenceBelowCutoff(t *testing.T) {
	d := NewRuleDetector(DefaultParams())
	r := ruleReading(80, 0.2)
	r.Confidence = 0.5 // 0.9 * 0.5 = 0.45 < 0.7
	if ev := d.Detect(r, models.Baseline{AvgHeartRate: 60}, false); ev != nil {
		t.Fatalf("low-quality reading must not fire, got %+v", ev)
	}
}

func TestConfidenceTiers(t *testing.T) {
	d := NewRuleDetector(DefaultParams())
	baseline := models.Baseline{AvgHeartRate: 60, AvgHRV: 60}

	// delta 30 (+0.4), hrv ratio 0.4 (+0.4): 0.5+0.8 clamped to 1.
	r := ruleReading(90, 0.2)
	r.HRV = fp(24)
	ev := d.Detect(r, baseline, false)
	if ev == nil {
		t.Fatalf("expected detection")
	}
	if ev.Confidence != 1 {
		t.Fatalf("confidence = %v, want clamp to 1", ev.Confidence)
	}
}
