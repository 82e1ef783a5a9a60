package engine

import (
	"math"
	"testing"
	"time"

	"CalmPulse/internal/domain/models"
)

func TestPhaseSelection(t *testing.T) {
	c := NewCombiner(DefaultParams())
	cases := []struct {
		count int64
		want  models.DetectionPhase
	}{
		{0, models.PhaseRulesOnly},
		{50, models.PhaseRulesOnly},
		{99, models.PhaseRulesOnly},
		{100, models.PhaseHybrid},
		{250, models.PhaseHybrid},
		{499, models.PhaseHybrid},
		{500, models.PhaseMLDominant},
		{1000, models.PhaseMLDominant},
	}
	for _, tc := range cases {
		if got := c.PhaseFor(tc.count); got != tc.want {
			t.Fatalf("PhaseFor(%d) = %s, want %s", tc.count, got, tc.want)
		}
	}
}

func TestWeightsPerPhase(t *testing.T) {
	c := NewCombiner(DefaultParams())

	if rw, mw := c.Weights(models.PhaseRulesOnly, 0.9); rw != 1 || mw != 0 {
		t.Fatalf("rules-only weights = (%v, %v), want (1, 0)", rw, mw)
	}
	if rw, mw := c.Weights(models.PhaseHybrid, 0.9); rw != 0.7 || mw != 0.3 {
		t.Fatalf("hybrid weights = (%v, %v), want (0.7, 0.3)", rw, mw)
	}

	// ML-dominant: full trust 0.8, no trust falls to an even split.
	if _, mw := c.Weights(models.PhaseMLDominant, 1); math.Abs(mw-0.8) > 1e-9 {
		t.Fatalf("ml weight at full trust = %v, want 0.8", mw)
	}
	if _, mw := c.Weights(models.PhaseMLDominant, 0); math.Abs(mw-0.5) > 1e-9 {
		t.Fatalf("ml weight at zero trust = %v, want 0.5", mw)
	}
	if _, mw := c.Weights(models.PhaseMLDominant, 0.5); math.Abs(mw-0.65) > 1e-9 {
		t.Fatalf("ml weight at 0.5 trust = %v, want 0.65", mw)
	}
}

func fuseEvent(conf float64, method models.DetectionMethod) *models.AnxietyEvent {
	return &models.AnxietyEvent{
		Timestamp:  time.Now(),
		Type:       models.EventGeneralSpike,
		Confidence: conf,
		Method:     method,
	}
}

func TestFuseRulesOnlyPassesRuleEventThrough(t *testing.T) {
	c := NewCombiner(DefaultParams())
	ruleEv := fuseEvent(0.9, models.MethodRuleBased)
	mlEv := fuseEvent(0.95, models.MethodMLBased)

	if out := c.Fuse(ruleEv, mlEv, models.PhaseRulesOnly, 0.5); out != ruleEv {
		t.Fatalf("rules-only phase must return the rule event untouched")
	}
	if out := c.Fuse(nil, mlEv, models.PhaseRulesOnly, 0.5); out != nil {
		t.Fatalf("rules-only phase must ignore ML detections, got %+v", out)
	}
}

func TestFuseBothDetectorsWeightsConfidence(t *testing.T) {
	c := NewCombiner(DefaultParams())
	ruleEv := fuseEvent(0.9, models.MethodRuleBased)
	mlEv := fuseEvent(0.6, models.MethodMLBased)

	out := c.Fuse(ruleEv, mlEv, models.PhaseHybrid, 0.5)
	if out == nil {
		t.Fatalf("expected fused event")
	}
	want := 0.9*0.7 + 0.6*0.3
	if math.Abs(out.Confidence-want) > 1e-9 {
		t.Fatalf("fused confidence = %v, want %v", out.Confidence, want)
	}
	if out.Method != models.MethodHybrid {
		t.Fatalf("method = %s, want %s", out.Method, models.MethodHybrid)
	}
	if ruleEv.Confidence != 0.9 {
		t.Fatalf("fuse must not mutate its inputs")
	}
}

func TestFuseLoneDetectorSuppression(t *testing.T) {
	c := NewCombiner(DefaultParams())
	ruleEv := fuseEvent(0.9, models.MethodRuleBased)
	mlEv := fuseEvent(0.95, models.MethodMLBased)

	// Hybrid phase: ML weight 0.3, so a lone ML detection is suppressed and a
	// lone rule detection survives.
	if out := c.Fuse(nil, mlEv, models.PhaseHybrid, 0.5); out != nil {
		t.Fatalf("lone ML detection in hybrid phase must be suppressed")
	}
	out := c.Fuse(ruleEv, nil, models.PhaseHybrid, 0.5)
	if out == nil || out.Method != models.MethodHybridRuleDominant {
		t.Fatalf("lone rule detection in hybrid phase: got %+v", out)
	}

	// ML-dominant with decent trust: the roles flip.
	if out := c.Fuse(ruleEv, nil, models.PhaseMLDominant, 0.8); out != nil {
		t.Fatalf("lone rule detection under ML dominance must be suppressed")
	}
	out = c.Fuse(nil, mlEv, models.PhaseMLDominant, 0.8)
	if out == nil || out.Method != models.MethodHybridMLDominant {
		t.Fatalf("lone ML detection under ML dominance: got %+v", out)
	}
}

func TestFuseNothingFired(t *testing.T) {
	c := NewCombiner(DefaultParams())
	if out := c.Fuse(nil, nil, models.PhaseHybrid, 0.5); out != nil {
		t.Fatalf("no detector fired, got %+v", out)
	}
}
