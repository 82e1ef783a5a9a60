package engine

import (
	"CalmPulse/internal/domain/models"
)

// Combiner fuses the rule detector and the ML scorer according to the current
// detection phase. Phase is always derived fresh from the cumulative reading
// count and the trust score, never cached, so backfilled history moves the
// engine forward immediately.
type Combiner struct {
	params Params
}

func NewCombiner(params Params) *Combiner {
	return &Combiner{params: params}
}

// PhaseFor selects the detection regime from total historical reading volume.
func (c *Combiner) PhaseFor(readingCount int64) models.DetectionPhase {
	switch {
	case readingCount < c.params.PhaseHybridAt:
		return models.PhaseRulesOnly
	case readingCount < c.params.PhaseMLDominantAt:
		return models.PhaseHybrid
	default:
		return models.PhaseMLDominant
	}
}

// Weights returns (ruleWeight, mlWeight) for a phase. In the ML-dominant
// phase the ML weight scales with how often the user confirmed past events:
// full trust gives 0.8, zero trust degrades to an even split.
func (c *Combiner) Weights(phase models.DetectionPhase, trust float64) (ruleW, mlW float64) {
	switch phase {
	case models.PhaseRulesOnly:
		return 1, 0
	case models.PhaseHybrid:
		return 0.7, 0.3
	default:
		mlW = 0.8*trust + 0.5*(1-trust)
		return 1 - mlW, mlW
	}
}

// Fuse merges the two detector outputs under the given phase. Either input
// may be nil. A lone detector firing on the minority-weight side is
// suppressed: an intentional policy to avoid verdicts flip-flopping as the
// weights shift across phases.
func (c *Combiner) Fuse(ruleEv, mlEv *models.AnxietyEvent, phase models.DetectionPhase, trust float64) *models.AnxietyEvent {
	if phase == models.PhaseRulesOnly {
		return ruleEv
	}
	ruleW, mlW := c.Weights(phase, trust)

	switch {
	case ruleEv != nil && mlEv != nil:
		out := *ruleEv
		out.Confidence = ruleEv.Confidence*ruleW + mlEv.Confidence*mlW
		out.Method = models.MethodHybrid
		return &out
	case ruleEv != nil && mlW < 0.5:
		out := *ruleEv
		out.Method = models.MethodHybridRuleDominant
		return &out
	case mlEv != nil && mlW >= 0.5:
		out := *mlEv
		out.Method = models.MethodHybridMLDominant
		return &out
	default:
		return nil
	}
}
