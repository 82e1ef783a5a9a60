package engine

import (
	"CalmPulse/internal/domain/models"
)

// RuleDetector is the day-one detector: pure thresholding against the hourly
// baseline, usable before any model or feedback exists.
type RuleDetector struct {
	params Params
}

func NewRuleDetector(params Params) *RuleDetector {
	return &RuleDetector{params: params}
}

// Detect evaluates one reading against its hour baseline. A nil result means
// no detection. The exercise guard dominates every other condition: elevated
// heart rate during movement is exertion, not anxiety.
func (d *RuleDetector) Detect(current models.Reading, baseline models.Baseline, isNight bool) *models.AnxietyEvent {
	if current.HeartRate == nil {
		return nil
	}
	motion := valueOrZero(current.Motion)
	if motion > d.params.ExerciseMotionThreshold {
		return nil
	}

	hr := *current.HeartRate
	hrElevated := hr > baseline.AvgHeartRate*(1+d.params.RuleHRElevationPct)
	hrvReduced := false
	if current.HRV != nil && baseline.AvgHRV > 0 {
		hrvReduced = *current.HRV < baseline.AvgHRV*(1-d.params.RuleHRVReductionPct)
	}
	sedentary := motion < d.params.SedentaryMotionThreshold

	if !hrElevated || !(hrvReduced || sedentary) {
		return nil
	}

	confidence := d.confidence(current, baseline)
	if confidence < d.params.MinConfidence {
		return nil
	}

	evType := models.EventGeneralSpike
	if isNight {
		evType = models.EventPreSleep
	}
	ev := &models.AnxietyEvent{
		Timestamp:         current.Timestamp,
		Type:              evType,
		Confidence:        confidence,
		HeartRate:         hr,
		BaselineHeartRate: baseline.AvgHeartRate,
		HRV:               current.HRV,
		Temperature:       current.Temperature,
		Activity:          activityFor(motion, d.params),
		Method:            models.MethodRuleBased,
		Source:            current.Source,
	}
	if baseline.AvgHRV > 0 {
		v := baseline.AvgHRV
		ev.BaselineHRV = &v
	}
	ev.BaselineTemperature = baseline.AvgTemp
	return ev
}

// confidence starts from a 0.5 base and adds tiers for heart-rate delta
// magnitude and HRV suppression, then scales by the reading's own reported
// signal quality.
func (d *RuleDetector) confidence(current models.Reading, baseline models.Baseline) float64 {
	delta := *current.HeartRate - baseline.AvgHeartRate

	conf := 0.5
	switch {
	case delta > 25:
		conf += 0.4
	case delta > 15:
		conf += 0.3
	case delta > 10:
		conf += 0.2
	}

	ratio := 1.0
	if current.HRV != nil && baseline.AvgHRV > 0 {
		ratio = *current.HRV / baseline.AvgHRV
	}
	switch {
	case ratio < 0.5:
		conf += 0.4
	case ratio < 0.7:
		conf += 0.3
	default:
		conf += 0.1
	}

	conf *= current.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return conf
}

func activityFor(motion float64, p Params) models.ActivityLevel {
	switch {
	case motion < p.SedentaryMotionThreshold:
		return models.ActivitySedentary
	case motion <= p.ExerciseMotionThreshold:
		return models.ActivityLight
	default:
		return models.ActivityActive
	}
}
