package engine

import "time"

// Params holds the tunable constants of the detection core. Values are fixed
// at construction; nothing reloads them mid-session.
type Params struct {
	RuleHRElevationPct       float64 // HR elevated when hr > baseline*(1+pct)
	RuleHRVReductionPct      float64 // HRV reduced when hrv < baseline*(1-pct)
	MinConfidence            float64 // detectors below this do not fire
	ExerciseMotionThreshold  float64 // above this the user is exercising
	SedentaryMotionThreshold float64
	PhaseHybridAt            int64 // reading count entering HYBRID
	PhaseMLDominantAt        int64 // reading count entering ML_DOMINANT
	BaselineMinSamples       int
	BaselineBlendRatio       float64
	ThresholdLearningRate    float64
	ThresholdMin             float64 // scorer decision threshold bounds
	ThresholdMax             float64
	AlertThresholdMin        float64 // personalized alert threshold bounds
	AlertThresholdMax        float64
	NightStartHour           int // inclusive
	NightEndHour             int // exclusive
	MaxReadingAge            time.Duration
	RecalcEvery              int // baseline recalculation cadence, in readings
	BootstrapReadingLimit    int
	WindowSize               int // recent readings kept for features/rules
	MinRecentForML           int
	HistoryCap               int // (features, score, label) tuples retained
	PredictionCacheCap       int
	ManualMatchWindow        time.Duration
}

// DefaultParams returns the calibration the engine ships with.
func DefaultParams() Params {
	return Params{
		RuleHRElevationPct:       0.2,
		RuleHRVReductionPct:      0.3,
		MinConfidence:            0.7,
		ExerciseMotionThreshold:  2.0,
		SedentaryMotionThreshold: 0.5,
		PhaseHybridAt:            100,
		PhaseMLDominantAt:        500,
		BaselineMinSamples:       10,
		BaselineBlendRatio:       0.1,
		ThresholdLearningRate:    0.01,
		ThresholdMin:             0.2,
		ThresholdMax:             0.8,
		AlertThresholdMin:        0.5,
		AlertThresholdMax:        0.9,
		NightStartHour:           22,
		NightEndHour:             6,
		MaxReadingAge:            time.Hour,
		RecalcEvery:              60,
		BootstrapReadingLimit:    1000,
		WindowSize:               20,
		MinRecentForML:           5,
		HistoryCap:               1000,
		PredictionCacheCap:       50,
		ManualMatchWindow:        10 * time.Minute,
	}
}

// IsNight reports whether the local hour falls in the pre-sleep window.
func (p Params) IsNight(hour int) bool {
	if p.NightStartHour > p.NightEndHour {
		return hour >= p.NightStartHour || hour < p.NightEndHour
	}
	return hour >= p.NightStartHour && hour < p.NightEndHour
}
