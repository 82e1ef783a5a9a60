package models

import "time"

// EventType classifies a positive detection.
type EventType string

const (
	EventGeneralSpike       EventType = "general_anxiety_spike"
	EventPreSleep           EventType = "pre_sleep_anxiety"
	EventSustainedElevation EventType = "sustained_elevation"
	EventPatternAnomaly     EventType = "pattern_anomaly"
)

// DetectionMethod records which detector produced an event and, for hybrid
// results, which side dominated the weighting.
type DetectionMethod string

const (
	MethodRuleBased          DetectionMethod = "rule_based"
	MethodMLBased            DetectionMethod = "ml_based"
	MethodHybrid             DetectionMethod = "hybrid"
	MethodHybridRuleDominant DetectionMethod = "hybrid_rule_dominant"
	MethodHybridMLDominant   DetectionMethod = "hybrid_ml_dominant"
)

// ActivityLevel buckets motion magnitude at detection time.
type ActivityLevel string

const (
	ActivitySedentary ActivityLevel = "sedentary"
	ActivityLight     ActivityLevel = "light"
	ActivityActive    ActivityLevel = "active"
)

// DetectionPhase is the regime the hybrid combiner operates in, selected from
// cumulative data volume.
type DetectionPhase string

const (
	PhaseRulesOnly  DetectionPhase = "rules_only"
	PhaseHybrid     DetectionPhase = "hybrid"
	PhaseMLDominant DetectionPhase = "ml_dominant"
)

// AnxietyEvent is the result of a positive detection. Created only by the
// hybrid combiner and persisted by the repository; feedback refers to its ID.
type AnxietyEvent struct {
	ID                  string
	Timestamp           time.Time
	Type                EventType
	Confidence          float64 // 0..1
	HeartRate           float64
	BaselineHeartRate   float64
	HRV                 *float64
	BaselineHRV         *float64
	Temperature         *float64
	BaselineTemperature *float64
	Activity            ActivityLevel
	Method              DetectionMethod
	Source              BiometricSource
}

// FeedbackTiming categorizes how promptly the user answered.
type FeedbackTiming string

const (
	FeedbackImmediate     FeedbackTiming = "immediate"
	FeedbackDelayed       FeedbackTiming = "delayed"
	FeedbackRetrospective FeedbackTiming = "retrospective"
)

// Feedback is a user verdict on a past event. EventID is empty for manual
// reports that never matched a stored prediction. Never mutated.
type Feedback struct {
	ID           string
	Timestamp    time.Time
	EventID      string
	WasCorrect   bool
	AnxietyLevel *int // self-reported 0..10
	Notes        string
	Timing       FeedbackTiming
}

// EngineStatus is a point-in-time snapshot of the adaptive state, exposed for
// the status API and metrics.
type EngineStatus struct {
	Phase             DetectionPhase
	AdjustedThreshold float64
	ThresholdUpdates  int
	TrustScore        float64
	FeedbackErrorRate float64
	ReadingCount      int64
	Processed         int64
	ScorerReady       bool
}
