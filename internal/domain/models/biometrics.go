package models

import "time"

// BiometricSource identifies which device produced a reading. The set is
// closed; ingest adapters must map vendor identifiers onto one of these.
type BiometricSource string

const (
	SourceWatch     BiometricSource = "watch"
	SourceBand      BiometricSource = "band"
	SourcePhone     BiometricSource = "phone"
	SourceSimulator BiometricSource = "simulator"
)

// Reading is an immutable snapshot of wearable biometrics at one instant.
// Optional channels are pointers: a sensor that reported nothing and a sensor
// that reported zero are different things.
type Reading struct {
	Timestamp   time.Time
	HeartRate   *float64 // beats per minute
	HRV         *float64 // RMSSD, milliseconds
	Temperature *float64 // skin temperature, Celsius
	Motion      *float64 // accelerometer magnitude, unitless >= 0
	Confidence  float64  // source-reported signal quality, 0..1
	Source      BiometricSource
}

// Baseline is the per-hour-of-day statistical reference a reading is compared
// against. One instance exists per hour bucket 0-23, and only once at least
// MinBaselineSamples readings contributed to it.
type Baseline struct {
	Hour         int // 0..23
	AvgHeartRate float64
	AvgHRV       float64
	AvgTemp      *float64
	DataPoints   int
	UpdatedAt    time.Time
	Source       BiometricSource
}

// Feature vector layout. The scorer artifact is trained against these exact
// positions; reordering breaks model compatibility.
const (
	FeatCurrentHR = iota
	FeatBaselineHR
	FeatHRDelta
	FeatHRPercentile
	FeatCurrentHRV
	FeatBaselineHRV
	FeatHRVDelta
	FeatHRVRatio
	FeatTemperature
	FeatTempDelta
	FeatMotion
	FeatHourSin
	FeatHourCos
	FeatDayOfWeek
	FeatTrendSlopeShort
	FeatTrendSlopeMedium
	FeatHRVariability
	FeatSustainedElevation
	FeatFalsePositiveRate
	FeatTrustScore

	FeatureCount = 20
)

// FeatureVector is the fixed-order numeric encoding consumed by the scorer.
type FeatureVector [FeatureCount]float64
