package engine

import (
	"math"
	"time"

	"CalmPulse/internal/domain/models"
)

// BuildFeatures encodes a reading plus its context into the fixed 20-slot
// vector the scorer was trained on. Pure and deterministic: no I/O, and every
// slot is finite for any well-formed input, including all-nil optionals.
//
// recent must be in chronological order (oldest first) and should cover the
// engine window; feedback is the user feedback from the last 24 hours.
func BuildFeatures(current models.Reading, baseline models.Baseline, recent []models.Reading, feedback []models.Feedback) models.FeatureVector {
	var fv models.FeatureVector

	hr := valueOrZero(current.HeartRate)
	fv[models.FeatCurrentHR] = hr
	fv[models.FeatBaselineHR] = baseline.AvgHeartRate
	delta := hr - baseline.AvgHeartRate
	fv[models.FeatHRDelta] = delta
	if baseline.AvgHeartRate != 0 {
		fv[models.FeatHRPercentile] = delta / baseline.AvgHeartRate
	}

	hrv := valueOrZero(current.HRV)
	fv[models.FeatCurrentHRV] = hrv
	fv[models.FeatBaselineHRV] = baseline.AvgHRV
	fv[models.FeatHRVDelta] = hrv - baseline.AvgHRV
	if baseline.AvgHRV != 0 {
		fv[models.FeatHRVRatio] = hrv / baseline.AvgHRV
	} else {
		fv[models.FeatHRVRatio] = 1
	}

	fv[models.FeatTemperature] = valueOrZero(current.Temperature)
	if current.Temperature != nil && baseline.AvgTemp != nil {
		fv[models.FeatTempDelta] = *current.Temperature - *baseline.AvgTemp
	}
	fv[models.FeatMotion] = valueOrZero(current.Motion)

	local := current.Timestamp.Local()
	hour := float64(local.Hour())
	fv[models.FeatHourSin] = math.Sin(2 * math.Pi * hour / 24)
	fv[models.FeatHourCos] = math.Cos(2 * math.Pi * hour / 24)
	fv[models.FeatDayOfWeek] = float64(local.Weekday())

	fv[models.FeatTrendSlopeShort] = trendSlope(recent, current.Timestamp, 5*time.Minute)
	fv[models.FeatTrendSlopeMedium] = trendSlope(recent, current.Timestamp, 15*time.Minute)
	fv[models.FeatHRVariability] = hrStdDev(recent, 10)
	fv[models.FeatSustainedElevation] = float64(sustainedElevation(recent, baseline.AvgHeartRate, 20))

	fpRate, trust := feedbackSignals(feedback)
	fv[models.FeatFalsePositiveRate] = fpRate
	fv[models.FeatTrustScore] = trust

	for i := range fv {
		if math.IsNaN(fv[i]) || math.IsInf(fv[i], 0) {
			fv[i] = 0
		}
	}
	return fv
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// trendSlope fits an ordinary least-squares line of heart rate against sample
// index over readings within the lookback window. Fewer than 2 points yields
// a flat slope.
func trendSlope(recent []models.Reading, ref time.Time, lookback time.Duration) float64 {
	cutoff := ref.Add(-lookback)
	var xs, ys []float64
	for _, r := range recent {
		if r.HeartRate == nil || r.Timestamp.Before(cutoff) {
			continue
		}
		xs = append(xs, float64(len(xs)))
		ys = append(ys, *r.HeartRate)
	}
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / den
}

// hrStdDev is the sample standard deviation of heart rate over the last n
// readings that carry one.
func hrStdDev(recent []models.Reading, n int) float64 {
	var vals []float64
	for _, r := range recent {
		if r.HeartRate != nil {
			vals = append(vals, *r.HeartRate)
		}
	}
	if len(vals) > n {
		vals = vals[len(vals)-n:]
	}
	if len(vals) < 2 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

// sustainedElevation counts consecutive most-recent readings whose heart rate
// exceeds 1.15x the baseline, scanning backward over at most limit readings
// and stopping at the first that fails.
func sustainedElevation(recent []models.Reading, baselineHR float64, limit int) int {
	if baselineHR <= 0 {
		return 0
	}
	threshold := baselineHR * 1.15
	count := 0
	for i := len(recent) - 1; i >= 0 && count < limit; i-- {
		r := recent[i]
		if r.HeartRate == nil || *r.HeartRate <= threshold {
			break
		}
		count++
	}
	return count
}

// feedbackSignals derives the recent false-positive rate and the trust score
// from feedback. Trust covers all feedback; the false-positive rate counts
// only verdicts on emitted events, so an unmatched manual report (a miss,
// not a false alarm) does not inflate it. Each signal defaults to a neutral
// 0.5 when its input set is empty.
func feedbackSignals(feedback []models.Feedback) (fpRate, trust float64) {
	if len(feedback) == 0 {
		return 0.5, 0.5
	}
	correct := 0
	eventTotal, eventIncorrect := 0, 0
	for _, fb := range feedback {
		if fb.WasCorrect {
			correct++
		}
		if fb.EventID == "" {
			continue
		}
		eventTotal++
		if !fb.WasCorrect {
			eventIncorrect++
		}
	}
	trust = float64(correct) / float64(len(feedback))
	if eventTotal == 0 {
		return 0.5, trust
	}
	return float64(eventIncorrect) / float64(eventTotal), trust
}
