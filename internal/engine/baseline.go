package engine

import (
	"context"
	"fmt"
	"time"

	"CalmPulse/internal/domain/models"
	drepo "CalmPulse/internal/domain/repository"
	xlogger "CalmPulse/pkg/logger"
)

// BaselineEngine maintains one statistical baseline per hour-of-day bucket.
// Baselines materialize only once enough readings contributed; before that
// the bucket simply has no baseline and detection for that hour is disabled.
type BaselineEngine struct {
	store  drepo.Store
	logger *xlogger.Logger
	params Params
}

func NewBaselineEngine(store drepo.Store, logger *xlogger.Logger, params Params) *BaselineEngine {
	return &BaselineEngine{store: store, logger: logger, params: params}
}

// Calculate aggregates readings into a baseline for one hour bucket. Returns
// nil when fewer than BaselineMinSamples readings carry a heart rate. HRV and
// temperature means use only the readings that have them.
func (e *BaselineEngine) Calculate(readings []models.Reading, hour int, source models.BiometricSource) *models.Baseline {
	var (
		hrSum, hrvSum, tempSum float64
		hrN, hrvN, tempN       int
	)
	for _, r := range readings {
		if r.HeartRate == nil {
			continue
		}
		hrSum += *r.HeartRate
		hrN++
		if r.HRV != nil {
			hrvSum += *r.HRV
			hrvN++
		}
		if r.Temperature != nil {
			tempSum += *r.Temperature
			tempN++
		}
	}
	if hrN < e.params.BaselineMinSamples {
		return nil
	}

	b := &models.Baseline{
		Hour:         hour,
		AvgHeartRate: hrSum / float64(hrN),
		DataPoints:   hrN,
		UpdatedAt:    time.Now(),
		Source:       source,
	}
	if hrvN > 0 {
		b.AvgHRV = hrvSum / float64(hrvN)
	}
	if tempN > 0 {
		t := tempSum / float64(tempN)
		b.AvgTemp = &t
	}
	return b
}

// Update blends a candidate baseline computed from newReadings into existing
// using linear interpolation at the configured blend ratio. The result always
// replaces the stored bucket whole.
func (e *BaselineEngine) Update(existing models.Baseline, newReadings []models.Reading) models.Baseline {
	candidate := e.Calculate(newReadings, existing.Hour, existing.Source)
	if candidate == nil {
		// Not enough fresh material; only bump bookkeeping.
		existing.DataPoints += len(newReadings)
		existing.UpdatedAt = time.Now()
		return existing
	}

	r := e.params.BaselineBlendRatio
	out := existing
	out.AvgHeartRate = blend(existing.AvgHeartRate, candidate.AvgHeartRate, r)
	out.AvgHRV = blend(existing.AvgHRV, candidate.AvgHRV, r)
	switch {
	case existing.AvgTemp != nil && candidate.AvgTemp != nil:
		t := blend(*existing.AvgTemp, *candidate.AvgTemp, r)
		out.AvgTemp = &t
	case candidate.AvgTemp != nil:
		out.AvgTemp = candidate.AvgTemp
	}
	out.DataPoints = existing.DataPoints + len(newReadings)
	out.UpdatedAt = time.Now()
	return out
}

func blend(old, incoming, ratio float64) float64 {
	return old*(1-ratio) + incoming*ratio
}

// Bootstrap materializes initial baselines from stored history on first run.
// It is a no-op when any baseline already exists. Errors are logged, never
// fatal: a missing baseline just disables detection for its hour.
func (e *BaselineEngine) Bootstrap(ctx context.Context) {
	existing, err := e.store.Baselines(ctx)
	if err != nil {
		e.logger.Error("baseline bootstrap: list failed", xlogger.Error(err))
		return
	}
	if len(existing) > 0 {
		return
	}

	readings, err := e.store.RecentReadings(ctx, e.params.BootstrapReadingLimit)
	if err != nil {
		e.logger.Error("baseline bootstrap: fetch readings failed", xlogger.Error(err))
		return
	}
	created := 0
	for hour, group := range groupByHour(readings) {
		b := e.Calculate(group, hour, dominantSource(group))
		if b == nil {
			continue
		}
		if err := e.store.SaveBaseline(ctx, *b); err != nil {
			e.logger.Error("baseline bootstrap: save failed",
				xlogger.Int("hour", hour), xlogger.Error(err))
			continue
		}
		created++
	}
	e.logger.Info("baseline bootstrap complete",
		xlogger.Int("readings", len(readings)), xlogger.Int("baselines", created))
}

// MaterializeHour tries to create a missing baseline for one hour bucket
// from stored history. Returns nil when the bucket still lacks enough
// heart-rate samples.
func (e *BaselineEngine) MaterializeHour(ctx context.Context, hour int) (*models.Baseline, error) {
	readings, err := e.store.RecentReadings(ctx, e.params.BootstrapReadingLimit)
	if err != nil {
		return nil, fmt.Errorf("materialize hour %d: %w", hour, err)
	}
	group := groupByHour(readings)[hour]
	b := e.Calculate(group, hour, dominantSource(group))
	if b == nil {
		return nil, nil
	}
	if err := e.store.SaveBaseline(ctx, *b); err != nil {
		return nil, fmt.Errorf("materialize hour %d: save: %w", hour, err)
	}
	e.logger.Info("baseline materialized",
		xlogger.Int("hour", hour), xlogger.Int("data_points", b.DataPoints))
	return b, nil
}

// Recalculate refreshes hour buckets that accumulated enough fresh same-hour
// readings. Each bucket is written atomically as a whole value.
func (e *BaselineEngine) Recalculate(ctx context.Context, recent []models.Reading) error {
	for hour, group := range groupByHour(recent) {
		if countWithHR(group) < e.params.BaselineMinSamples {
			continue
		}
		existing, err := e.store.Baseline(ctx, hour)
		if err != nil {
			return fmt.Errorf("baseline lookup hour %d: %w", hour, err)
		}
		var next *models.Baseline
		if existing == nil {
			next = e.Calculate(group, hour, dominantSource(group))
		} else {
			b := e.Update(*existing, group)
			next = &b
		}
		if next == nil {
			continue
		}
		if err := e.store.SaveBaseline(ctx, *next); err != nil {
			return fmt.Errorf("baseline save hour %d: %w", hour, err)
		}
	}
	return nil
}

func groupByHour(readings []models.Reading) map[int][]models.Reading {
	grouped := make(map[int][]models.Reading)
	for _, r := range readings {
		h := r.Timestamp.Local().Hour()
		grouped[h] = append(grouped[h], r)
	}
	return grouped
}

func countWithHR(readings []models.Reading) int {
	n := 0
	for _, r := range readings {
		if r.HeartRate != nil {
			n++
		}
	}
	return n
}

func dominantSource(readings []models.Reading) models.BiometricSource {
	counts := make(map[models.BiometricSource]int)
	for _, r := range readings {
		counts[r.Source]++
	}
	best := models.SourceWatch
	bestN := 0
	for src, n := range counts {
		if n > bestN {
			best, bestN = src, n
		}
	}
	return best
}
