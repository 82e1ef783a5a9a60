package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"CalmPulse/internal/domain/models"
)

func newBaselineEngine(t *testing.T, store *memStore) *BaselineEngine {
	t.Helper()
	return NewBaselineEngine(store, testLogger(t), DefaultParams())
}

func readingsWithHR(n int, hr float64, ts time.Time) []models.Reading {
	out := make([]models.Reading, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, reading(ts.Add(time.Duration(i)*time.Minute), hr))
	}
	return out
}

func TestCalculateRequiresMinimumSamples(t *testing.T) {
	e := newBaselineEngine(t, newMemStore())
	ts := atHour(8, 0)

	if b := e.Calculate(readingsWithHR(9, 70, ts), 8, models.SourceWatch); b != nil {
		t.Fatalf("9 readings must not materialize a baseline")
	}

	// 12 readings but only 9 with a heart rate.
	rs := readingsWithHR(9, 70, ts)
	for i := 0; i < 3; i++ {
		rs = append(rs, models.Reading{Timestamp: ts, Source: models.SourceWatch})
	}
	if b := e.Calculate(rs, 8, models.SourceWatch); b != nil {
		t.Fatalf("readings without heart rate must not count toward the minimum")
	}

	if b := e.Calculate(readingsWithHR(10, 70, ts), 8, models.SourceWatch); b == nil {
		t.Fatalf("10 readings with heart rate must materialize a baseline")
	}
}

func TestCalculateAveragesOnlyPresentChannels(t *testing.T) {
	e := newBaselineEngine(t, newMemStore())
	ts := atHour(9, 0)
	rs := readingsWithHR(10, 60, ts)
	rs[0].HRV = fp(40)
	rs[1].HRV = fp(60)
	rs[2].Temperature = fp(36)

	b := e.Calculate(rs, 9, models.SourceWatch)
	if b == nil {
		t.Fatalf("expected baseline")
	}
	if b.AvgHeartRate != 60 {
		t.Fatalf("avg hr = %v, want 60", b.AvgHeartRate)
	}
	if b.AvgHRV != 50 {
		t.Fatalf("avg hrv = %v, want 50 (mean over present values)", b.AvgHRV)
	}
	if b.AvgTemp == nil || *b.AvgTemp != 36 {
		t.Fatalf("avg temp = %v, want 36", b.AvgTemp)
	}
	if b.DataPoints != 10 {
		t.Fatalf("data points = %d, want 10", b.DataPoints)
	}
}

func TestUpdateBlendsAtConfiguredRatio(t *testing.T) {
	e := newBaselineEngine(t, newMemStore())
	existing := models.Baseline{Hour: 8, AvgHeartRate: 70, DataPoints: 40, Source: models.SourceWatch}

	updated := e.Update(existing, readingsWithHR(10, 80, atHour(8, 0)))
	if math.Abs(updated.AvgHeartRate-71.0) > 1e-9 {
		t.Fatalf("blended hr = %v, want 71.0", updated.AvgHeartRate)
	}
	if updated.DataPoints != 50 {
		t.Fatalf("data points = %d, want 50", updated.DataPoints)
	}
}

func TestUpdateWithTooFewFreshReadingsOnlyBumpsCount(t *testing.T) {
	e := newBaselineEngine(t, newMemStore())
	existing := models.Baseline{Hour: 8, AvgHeartRate: 70, DataPoints: 40, Source: models.SourceWatch}

	updated := e.Update(existing, readingsWithHR(4, 120, atHour(8, 0)))
	if updated.AvgHeartRate != 70 {
		t.Fatalf("hr must not blend from 4 readings, got %v", updated.AvgHeartRate)
	}
	if updated.DataPoints != 44 {
		t.Fatalf("data points = %d, want 44", updated.DataPoints)
	}
}

func TestBootstrapGroupsHistoryByHour(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	// 12 readings in hour bucket A, 5 in bucket B.
	hourA := (time.Now().Local().Hour() + 20) % 24
	hourB := (hourA + 1) % 24
	for _, r := range readingsWithHR(12, 64, atHour(hourA, 0)) {
		_ = store.SaveReading(ctx, r)
	}
	for _, r := range readingsWithHR(5, 70, atHour(hourB, 0)) {
		_ = store.SaveReading(ctx, r)
	}

	e := newBaselineEngine(t, store)
	e.Bootstrap(ctx)

	if b, _ := store.Baseline(ctx, hourA); b == nil || b.AvgHeartRate != 64 {
		t.Fatalf("bucket with 12 readings should have baseline avg 64, got %+v", b)
	}
	if b, _ := store.Baseline(ctx, hourB); b != nil {
		t.Fatalf("bucket with 5 readings must stay empty, got %+v", b)
	}
}

func TestBootstrapSkipsWhenBaselinesExist(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	store.baselines[3] = models.Baseline{Hour: 3, AvgHeartRate: 55, DataPoints: 30}
	hour := (time.Now().Local().Hour() + 20) % 24
	for _, r := range readingsWithHR(15, 90, atHour(hour, 0)) {
		_ = store.SaveReading(ctx, r)
	}

	e := newBaselineEngine(t, store)
	e.Bootstrap(ctx)

	if _, ok := store.baselines[hour]; ok && hour != 3 {
		t.Fatalf("bootstrap must be a no-op when baselines already exist")
	}
}
