package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"CalmPulse/internal/domain/models"
	xlogger "CalmPulse/pkg/logger"
)

// memStore is an in-memory Store for engine tests.
type memStore struct {
	mu        sync.Mutex
	readings  []models.Reading
	baselines map[int]models.Baseline
	events    []models.AnxietyEvent
	feedback  []models.Feedback
}

func newMemStore() *memStore {
	return &memStore{baselines: make(map[int]models.Baseline)}
}

func (m *memStore) Init(ctx context.Context) error { return nil }

func (m *memStore) SaveReading(ctx context.Context, r models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
	return nil
}

func (m *memStore) ReadingCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.readings)), nil
}

func (m *memStore) RecentReadings(ctx context.Context, n int) ([]models.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.readings) {
		n = len(m.readings)
	}
	out := make([]models.Reading, n)
	copy(out, m.readings[len(m.readings)-n:])
	return out, nil
}

func (m *memStore) Baseline(ctx context.Context, hour int) (*models.Baseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.baselines[hour]; ok {
		out := b
		return &out, nil
	}
	return nil, nil
}

func (m *memStore) Baselines(ctx context.Context) ([]models.Baseline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Baseline, 0, len(m.baselines))
	for _, b := range m.baselines {
		out = append(out, b)
	}
	return out, nil
}

func (m *memStore) SaveBaseline(ctx context.Context, b models.Baseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselines[b.Hour] = b
	return nil
}

func (m *memStore) SaveEvent(ctx context.Context, ev models.AnxietyEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return ev.ID, nil
}

func (m *memStore) Events(ctx context.Context, since time.Time, limit int) ([]models.AnxietyEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AnxietyEvent, 0, limit)
	for _, ev := range m.events {
		if ev.Timestamp.Before(since) {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) SaveFeedback(ctx context.Context, fb models.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, fb)
	return nil
}

func (m *memStore) FeedbackSince(ctx context.Context, since time.Time) ([]models.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Feedback
	for _, fb := range m.feedback {
		if !fb.Timestamp.Before(since) {
			out = append(out, fb)
		}
	}
	return out, nil
}

func (m *memStore) Health(ctx context.Context) error { return nil }
func (m *memStore) Close() error                     { return nil }

// stubScorer returns a fixed score.
type stubScorer struct {
	score float64
	ready bool
}

func (s *stubScorer) Initialize() error { return nil }
func (s *stubScorer) Ready() bool       { return s.ready }
func (s *stubScorer) Predict(fv models.FeatureVector) (float64, error) {
	return s.score, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordReading(string)            {}
func (nopMetrics) RecordDetection(string, string)  {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordThreshold(float64)         {}
func (nopMetrics) RecordTrust(float64)             {}
func (nopMetrics) RecordPhase(string)              {}
func (nopMetrics) RecordLatency(string, float64)   {}

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func fp(v float64) *float64 { return &v }

// atHour returns a recent timestamp falling in the given local hour.
func atHour(hour, minute int) time.Time {
	now := time.Now().Local()
	ts := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.Local)
	if ts.After(now) {
		ts = ts.Add(-24 * time.Hour)
	}
	return ts
}

func reading(ts time.Time, hr float64) models.Reading {
	return models.Reading{
		Timestamp:  ts,
		HeartRate:  fp(hr),
		Motion:     fp(0.1),
		Confidence: 1.0,
		Source:     models.SourceWatch,
	}
}

func TestBaselineMaterializesAtTenSameHourReadings(t *testing.T) {
	store := newMemStore()
	eng := New(store, &stubScorer{}, nopMetrics{}, testLogger(t), DefaultParams())
	defer eng.Close()
	ctx := context.Background()

	// Readings must be within the staleness window, so pick the current hour.
	hour := time.Now().Local().Hour()
	base := time.Now().Add(-30 * time.Minute)

	for i := 0; i < 9; i++ {
		if _, err := eng.Process(ctx, reading(base.Add(time.Duration(i)*time.Minute), 65)); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}
	if b, _ := store.Baseline(ctx, hour); b != nil {
		t.Fatalf("baseline should not exist after 9 readings, got %+v", b)
	}

	if _, err := eng.Process(ctx, reading(base.Add(9*time.Minute), 65)); err != nil {
		t.Fatalf("process 10th: %v", err)
	}
	b, _ := store.Baseline(ctx, hour)
	if b == nil {
		t.Fatalf("baseline should materialize after 10th reading")
	}
	if b.AvgHeartRate != 65 {
		t.Fatalf("avg heart rate = %v, want 65", b.AvgHeartRate)
	}
	if b.DataPoints != 10 {
		t.Fatalf("data points = %d, want 10", b.DataPoints)
	}
}

func TestProcessEmitsRuleEventInRulesOnlyPhase(t *testing.T) {
	store := newMemStore()
	eng := New(store, &stubScorer{}, nopMetrics{}, testLogger(t), DefaultParams())
	defer eng.Close()
	ctx := context.Background()

	hour := time.Now().Local().Hour()
	store.baselines[hour] = models.Baseline{
		Hour: hour, AvgHeartRate: 60, DataPoints: 50, UpdatedAt: time.Now(),
		Source: models.SourceWatch,
	}

	ev, err := eng.Process(ctx, reading(time.Now(), 85))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if ev == nil {
		t.Fatalf("expected detection")
	}
	if ev.Method != models.MethodRuleBased {
		t.Fatalf("method = %s, want %s", ev.Method, models.MethodRuleBased)
	}
	if ev.ID == "" {
		t.Fatalf("event id not assigned")
	}
	if len(store.events) != 1 {
		t.Fatalf("event not persisted")
	}

	select {
	case got := <-eng.Events():
		if got.ID != ev.ID {
			t.Fatalf("streamed event id %s, want %s", got.ID, ev.ID)
		}
	default:
		t.Fatalf("event not streamed")
	}
}

func TestProcessRejectsStaleReading(t *testing.T) {
	store := newMemStore()
	eng := New(store, &stubScorer{}, nopMetrics{}, testLogger(t), DefaultParams())
	defer eng.Close()

	old := reading(time.Now().Add(-2*time.Hour), 80)
	ev, err := eng.Process(context.Background(), old)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if ev != nil {
		t.Fatalf("stale reading must not detect")
	}
	if len(store.readings) != 0 {
		t.Fatalf("stale reading must not be persisted")
	}
}

// overlapStore flags pipeline invocations that run concurrently. The sleep
// widens the window so interleaving, if possible, is actually observed.
type overlapStore struct {
	*memStore
	active  atomic.Int32
	overlap atomic.Bool
}

func (o *overlapStore) SaveReading(ctx context.Context, r models.Reading) error {
	if o.active.Add(1) > 1 {
		o.overlap.Store(true)
	}
	time.Sleep(2 * time.Millisecond)
	o.active.Add(-1)
	return o.memStore.SaveReading(ctx, r)
}

func TestProcessSerializesConcurrentSubmitters(t *testing.T) {
	store := &overlapStore{memStore: newMemStore()}
	eng := New(store, &stubScorer{}, nopMetrics{}, testLogger(t), DefaultParams())
	defer eng.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := eng.Process(context.Background(), reading(time.Now(), 70)); err != nil {
				t.Errorf("process: %v", err)
			}
		}()
	}
	wg.Wait()

	if store.overlap.Load() {
		t.Fatalf("readings interleaved inside the pipeline")
	}
	if len(store.readings) != 8 {
		t.Fatalf("persisted %d readings, want 8", len(store.readings))
	}
}

func TestProcessAfterCloseSkipsEmit(t *testing.T) {
	store := newMemStore()
	eng := New(store, &stubScorer{}, nopMetrics{}, testLogger(t), DefaultParams())

	hour := time.Now().Local().Hour()
	store.baselines[hour] = models.Baseline{
		Hour: hour, AvgHeartRate: 60, DataPoints: 50, UpdatedAt: time.Now(),
		Source: models.SourceWatch,
	}

	eng.Close()
	ev, err := eng.Process(context.Background(), reading(time.Now(), 85))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if ev == nil {
		t.Fatalf("detection result should still be returned")
	}
	if _, ok := <-eng.Events(); ok {
		t.Fatalf("no event should be streamed after close")
	}
}

func TestStatusReflectsPhase(t *testing.T) {
	store := newMemStore()
	eng := New(store, &stubScorer{ready: true}, nopMetrics{}, testLogger(t), DefaultParams())
	defer eng.Close()
	ctx := context.Background()

	st, err := eng.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Phase != models.PhaseRulesOnly {
		t.Fatalf("phase = %s, want %s", st.Phase, models.PhaseRulesOnly)
	}
	if !st.ScorerReady {
		t.Fatalf("scorer should report ready")
	}
	if st.AdjustedThreshold != 0.5 {
		t.Fatalf("initial threshold = %v, want 0.5", st.AdjustedThreshold)
	}
}
