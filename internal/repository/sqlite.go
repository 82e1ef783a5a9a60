package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"CalmPulse/internal/domain/models"
	drepo "CalmPulse/internal/domain/repository"
)

// SQLiteStore is the default on-device Store. Single writer, WAL mode; the
// engine serializes writes through its ingest loop so no busy handler is
// needed beyond a generous timeout.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS readings (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ts          INTEGER NOT NULL,
    heart_rate  REAL,
    hrv         REAL,
    temperature REAL,
    motion      REAL,
    confidence  REAL NOT NULL,
    source      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts);

CREATE TABLE IF NOT EXISTS baselines (
    hour        INTEGER PRIMARY KEY CHECK (hour BETWEEN 0 AND 23),
    avg_hr      REAL NOT NULL,
    avg_hrv     REAL NOT NULL,
    avg_temp    REAL,
    data_points INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL,
    source      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id            TEXT PRIMARY KEY,
    ts            INTEGER NOT NULL,
    type          TEXT NOT NULL,
    confidence    REAL NOT NULL,
    heart_rate    REAL NOT NULL,
    baseline_hr   REAL NOT NULL,
    hrv           REAL,
    baseline_hrv  REAL,
    temperature   REAL,
    baseline_temp REAL,
    activity      TEXT NOT NULL,
    method        TEXT NOT NULL,
    source        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);

CREATE TABLE IF NOT EXISTS feedback (
    id            TEXT PRIMARY KEY,
    ts            INTEGER NOT NULL,
    event_id      TEXT NOT NULL DEFAULT '',
    was_correct   INTEGER NOT NULL,
    anxiety_level INTEGER,
    notes         TEXT NOT NULL DEFAULT '',
    timing        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_ts ON feedback(ts);
`

func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveReading(ctx context.Context, r models.Reading) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (ts, heart_rate, hrv, temperature, motion, confidence, source)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UnixMilli(), nullable(r.HeartRate), nullable(r.HRV),
		nullable(r.Temperature), nullable(r.Motion), r.Confidence, string(r.Source))
	if err != nil {
		return fmt.Errorf("save reading: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ReadingCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("reading count: %w", err)
	}
	return n, nil
}

// RecentReadings returns the n most recent readings in chronological order.
func (s *SQLiteStore) RecentReadings(ctx context.Context, n int) ([]models.Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, heart_rate, hrv, temperature, motion, confidence, source
         FROM readings ORDER BY ts DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent readings: %w", err)
	}
	defer rows.Close()

	out := make([]models.Reading, 0, n)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent readings rows: %w", err)
	}
	reverseReadings(out)
	return out, nil
}

func (s *SQLiteStore) Baseline(ctx context.Context, hour int) (*models.Baseline, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hour, avg_hr, avg_hrv, avg_temp, data_points, updated_at, source
         FROM baselines WHERE hour = ?`, hour)
	b, err := scanBaseline(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("baseline hour %d: %w", hour, err)
	}
	return &b, nil
}

func (s *SQLiteStore) Baselines(ctx context.Context) ([]models.Baseline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hour, avg_hr, avg_hrv, avg_temp, data_points, updated_at, source
         FROM baselines ORDER BY hour`)
	if err != nil {
		return nil, fmt.Errorf("baselines: %w", err)
	}
	defer rows.Close()

	var out []models.Baseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, fmt.Errorf("scan baseline: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveBaseline(ctx context.Context, b models.Baseline) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO baselines (hour, avg_hr, avg_hrv, avg_temp, data_points, updated_at, source)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(hour) DO UPDATE SET
             avg_hr = excluded.avg_hr,
             avg_hrv = excluded.avg_hrv,
             avg_temp = excluded.avg_temp,
             data_points = excluded.data_points,
             updated_at = excluded.updated_at,
             source = excluded.source`,
		b.Hour, b.AvgHeartRate, b.AvgHRV, nullable(b.AvgTemp),
		b.DataPoints, b.UpdatedAt.UnixMilli(), string(b.Source))
	if err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveEvent(ctx context.Context, ev models.AnxietyEvent) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, ts, type, confidence, heart_rate, baseline_hr,
             hrv, baseline_hrv, temperature, baseline_temp, activity, method, source)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Timestamp.UnixMilli(), string(ev.Type), ev.Confidence,
		ev.HeartRate, ev.BaselineHeartRate, nullable(ev.HRV), nullable(ev.BaselineHRV),
		nullable(ev.Temperature), nullable(ev.BaselineTemperature),
		string(ev.Activity), string(ev.Method), string(ev.Source))
	if err != nil {
		return "", fmt.Errorf("save event: %w", err)
	}
	return ev.ID, nil
}

func (s *SQLiteStore) Events(ctx context.Context, since time.Time, limit int) ([]models.AnxietyEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, type, confidence, heart_rate, baseline_hr,
             hrv, baseline_hrv, temperature, baseline_temp, activity, method, source
         FROM events WHERE ts >= ? ORDER BY ts DESC LIMIT ?`,
		since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	defer rows.Close()

	var out []models.AnxietyEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb models.Feedback) error {
	var level sql.NullInt64
	if fb.AnxietyLevel != nil {
		level = sql.NullInt64{Int64: int64(*fb.AnxietyLevel), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, ts, event_id, was_correct, anxiety_level, notes, timing)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.Timestamp.UnixMilli(), fb.EventID, fb.WasCorrect,
		level, fb.Notes, string(fb.Timing))
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FeedbackSince(ctx context.Context, since time.Time) ([]models.Feedback, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, event_id, was_correct, anxiety_level, notes, timing
         FROM feedback WHERE ts >= ? ORDER BY ts`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("feedback since: %w", err)
	}
	defer rows.Close()

	var out []models.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ drepo.Store = (*SQLiteStore)(nil)

// --- shared row plumbing, used by both SQL stores ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func scanReading(row rowScanner) (models.Reading, error) {
	var (
		r                    models.Reading
		ts                   int64
		hr, hrv, temp, mot   sql.NullFloat64
		source               string
	)
	if err := row.Scan(&ts, &hr, &hrv, &temp, &mot, &r.Confidence, &source); err != nil {
		return models.Reading{}, fmt.Errorf("scan reading: %w", err)
	}
	r.Timestamp = time.UnixMilli(ts)
	r.HeartRate = fromNull(hr)
	r.HRV = fromNull(hrv)
	r.Temperature = fromNull(temp)
	r.Motion = fromNull(mot)
	r.Source = models.BiometricSource(source)
	return r, nil
}

func scanBaseline(row rowScanner) (models.Baseline, error) {
	var (
		b       models.Baseline
		temp    sql.NullFloat64
		updated int64
		source  string
	)
	if err := row.Scan(&b.Hour, &b.AvgHeartRate, &b.AvgHRV, &temp, &b.DataPoints, &updated, &source); err != nil {
		return models.Baseline{}, err
	}
	b.AvgTemp = fromNull(temp)
	b.UpdatedAt = time.UnixMilli(updated)
	b.Source = models.BiometricSource(source)
	return b, nil
}

func scanEvent(row rowScanner) (models.AnxietyEvent, error) {
	var (
		ev                       models.AnxietyEvent
		ts                       int64
		typ, activity, method    string
		source                   string
		hrv, bHRV, temp, bTemp   sql.NullFloat64
	)
	if err := row.Scan(&ev.ID, &ts, &typ, &ev.Confidence, &ev.HeartRate, &ev.BaselineHeartRate,
		&hrv, &bHRV, &temp, &bTemp, &activity, &method, &source); err != nil {
		return models.AnxietyEvent{}, err
	}
	ev.Timestamp = time.UnixMilli(ts)
	ev.Type = models.EventType(typ)
	ev.HRV = fromNull(hrv)
	ev.BaselineHRV = fromNull(bHRV)
	ev.Temperature = fromNull(temp)
	ev.BaselineTemperature = fromNull(bTemp)
	ev.Activity = models.ActivityLevel(activity)
	ev.Method = models.DetectionMethod(method)
	ev.Source = models.BiometricSource(source)
	return ev, nil
}

func scanFeedback(row rowScanner) (models.Feedback, error) {
	var (
		fb     models.Feedback
		ts     int64
		level  sql.NullInt64
		timing string
	)
	if err := row.Scan(&fb.ID, &ts, &fb.EventID, &fb.WasCorrect, &level, &fb.Notes, &timing); err != nil {
		return models.Feedback{}, err
	}
	fb.Timestamp = time.UnixMilli(ts)
	if level.Valid {
		v := int(level.Int64)
		fb.AnxietyLevel = &v
	}
	fb.Timing = models.FeedbackTiming(timing)
	return fb, nil
}

func reverseReadings(rs []models.Reading) {
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
}
