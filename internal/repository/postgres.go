package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"CalmPulse/internal/domain/models"
	drepo "CalmPulse/internal/domain/repository"
)

// PostgresStore backs the hosted deployment mode, where several household
// devices share one detection history.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string, maxConns int, connLifetime time.Duration) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	if connLifetime > 0 {
		cfg.MaxConnLifetime = connLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS readings (
    id          BIGSERIAL PRIMARY KEY,
    ts          BIGINT NOT NULL,
    heart_rate  DOUBLE PRECISION,
    hrv         DOUBLE PRECISION,
    temperature DOUBLE PRECISION,
    motion      DOUBLE PRECISION,
    confidence  DOUBLE PRECISION NOT NULL,
    source      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts);

CREATE TABLE IF NOT EXISTS baselines (
    hour        INT PRIMARY KEY CHECK (hour BETWEEN 0 AND 23),
    avg_hr      DOUBLE PRECISION NOT NULL,
    avg_hrv     DOUBLE PRECISION NOT NULL,
    avg_temp    DOUBLE PRECISION,
    data_points INT NOT NULL,
    updated_at  BIGINT NOT NULL,
    source      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id            TEXT PRIMARY KEY,
    ts            BIGINT NOT NULL,
    type          TEXT NOT NULL,
    confidence    DOUBLE PRECISION NOT NULL,
    heart_rate    DOUBLE PRECISION NOT NULL,
    baseline_hr   DOUBLE PRECISION NOT NULL,
    hrv           DOUBLE PRECISION,
    baseline_hrv  DOUBLE PRECISION,
    temperature   DOUBLE PRECISION,
    baseline_temp DOUBLE PRECISION,
    activity      TEXT NOT NULL,
    method        TEXT NOT NULL,
    source        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);

CREATE TABLE IF NOT EXISTS feedback (
    id            TEXT PRIMARY KEY,
    ts            BIGINT NOT NULL,
    event_id      TEXT NOT NULL DEFAULT '',
    was_correct   BOOLEAN NOT NULL,
    anxiety_level INT,
    notes         TEXT NOT NULL DEFAULT '',
    timing        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_ts ON feedback(ts);
`

func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveReading(ctx context.Context, r models.Reading) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO readings (ts, heart_rate, hrv, temperature, motion, confidence, source)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.Timestamp.UnixMilli(), r.HeartRate, r.HRV, r.Temperature, r.Motion,
		r.Confidence, string(r.Source))
	if err != nil {
		return fmt.Errorf("save reading: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadingCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("reading count: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) RecentReadings(ctx context.Context, n int) ([]models.Reading, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ts, heart_rate, hrv, temperature, motion, confidence, source
         FROM readings ORDER BY ts DESC LIMIT $1`, n)
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

func (s *PostgresStore) Baseline(ctx context.Context, hour int) (*models.Baseline, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT hour, avg_hr, avg_hrv, avg_temp, data_points, updated_at, source
         FROM baselines WHERE hour = $1`, hour)
	b, err := scanBaseline(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("baseline hour %d: %w", hour, err)
	}
	return &b, nil
}

func (s *PostgresStore) Baselines(ctx context.Context) ([]models.Baseline, error) {
	rows, err := s.pool.Query(ctx,
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

func (s *PostgresStore) SaveBaseline(ctx context.Context, b models.Baseline) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO baselines (hour, avg_hr, avg_hrv, avg_temp, data_points, updated_at, source)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         ON CONFLICT (hour) DO UPDATE SET
             avg_hr = EXCLUDED.avg_hr,
             avg_hrv = EXCLUDED.avg_hrv,
             avg_temp = EXCLUDED.avg_temp,
             data_points = EXCLUDED.data_points,
             updated_at = EXCLUDED.updated_at,
             source = EXCLUDED.source`,
		b.Hour, b.AvgHeartRate, b.AvgHRV, b.AvgTemp,
		b.DataPoints, b.UpdatedAt.UnixMilli(), string(b.Source))
	if err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveEvent(ctx context.Context, ev models.AnxietyEvent) (string, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, ts, type, confidence, heart_rate, baseline_hr,
             hrv, baseline_hrv, temperature, baseline_temp, activity, method, source)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ev.ID, ev.Timestamp.UnixMilli(), string(ev.Type), ev.Confidence,
		ev.HeartRate, ev.BaselineHeartRate, ev.HRV, ev.BaselineHRV,
		ev.Temperature, ev.BaselineTemperature,
		string(ev.Activity), string(ev.Method), string(ev.Source))
	if err != nil {
		return "", fmt.Errorf("save event: %w", err)
	}
	return ev.ID, nil
}

func (s *PostgresStore) Events(ctx context.Context, since time.Time, limit int) ([]models.AnxietyEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ts, type, confidence, heart_rate, baseline_hr,
             hrv, baseline_hrv, temperature, baseline_temp, activity, method, source
         FROM events WHERE ts >= $1 ORDER BY ts DESC LIMIT $2`,
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

func (s *PostgresStore) SaveFeedback(ctx context.Context, fb models.Feedback) error {
	var level sql.NullInt64
	if fb.AnxietyLevel != nil {
		level = sql.NullInt64{Int64: int64(*fb.AnxietyLevel), Valid: true}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO feedback (id, ts, event_id, was_correct, anxiety_level, notes, timing)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		fb.ID, fb.Timestamp.UnixMilli(), fb.EventID, fb.WasCorrect,
		level, fb.Notes, string(fb.Timing))
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

func (s *PostgresStore) FeedbackSince(ctx context.Context, since time.Time) ([]models.Feedback, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ts, event_id, was_correct, anxiety_level, notes, timing
         FROM feedback WHERE ts >= $1 ORDER BY ts`, since.UnixMilli())
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

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ drepo.Store = (*PostgresStore)(nil)
