package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CalmPulse/internal/domain/models"
	drepo "CalmPulse/internal/domain/repository"
	pkgch "CalmPulse/pkg/clickhouse"
	applogger "CalmPulse/pkg/logger"
)

// ClickHouseArchive is the long-horizon raw-reading sink used for offline
// model retraining. Detection never reads from it.
type ClickHouseArchive struct {
	db *sql.DB
	l  *applogger.Logger
}

var archiveSchema = []string{
	`CREATE DATABASE IF NOT EXISTS calmpulse`,
	`CREATE TABLE IF NOT EXISTS calmpulse.readings_raw (
        ts          DateTime64(3),
        heart_rate  Nullable(Float64),
        hrv         Nullable(Float64),
        temperature Nullable(Float64),
        motion      Nullable(Float64),
        confidence  Float64,
        source      LowCardinality(String)
    ) ENGINE = MergeTree()
      PARTITION BY toYYYYMM(ts)
      ORDER BY ts
      TTL toDateTime(ts) + INTERVAL 2 YEAR`,
}

func NewClickHouseArchive(ch *pkgch.Client, l *applogger.Logger) (*ClickHouseArchive, error) {
	if err := ch.InitSchema(context.Background(), archiveSchema); err != nil {
		return nil, fmt.Errorf("archive schema: %w", err)
	}
	return &ClickHouseArchive{db: ch.DB(), l: l}, nil
}

// Archive inserts a batch of readings. Chunked multi-row VALUES to keep
// round-trips down; a failed chunk fails the whole call and the dispatcher
// retries the batch later.
func (a *ClickHouseArchive) Archive(ctx context.Context, readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	const chunkSize = 2000
	start := time.Now()
	for lo := 0; lo < len(readings); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(readings) {
			hi = len(readings)
		}
		values := make([]string, 0, hi-lo)
		args := make([]interface{}, 0, (hi-lo)*7)
		for _, r := range readings[lo:hi] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				r.Timestamp,
				nullable(r.HeartRate),
				nullable(r.HRV),
				nullable(r.Temperature),
				nullable(r.Motion),
				r.Confidence,
				string(r.Source),
			)
		}
		q := "INSERT INTO calmpulse.readings_raw (ts, heart_rate, hrv, temperature, motion, confidence, source) VALUES " +
			strings.Join(values, ",")
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			a.l.Error("archive insert failed",
				applogger.Int("batch", hi-lo),
				applogger.Error(err))
			return fmt.Errorf("archive insert: %w", err)
		}
	}
	a.l.Debug("archived readings",
		applogger.Int("count", len(readings)),
		applogger.Duration("duration_ms", time.Since(start)))
	return nil
}

func (a *ClickHouseArchive) Close() error {
	return nil // connection pool owned by pkg client
}

var _ drepo.ReadingArchive = (*ClickHouseArchive)(nil)
