package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PricePulse/internal/domain/models"
	pkgch "PricePulse/pkg/clickhouse"
	applogger "PricePulse/pkg/logger"
)

// SchemaStatements are the idempotent DDL statements for the tick and
// broadcast-message tables.
var SchemaStatements = []string{
	`CREATE DATABASE IF NOT EXISTS pricepulse`,
	`CREATE TABLE IF NOT EXISTS pricepulse.ticks (
        ts        DateTime64(3, 'UTC'),
        price     Float64,
        change    Float64,
        vol       Float64
    ) ENGINE = MergeTree()
    PARTITION BY toYYYYMM(ts)
    ORDER BY ts`,
	`CREATE TABLE IF NOT EXISTS pricepulse.messages (
        id         String,
        body       String,
        created_at DateTime64(3, 'UTC')
    ) ENGINE = MergeTree()
    ORDER BY created_at`,
}

// CHTickStore implements TickStore backed by ClickHouse.
type CHTickStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHTickStore(ch *pkgch.Client) *CHTickStore {
	return &CHTickStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHTickStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHTickStore) Insert(ctx context.Context, t *models.Tick) error {
	const q = `INSERT INTO pricepulse.ticks (ts, price, change, vol) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, t.Timestamp, t.Price, t.Change, t.Volume); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse tick insert error",
				applogger.String("ts", t.Timestamp.Format(time.RFC3339)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert tick: %w", err)
	}
	return nil
}

func (s *CHTickStore) Range(ctx context.Context, from, to time.Time) ([]models.Tick, error) {
	start := time.Now()
	const q = `
        SELECT ts, price, change, vol
        FROM pricepulse.ticks
        WHERE ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse tick range query error",
				applogger.String("from", from.Format(time.RFC3339)),
				applogger.String("to", to.Format(time.RFC3339)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("range ticks: %w", err)
	}
	defer rows.Close()

	out := make([]models.Tick, 0, 1024)
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.Timestamp, &t.Price, &t.Change, &t.Volume); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse tick range ok",
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHTickStore) Latest(ctx context.Context, n int) ([]models.Tick, error) {
	const q = `
        SELECT ts, price, change, vol
        FROM pricepulse.ticks
        ORDER BY ts DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse tick latest query error",
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("latest ticks: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Tick, 0, n)
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.Timestamp, &t.Price, &t.Change, &t.Volume); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		tmp = append(tmp, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	// Query returns newest first, callers expect ascending order.
	out := make([]models.Tick, len(tmp))
	for i, t := range tmp {
		out[len(tmp)-1-i] = t
	}
	return out, nil
}

func (s *CHTickStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
