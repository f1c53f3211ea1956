package repository

import (
	"context"
	"database/sql"
	"fmt"

	"PricePulse/internal/domain/models"
	pkgch "PricePulse/pkg/clickhouse"
	applogger "PricePulse/pkg/logger"
)

// CHMessageStore implements MessageStore backed by ClickHouse.
type CHMessageStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHMessageStore(ch *pkgch.Client) *CHMessageStore {
	return &CHMessageStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHMessageStore) SetLogger(l *applogger.Logger) { s.l = l }

// Recent returns the n most recent broadcast messages, newest first.
func (s *CHMessageStore) Recent(ctx context.Context, n int) ([]models.Message, error) {
	const q = `
        SELECT id, body, created_at
        FROM pricepulse.messages
        ORDER BY created_at DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse messages query error",
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	out := make([]models.Message, 0, n)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
