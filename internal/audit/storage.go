package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// PostgresStorage persists audit records in the decision_records table
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a Postgres-backed audit storage
func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// Store appends one record
func (s *PostgresStorage) Store(ctx context.Context, record *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_records (id, forecast_id, market_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.ForecastID, record.MarketID, string(record.Kind), []byte(record.Payload), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// QueryByForecast returns all records for a forecast in append order
func (s *PostgresStorage) QueryByForecast(ctx context.Context, forecastID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, forecast_id, market_id, kind, payload, created_at
		FROM decision_records
		WHERE forecast_id = $1
		ORDER BY created_at ASC`,
		forecastID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var kind string
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.ForecastID, &rec.MarketID, &kind, &payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.Kind = Kind(kind)
		rec.Payload = payload
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// MemoryStorage keeps audit records in memory. Used in tests and when the
// database is disabled.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryStorage creates an empty in-memory audit storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Store appends one record
func (s *MemoryStorage) Store(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// QueryByForecast returns all records for a forecast in append order
func (s *MemoryStorage) QueryByForecast(ctx context.Context, forecastID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Record
	for _, rec := range s.records {
		if rec.ForecastID == forecastID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// All returns every stored record. Test helper.
func (s *MemoryStorage) All() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, len(s.records))
	copy(out, s.records)
	return out
}
