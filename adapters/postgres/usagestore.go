package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/relayledger/domain/usage"
	"github.com/artpar/relayledger/ports"
)

// UsageStore implements ports.UsageStore using PostgreSQL.
type UsageStore struct {
	q querier
}

// NewUsageStore creates a new PostgreSQL usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{q: db}
}

const mergeUsageSQL = `
	INSERT INTO usage_daily (endpoint_id, day, relays, avg_latency_ms, error_rate, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6)
	ON CONFLICT (endpoint_id, day) DO UPDATE SET
		avg_latency_ms = CASE
			WHEN usage_daily.relays = 0 THEN EXCLUDED.avg_latency_ms
			WHEN EXCLUDED.avg_latency_ms = 0 THEN usage_daily.avg_latency_ms
			ELSE ROUND(
				(usage_daily.avg_latency_ms * usage_daily.relays + EXCLUDED.avg_latency_ms * EXCLUDED.relays)::numeric
				/ (usage_daily.relays + EXCLUDED.relays)
			)::BIGINT
		END,
		relays = usage_daily.relays + EXCLUDED.relays,
		error_rate = EXCLUDED.error_rate,
		updated_at = EXCLUDED.updated_at
`

const aggregateColumns = `endpoint_id, to_char(day, 'YYYY-MM-DD'), relays, avg_latency_ms, error_rate, updated_at`

// MergeUsage atomically inserts or merges into the (endpointID, day) row.
func (s *UsageStore) MergeUsage(ctx context.Context, endpointID, day string, relays, latencyMs int64, errorRate float64, at time.Time) error {
	_, err := s.q.ExecContext(ctx, mergeUsageSQL, endpointID, day, relays, latencyMs, errorRate, at.UTC())
	return err
}

// Get returns one aggregate row.
func (s *UsageStore) Get(ctx context.Context, endpointID, day string) (usage.DailyAggregate, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+aggregateColumns+`
		FROM usage_daily
		WHERE endpoint_id = $1 AND day = $2
	`, endpointID, day)

	var a usage.DailyAggregate
	err := row.Scan(&a.EndpointID, &a.Day, &a.Relays, &a.AvgLatencyMs, &a.ErrorRate, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return usage.DailyAggregate{}, ports.ErrNotFound
	}
	if err != nil {
		return usage.DailyAggregate{}, err
	}
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

// ListRange returns rows with from <= day <= to, ordered by day.
func (s *UsageStore) ListRange(ctx context.Context, endpointID, from, to string) ([]usage.DailyAggregate, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+aggregateColumns+`
		FROM usage_daily
		WHERE endpoint_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day ASC
	`, endpointID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []usage.DailyAggregate
	for rows.Next() {
		var a usage.DailyAggregate
		if err := rows.Scan(&a.EndpointID, &a.Day, &a.Relays, &a.AvgLatencyMs, &a.ErrorRate, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.UpdatedAt = a.UpdatedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ ports.UsageStore = (*UsageStore)(nil)
