package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/artpar/relayledger/domain/usage"
	"github.com/artpar/relayledger/ports"
)

// UsageStore implements ports.UsageStore using SQLite.
type UsageStore struct {
	q querier
}

// NewUsageStore creates a new SQLite usage store.
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{q: db}
}

// mergeUsageSQL folds one event into its daily row in a single statement.
// Every right-hand side in the SET list sees the pre-update row.
const mergeUsageSQL = `
	INSERT INTO usage_daily (endpoint_id, day, relays, avg_latency_ms, error_rate, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(endpoint_id, day) DO UPDATE SET
		avg_latency_ms = CASE
			WHEN usage_daily.relays = 0 THEN excluded.avg_latency_ms
			WHEN excluded.avg_latency_ms = 0 THEN usage_daily.avg_latency_ms
			ELSE CAST(ROUND(
				(usage_daily.avg_latency_ms * usage_daily.relays + excluded.avg_latency_ms * excluded.relays) * 1.0
				/ (usage_daily.relays + excluded.relays)
			) AS INTEGER)
		END,
		relays = usage_daily.relays + excluded.relays,
		error_rate = excluded.error_rate,
		updated_at = excluded.updated_at
`

// MergeUsage atomically inserts or merges into the (endpointID, day) row.
func (s *UsageStore) MergeUsage(ctx context.Context, endpointID, day string, relays, latencyMs int64, errorRate float64, at time.Time) error {
	at = at.UTC()
	_, err := s.q.ExecContext(ctx, mergeUsageSQL, endpointID, day, relays, latencyMs, errorRate, at, at)
	return err
}

// Get returns one aggregate row.
func (s *UsageStore) Get(ctx context.Context, endpointID, day string) (usage.DailyAggregate, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT endpoint_id, day, relays, avg_latency_ms, error_rate, updated_at
		FROM usage_daily
		WHERE endpoint_id = ? AND day = ?
	`, endpointID, day)

	a, err := scanAggregate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return usage.DailyAggregate{}, ErrNotFound
	}
	return a, err
}

// ListRange returns rows with from <= day <= to, ordered by day.
func (s *UsageStore) ListRange(ctx context.Context, endpointID, from, to string) ([]usage.DailyAggregate, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT endpoint_id, day, relays, avg_latency_ms, error_rate, updated_at
		FROM usage_daily
		WHERE endpoint_id = ? AND day >= ? AND day <= ?
		ORDER BY day ASC
	`, endpointID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []usage.DailyAggregate
	for rows.Next() {
		a, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAggregate(r rowScanner) (usage.DailyAggregate, error) {
	var a usage.DailyAggregate
	err := r.Scan(&a.EndpointID, &a.Day, &a.Relays, &a.AvgLatencyMs, &a.ErrorRate, &a.UpdatedAt)
	if err != nil {
		return usage.DailyAggregate{}, err
	}
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

var _ ports.UsageStore = (*UsageStore)(nil)
