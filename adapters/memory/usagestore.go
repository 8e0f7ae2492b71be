package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/relayledger/domain/usage"
	"github.com/artpar/relayledger/ports"
)

// UsageStore is an in-memory implementation of ports.UsageStore.
// Merges apply usage.Merge under the write lock.
type UsageStore struct {
	mu   sync.RWMutex
	rows map[usage.Key]usage.DailyAggregate
}

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{rows: make(map[usage.Key]usage.DailyAggregate)}
}

// MergeUsage inserts or merges into the (endpointID, day) row.
func (s *UsageStore) MergeUsage(ctx context.Context, endpointID, day string, relays, latencyMs int64, errorRate float64, at time.Time) error {
	key := usage.Key{EndpointID: endpointID, Day: day}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rows[key]
	if !ok {
		existing = usage.DailyAggregate{EndpointID: endpointID, Day: day}
	}
	s.rows[key] = usage.Merge(existing, relays, latencyMs, errorRate, at)
	return nil
}

// Get returns one aggregate row.
func (s *UsageStore) Get(ctx context.Context, endpointID, day string) (usage.DailyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.rows[usage.Key{EndpointID: endpointID, Day: day}]
	if !ok {
		return usage.DailyAggregate{}, ports.ErrNotFound
	}
	return a, nil
}

// ListRange returns rows with from <= day <= to, ordered by day.
func (s *UsageStore) ListRange(ctx context.Context, endpointID, from, to string) ([]usage.DailyAggregate, error) {
	s.mu.RLock()
	var out []usage.DailyAggregate
	for k, a := range s.rows {
		// YYYY-MM-DD keys order lexically
		if k.EndpointID == endpointID && k.Day >= from && k.Day <= to {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

var _ ports.UsageStore = (*UsageStore)(nil)
