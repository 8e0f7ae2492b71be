package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/relayledger/adapters/metrics"
	"github.com/artpar/relayledger/domain/usage"
	"github.com/artpar/relayledger/ports"
)

// ErrInvalidRange is returned when a usage query's day range is malformed.
var ErrInvalidRange = errors.New("invalid day range")

// UsageService is the usage event sink and its dashboard read path.
// Correctness under concurrent writers comes from UsageStore.MergeUsage
// being an atomic upsert; the service holds no locks.
type UsageService struct {
	store   ports.UsageStore
	clock   ports.Clock
	metrics *metrics.Collector
	logger  zerolog.Logger
}

// NewUsageService creates a new usage service. m may be nil.
func NewUsageService(store ports.UsageStore, clock ports.Clock, m *metrics.Collector, logger zerolog.Logger) *UsageService {
	return &UsageService{
		store:   store,
		clock:   clock,
		metrics: m,
		logger:  logger,
	}
}

// Record validates one event and merges it into its endpoint's daily row.
// Store failures are returned to the caller; the event is never dropped
// silently. Retrying a failed Record may double-count relays.
func (s *UsageService) Record(ctx context.Context, e usage.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}

	start := time.Now()
	err := s.store.MergeUsage(ctx, e.EndpointID, e.Day(), e.Relays, e.LatencyMs, e.ErrorRate, s.clock.Now())
	s.metrics.ObserveMerge(e.Relays, time.Since(start), err)
	if err != nil {
		s.logger.Error().Err(err).
			Str("endpoint_id", e.EndpointID).
			Str("day", e.Day()).
			Int64("relays", e.Relays).
			Msg("usage merge failed")
		return fmt.Errorf("merge usage for %s: %w", e.EndpointID, err)
	}
	return nil
}

// EventError ties a batch failure to the event's position in the batch.
type EventError struct {
	Index int
	Err   error
}

func (e *EventError) Error() string { return fmt.Sprintf("event %d: %v", e.Index, e.Err) }

func (e *EventError) Unwrap() error { return e.Err }

// RecordBatch records each event independently. Successful merges are kept
// even when others fail; the returned error joins one *EventError per failure.
func (s *UsageService) RecordBatch(ctx context.Context, events []usage.Event) (int, error) {
	var (
		recorded int
		errs     []error
	)
	for i, e := range events {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, &EventError{Index: i, Err: err})
			continue
		}
		recorded++
	}
	return recorded, errors.Join(errs...)
}

// Daily returns the endpoint's rows for from <= day <= to.
func (s *UsageService) Daily(ctx context.Context, endpointID, from, to string) ([]usage.DailyAggregate, error) {
	if err := checkRange(endpointID, from, to); err != nil {
		return nil, err
	}
	rows, err := s.store.ListRange(ctx, endpointID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list usage for %s: %w", endpointID, err)
	}
	return rows, nil
}

// Summary rolls the endpoint's rows for the range into one summary.
func (s *UsageService) Summary(ctx context.Context, endpointID, from, to string) (usage.Summary, error) {
	rows, err := s.Daily(ctx, endpointID, from, to)
	if err != nil {
		return usage.Summary{}, err
	}
	return usage.Summarize(endpointID, from, to, rows), nil
}

func checkRange(endpointID, from, to string) error {
	if endpointID == "" {
		return usage.ErrMissingEndpoint
	}
	f, err := usage.ParseDay(from)
	if err != nil {
		return fmt.Errorf("%w: from: %v", ErrInvalidRange, err)
	}
	t, err := usage.ParseDay(to)
	if err != nil {
		return fmt.Errorf("%w: to: %v", ErrInvalidRange, err)
	}
	if t.Before(f) {
		return fmt.Errorf("%w: to before from", ErrInvalidRange)
	}
	return nil
}
