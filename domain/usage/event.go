// Package usage provides relay usage events, per-day aggregates and the
// merge rules that fold one into the other.
// All functions are pure - no side effects.
package usage

import (
	"errors"
	"time"
)

// DayLayout is the calendar-day key format used for aggregate rows.
const DayLayout = "2006-01-02"

// Validation errors.
var (
	ErrMissingEndpoint  = errors.New("usage: endpoint id is required")
	ErrInvalidRelays    = errors.New("usage: relay count must be positive")
	ErrNegativeRelays   = errors.New("usage: relay count cannot be negative")
	ErrNegativeLatency  = errors.New("usage: latency cannot be negative")
	ErrInvalidErrorRate = errors.New("usage: error rate must be within [0,1]")
	ErrMissingTimestamp = errors.New("usage: timestamp is required")
	ErrInvalidDay       = errors.New("usage: day must be formatted as YYYY-MM-DD")
)

// IsValidationError reports whether err is one of the validation errors above.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrMissingEndpoint, ErrInvalidRelays, ErrNegativeRelays, ErrNegativeLatency,
		ErrInvalidErrorRate, ErrMissingTimestamp, ErrInvalidDay,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Event is one usage report from the relay-serving path (immutable value type).
// A single event may carry several relays served with the same latency.
type Event struct {
	EndpointID string
	Relays     int64
	LatencyMs  int64   // 0 for cached/instant responses
	ErrorRate  float64 // fraction in [0,1]
	Timestamp  time.Time
}

// Validate checks the event before it is merged.
// This is a PURE function.
func (e Event) Validate() error {
	switch {
	case e.EndpointID == "":
		return ErrMissingEndpoint
	case e.Relays < 1:
		return ErrInvalidRelays
	case e.LatencyMs < 0:
		return ErrNegativeLatency
	case e.ErrorRate < 0 || e.ErrorRate > 1:
		return ErrInvalidErrorRate
	case e.Timestamp.IsZero():
		return ErrMissingTimestamp
	}
	return nil
}

// Day returns the UTC calendar day the event is bucketed into.
func (e Event) Day() string {
	return DayOf(e.Timestamp)
}

// DayOf returns the UTC calendar day key for t.
// This is a PURE function.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay parses a calendar-day key into midnight UTC.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return time.Time{}, ErrInvalidDay
	}
	return t, nil
}

// DailyAggregate is the persisted usage row for one (endpoint, day) pair.
type DailyAggregate struct {
	EndpointID   string
	Day          string // YYYY-MM-DD, UTC
	Relays       int64
	AvgLatencyMs int64
	ErrorRate    float64
	UpdatedAt    time.Time
}

// NewDailyAggregate builds a validated aggregate row.
func NewDailyAggregate(endpointID, day string, relays, avgLatencyMs int64, errorRate float64) (DailyAggregate, error) {
	a := DailyAggregate{
		EndpointID:   endpointID,
		Day:          day,
		Relays:       relays,
		AvgLatencyMs: avgLatencyMs,
		ErrorRate:    errorRate,
	}
	if err := a.Validate(); err != nil {
		return DailyAggregate{}, err
	}
	return a, nil
}

// Validate checks the row's field invariants.
func (a DailyAggregate) Validate() error {
	switch {
	case a.EndpointID == "":
		return ErrMissingEndpoint
	case a.Relays < 0:
		return ErrNegativeRelays
	case a.AvgLatencyMs < 0:
		return ErrNegativeLatency
	case a.ErrorRate < 0 || a.ErrorRate > 1:
		return ErrInvalidErrorRate
	}
	if _, err := ParseDay(a.Day); err != nil {
		return err
	}
	return nil
}

// Key identifies an aggregate row.
type Key struct {
	EndpointID string
	Day        string
}

// Key returns the row's composite key.
func (a DailyAggregate) Key() Key {
	return Key{EndpointID: a.EndpointID, Day: a.Day}
}

// Summary rolls up a range of daily aggregates for one endpoint (value type).
type Summary struct {
	EndpointID   string
	From         string
	To           string
	Days         int
	Relays       int64
	AvgLatencyMs int64
	ErrorRate    float64
}
