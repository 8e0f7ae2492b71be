package usage_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/artpar/relayledger/domain/usage"
)

func TestEvent_Validate(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	valid := usage.Event{EndpointID: "ep1", Relays: 1, LatencyMs: 10, ErrorRate: 0, Timestamp: now}

	tests := []struct {
		name    string
		mutate  func(e *usage.Event)
		wantErr error
	}{
		{"valid", func(e *usage.Event) {}, nil},
		{"zero latency allowed", func(e *usage.Event) { e.LatencyMs = 0 }, nil},
		{"missing endpoint", func(e *usage.Event) { e.EndpointID = "" }, usage.ErrMissingEndpoint},
		{"zero relays", func(e *usage.Event) { e.Relays = 0 }, usage.ErrInvalidRelays},
		{"negative latency", func(e *usage.Event) { e.LatencyMs = -1 }, usage.ErrNegativeLatency},
		{"error rate above one", func(e *usage.Event) { e.ErrorRate = 1.5 }, usage.ErrInvalidErrorRate},
		{"negative error rate", func(e *usage.Event) { e.ErrorRate = -0.1 }, usage.ErrInvalidErrorRate},
		{"missing timestamp", func(e *usage.Event) { e.Timestamp = time.Time{} }, usage.ErrMissingTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			tt.mutate(&e)
			if err := e.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewDailyAggregate(t *testing.T) {
	if _, err := usage.NewDailyAggregate("ep1", "2024-03-10", 5, 20, 0.2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := usage.NewDailyAggregate("ep1", "2024-03-10", -1, 20, 0.2); !errors.Is(err, usage.ErrNegativeRelays) {
		t.Errorf("negative relays: err = %v, want ErrNegativeRelays", err)
	}
	if _, err := usage.NewDailyAggregate("ep1", "2024-03-10", 1, -20, 0.2); !errors.Is(err, usage.ErrNegativeLatency) {
		t.Errorf("negative latency: err = %v, want ErrNegativeLatency", err)
	}
	if _, err := usage.NewDailyAggregate("ep1", "10/03/2024", 1, 20, 0.2); !errors.Is(err, usage.ErrInvalidDay) {
		t.Errorf("bad day: err = %v, want ErrInvalidDay", err)
	}
}

func TestDayOf(t *testing.T) {
	ts := time.Date(2024, 12, 31, 22, 30, 0, 0, time.FixedZone("UTC-3", -3*3600))
	if got := usage.DayOf(ts); got != "2025-01-01" {
		t.Errorf("DayOf = %s, want 2025-01-01", got)
	}
}

func TestIsValidationError(t *testing.T) {
	if !usage.IsValidationError(fmt.Errorf("event 3: %w", usage.ErrInvalidRelays)) {
		t.Error("wrapped validation error not recognised")
	}
	if usage.IsValidationError(errors.New("connection refused")) {
		t.Error("store error classified as validation error")
	}
	if usage.IsValidationError(nil) {
		t.Error("nil classified as validation error")
	}
}
