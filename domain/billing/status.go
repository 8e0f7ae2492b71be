package billing

import (
	"errors"
	"fmt"
)

// PaymentStatus is an organization's position in the dunning lifecycle.
type PaymentStatus string

const (
	StatusActive       PaymentStatus = "ACTIVE"
	StatusGrace        PaymentStatus = "GRACE"
	StatusPastDue      PaymentStatus = "PAST_DUE"
	StatusFinalWarning PaymentStatus = "FINAL_WARNING"
	StatusSuspended    PaymentStatus = "SUSPENDED"
	StatusDelinquent   PaymentStatus = "DELINQUENT"

	// StatusUnknown is only ever returned by projections of missing organizations.
	StatusUnknown PaymentStatus = "UNKNOWN"
)

// ErrInvalidThresholds is returned when thresholds are not strictly increasing.
var ErrInvalidThresholds = errors.New("billing: thresholds must satisfy 0 < grace < past_due < final_warning < delinquent")

// Valid reports whether s is a persisted lifecycle status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusActive, StatusGrace, StatusPastDue, StatusFinalWarning, StatusSuspended, StatusDelinquent:
		return true
	}
	return false
}

// IsSuspended returns true for statuses that deactivate endpoints.
func (s PaymentStatus) IsSuspended() bool {
	return s == StatusSuspended || s == StatusDelinquent
}

// CanUseService returns true when the organization's endpoints may serve traffic.
func (s PaymentStatus) CanUseService() bool {
	switch s {
	case StatusActive, StatusGrace, StatusPastDue, StatusFinalWarning:
		return true
	}
	return false
}

// ParsePaymentStatus parses a stored status string.
func ParsePaymentStatus(v string) (PaymentStatus, error) {
	s := PaymentStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("billing: unknown payment status %q", v)
	}
	return s, nil
}

// Thresholds are the day boundaries of the status table.
// Days in [1, Grace] are GRACE, (Grace, PastDue] PAST_DUE,
// (PastDue, FinalWarning) FINAL_WARNING, [FinalWarning, Delinquent) SUSPENDED
// and Delinquent onwards DELINQUENT.
type Thresholds struct {
	Grace        int `yaml:"grace"`
	PastDue      int `yaml:"past_due"`
	FinalWarning int `yaml:"final_warning"`
	Delinquent   int `yaml:"delinquent"`
}

// DefaultThresholds returns the standard 30/45/60/90 day schedule.
func DefaultThresholds() Thresholds {
	return Thresholds{Grace: 30, PastDue: 45, FinalWarning: 60, Delinquent: 90}
}

// Validate checks that the boundaries are strictly increasing.
func (t Thresholds) Validate() error {
	if t.Grace <= 0 || t.PastDue <= t.Grace || t.FinalWarning <= t.PastDue || t.Delinquent <= t.FinalWarning {
		return ErrInvalidThresholds
	}
	return nil
}

// StatusFor maps days overdue to a payment status.
// This is a PURE function.
func (t Thresholds) StatusFor(daysOverdue int) PaymentStatus {
	switch {
	case daysOverdue <= 0:
		return StatusActive
	case daysOverdue <= t.Grace:
		return StatusGrace
	case daysOverdue <= t.PastDue:
		return StatusPastDue
	case daysOverdue < t.FinalWarning:
		return StatusFinalWarning
	case daysOverdue < t.Delinquent:
		return StatusSuspended
	default:
		return StatusDelinquent
	}
}

// Cascade is the endpoint side effect of a status change.
type Cascade string

const (
	CascadeNone      Cascade = "none"
	CascadeSuspend   Cascade = "suspend"
	CascadeReinstate Cascade = "reinstate"
)

// Resolve decides the status to persist and the cascade to run, given the
// freshly read current status and the status computed from overdue age.
//
// Entering {SUSPENDED, DELINQUENT} from outside suspends. Reaching ACTIVE from
// inside reinstates. A suspended organization whose overdue age drops but not
// to zero keeps its current status, so suspension is left only through
// reinstatement.
// This is a PURE function.
func Resolve(current, computed PaymentStatus) (PaymentStatus, Cascade) {
	switch {
	case computed.IsSuspended() && !current.IsSuspended():
		return computed, CascadeSuspend
	case computed == StatusActive && current.IsSuspended():
		return StatusActive, CascadeReinstate
	case current.IsSuspended() && !computed.IsSuspended():
		return current, CascadeNone
	}
	return computed, CascadeNone
}

// Transition records the outcome of one status evaluation (value type).
type Transition struct {
	OrgID       string
	From        PaymentStatus
	To          PaymentStatus
	DaysOverdue int
	Cascade     Cascade
}

// Changed returns true if the persisted status differs from the previous one.
func (t Transition) Changed() bool {
	return t.From != t.To
}
