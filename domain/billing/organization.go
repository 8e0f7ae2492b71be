package billing

import (
	"errors"
	"time"
)

// ErrSuspensionInvariant is returned when suspendedAt disagrees with status.
var ErrSuspensionInvariant = errors.New("billing: suspended_at must be set exactly when status is SUSPENDED or DELINQUENT")

// Organization is the billing view of a customer organization (value type).
type Organization struct {
	ID               string
	Name             string
	BillingEmail     string
	PaymentStatus    PaymentStatus
	SuspendedAt      *time.Time
	SuspensionReason string
	BalanceDue       float64 // unpaid total captured at the last suspension
	LastPaymentDate  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewOrganization creates an organization in good standing.
func NewOrganization(id, name, billingEmail string, now time.Time) Organization {
	return Organization{
		ID:            id,
		Name:          name,
		BillingEmail:  billingEmail,
		PaymentStatus: StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Validate checks the suspension invariant and the status value.
func (o Organization) Validate() error {
	if o.ID == "" {
		return errors.New("billing: organization id is required")
	}
	if !o.PaymentStatus.Valid() {
		return errors.New("billing: unknown payment status " + string(o.PaymentStatus))
	}
	if (o.SuspendedAt != nil) != o.PaymentStatus.IsSuspended() {
		return ErrSuspensionInvariant
	}
	return nil
}

// Suspension is the organization write performed when suspending.
type Suspension struct {
	Status     PaymentStatus // SUSPENDED or DELINQUENT
	At         time.Time
	Reason     string
	BalanceDue float64
}

// ApplySuspension returns o with the suspension written.
// This is a PURE function.
func (o Organization) ApplySuspension(s Suspension) Organization {
	at := s.At
	o.PaymentStatus = s.Status
	o.SuspendedAt = &at
	o.SuspensionReason = s.Reason
	o.BalanceDue = s.BalanceDue
	o.UpdatedAt = s.At
	return o
}

// ApplyReinstatement returns o restored to ACTIVE with the balance cleared.
// This is a PURE function.
func (o Organization) ApplyReinstatement(at time.Time) Organization {
	paid := at
	o.PaymentStatus = StatusActive
	o.SuspendedAt = nil
	o.SuspensionReason = ""
	o.BalanceDue = 0
	o.LastPaymentDate = &paid
	o.UpdatedAt = at
	return o
}

// SuspensionReason builds the human-readable reason stored on suspension.
func SuspensionReason(status PaymentStatus, daysOverdue int) string {
	return "Payment overdue by " + itoa(int64(daysOverdue)) + " days (" + string(status) + ")"
}
