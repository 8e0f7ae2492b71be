// Package billing provides payment status, invoice and organization value
// types and the pure functions that derive an organization's payment status
// from invoice age.
package billing

import (
	"errors"
	"math"
	"time"
)

// Invoice errors.
var (
	ErrInvoiceAlreadyPaid       = errors.New("billing: invoice is already paid")
	ErrInvalidInvoiceTransition = errors.New("billing: invalid invoice status transition")
	ErrInvalidInvoice           = errors.New("billing: invalid invoice")
)

// InvoiceStatus represents the state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
)

// Valid reports whether s is a known invoice status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusOpen, InvoiceStatusPaid, InvoiceStatusUncollectible:
		return true
	}
	return false
}

// IsUnpaid returns true for statuses that count toward overdue age and balance.
func (s InvoiceStatus) IsUnpaid() bool {
	return s == InvoiceStatusOpen || s == InvoiceStatusUncollectible
}

// Invoice represents a billing invoice (value type).
type Invoice struct {
	ID         string
	OrgID      string
	ProviderID string  // External ID (Stripe)
	Amount     float64 // currency units, not minor units
	Currency   string
	Status     InvoiceStatus
	DueDate    time.Time
	PaidAt     *time.Time
	CreatedAt  time.Time
}

// Validate checks the invoice's field invariants.
func (inv Invoice) Validate() error {
	switch {
	case inv.ID == "":
		return errors.Join(ErrInvalidInvoice, errors.New("id is required"))
	case inv.OrgID == "":
		return errors.Join(ErrInvalidInvoice, errors.New("organization id is required"))
	case inv.Amount < 0:
		return errors.Join(ErrInvalidInvoice, errors.New("amount cannot be negative"))
	case inv.DueDate.IsZero():
		return errors.Join(ErrInvalidInvoice, errors.New("due date is required"))
	case !inv.Status.Valid():
		return errors.Join(ErrInvalidInvoice, errors.New("unknown status "+string(inv.Status)))
	case inv.Status == InvoiceStatusPaid && inv.PaidAt == nil:
		return errors.Join(ErrInvalidInvoice, errors.New("paid invoice needs paid_at"))
	}
	return nil
}

// CheckInvoiceTransition validates an invoice status change.
// Writing the current status again is allowed. Nothing leaves paid.
// This is a PURE function.
func CheckInvoiceTransition(from, to InvoiceStatus) error {
	if !to.Valid() {
		return ErrInvalidInvoiceTransition
	}
	if from == to {
		return nil
	}
	switch from {
	case InvoiceStatusPaid:
		return ErrInvoiceAlreadyPaid
	case InvoiceStatusOpen:
		return nil
	case InvoiceStatusUncollectible:
		return nil
	}
	return ErrInvalidInvoiceTransition
}

// DaysOverdue returns whole days elapsed since due, clamped at zero.
// This is a PURE function.
func DaysOverdue(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(now.Sub(due) / (24 * time.Hour))
}

// FormatAmount formats a currency amount as a dollar string.
// This is a PURE function.
func FormatAmount(amount float64) string {
	cents := int64(math.Round(amount * 100))
	if cents < 0 {
		return "-" + FormatAmount(-amount)
	}
	dollars := cents / 100
	remainder := cents % 100
	if remainder == 0 {
		return "$" + formatNumber(dollars)
	}
	return "$" + formatNumber(dollars) + "." + padZero(remainder)
}

// formatNumber adds comma separators.
func formatNumber(n int64) string {
	if n < 1000 {
		return itoa(n)
	}
	return formatNumber(n/1000) + "," + padThree(n%1000)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func padZero(n int64) string {
	if n < 10 {
		return "0" + itoa(n)
	}
	return itoa(n)
}

func padThree(n int64) string {
	s := itoa(n)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}
