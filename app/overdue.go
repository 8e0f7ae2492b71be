package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/ports"
)

// OverdueCalculator reports how many days an organization's oldest unpaid
// invoice is past due. It only reads.
type OverdueCalculator struct {
	invoices ports.InvoiceStore
	clock    ports.Clock
}

// NewOverdueCalculator creates a new overdue calculator.
func NewOverdueCalculator(invoices ports.InvoiceStore, clock ports.Clock) *OverdueCalculator {
	return &OverdueCalculator{invoices: invoices, clock: clock}
}

// WithStore returns a calculator reading from invoices, typically the
// invoice store bound to a transaction.
func (c *OverdueCalculator) WithStore(invoices ports.InvoiceStore) *OverdueCalculator {
	return &OverdueCalculator{invoices: invoices, clock: c.clock}
}

// DaysOverdue returns whole days since the oldest open or uncollectible
// invoice fell due. No unpaid invoice, or one not yet due, gives 0.
func (c *OverdueCalculator) DaysOverdue(ctx context.Context, orgID string) (int, error) {
	return c.DaysOverdueAt(ctx, orgID, c.clock.Now())
}

// DaysOverdueAt is DaysOverdue evaluated at now.
func (c *OverdueCalculator) DaysOverdueAt(ctx context.Context, orgID string, now time.Time) (int, error) {
	inv, err := c.invoices.FindOldestUnpaid(ctx, orgID)
	if errors.Is(err, ports.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find oldest unpaid invoice: %w", err)
	}
	return billing.DaysOverdue(inv.DueDate, now), nil
}
