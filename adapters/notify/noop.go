package notify

import (
	"context"

	"github.com/artpar/relayledger/domain/billing"
)

// Noop discards notices. Used when notifications are disabled.
type Noop struct{}

// NotifySuspended does nothing.
func (Noop) NotifySuspended(context.Context, billing.Organization, billing.Transition) error {
	return nil
}

// NotifyReinstated does nothing.
func (Noop) NotifyReinstated(context.Context, billing.Organization, billing.Transition) error {
	return nil
}
