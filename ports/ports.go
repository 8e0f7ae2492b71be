// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/domain/endpoint"
	"github.com/artpar/relayledger/domain/usage"
)

// Store errors shared by every storage adapter.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Locker provides short-lived named locks shared across instances.
type Locker interface {
	// TryLock attempts to take key for ttl. ok is false if another holder has it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Release frees key if token still owns it.
	Release(ctx context.Context, key, token string) error
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// UsageStore persists per-endpoint daily usage aggregates.
type UsageStore interface {
	// MergeUsage atomically inserts or merges into the (endpointID, day) row.
	// Implementations must not read-then-write.
	MergeUsage(ctx context.Context, endpointID, day string, relays, latencyMs int64, errorRate float64, at time.Time) error

	// Get returns one aggregate row.
	Get(ctx context.Context, endpointID, day string) (usage.DailyAggregate, error)

	// ListRange returns rows with from <= day <= to, ordered by day.
	ListRange(ctx context.Context, endpointID, from, to string) ([]usage.DailyAggregate, error)
}

// InvoiceStore persists invoices.
type InvoiceStore interface {
	// Create stores a new invoice.
	Create(ctx context.Context, inv billing.Invoice) error

	// Get retrieves an invoice by ID.
	Get(ctx context.Context, id string) (billing.Invoice, error)

	// GetByProviderID retrieves an invoice by payment provider ID.
	GetByProviderID(ctx context.Context, providerID string) (billing.Invoice, error)

	// FindOldestUnpaid returns the open or uncollectible invoice with the
	// earliest due date. Returns ErrNotFound when there is none.
	FindOldestUnpaid(ctx context.Context, orgID string) (billing.Invoice, error)

	// SumUnpaidAmount totals open and uncollectible invoices.
	SumUnpaidAmount(ctx context.Context, orgID string) (float64, error)

	// SetStatus updates an invoice's status and paid timestamp.
	SetStatus(ctx context.Context, id string, status billing.InvoiceStatus, paidAt *time.Time) error

	// ListByOrg returns all invoices for an organization.
	ListByOrg(ctx context.Context, orgID string) ([]billing.Invoice, error)
}

// OrganizationStore persists the billing fields of organizations.
type OrganizationStore interface {
	// Create stores a new organization.
	Create(ctx context.Context, org billing.Organization) error

	// Get retrieves an organization by ID.
	Get(ctx context.Context, id string) (billing.Organization, error)

	// List returns every organization with a payment status, ordered by ID.
	List(ctx context.Context) ([]billing.Organization, error)

	// SetPaymentStatus overwrites the payment status only.
	SetPaymentStatus(ctx context.Context, id string, status billing.PaymentStatus, at time.Time) error

	// ApplySuspension writes status, suspended_at, reason and balance.
	ApplySuspension(ctx context.Context, id string, s billing.Suspension) error

	// ApplyReinstatement restores ACTIVE, clears suspension fields and balance,
	// and records the payment date.
	ApplyReinstatement(ctx context.Context, id string, at time.Time) error
}

// EndpointStore persists endpoints.
type EndpointStore interface {
	// Create stores a new endpoint.
	Create(ctx context.Context, ep endpoint.Endpoint) error

	// Get retrieves an endpoint by ID.
	Get(ctx context.Context, id string) (endpoint.Endpoint, error)

	// ListByOrg returns all endpoints of an organization, deleted ones included.
	ListByOrg(ctx context.Context, orgID string) ([]endpoint.Endpoint, error)

	// SetActiveForOrg sets is_active on the organization's endpoints. With
	// onlyNonDeleted, soft-deleted endpoints are left untouched.
	// Returns the number of rows written.
	SetActiveForOrg(ctx context.Context, orgID string, active, onlyNonDeleted bool, at time.Time) (int64, error)

	// SoftDelete marks an endpoint deleted and inactive.
	SoftDelete(ctx context.Context, id string, at time.Time) error
}

// TxStores exposes the stores bound to one transaction.
type TxStores interface {
	Organizations() OrganizationStore
	Endpoints() EndpointStore
	Invoices() InvoiceStore
}

// Transactor runs fn inside a single storage transaction. If fn returns an
// error every write made through tx is rolled back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxStores) error) error
}

// -----------------------------------------------------------------------------
// Notification Ports
// -----------------------------------------------------------------------------

// Notifier tells an organization's owner about suspension changes.
// Delivery is best-effort.
type Notifier interface {
	// NotifySuspended announces that the organization's endpoints were suspended.
	NotifySuspended(ctx context.Context, org billing.Organization, t billing.Transition) error

	// NotifyReinstated announces that service was restored.
	NotifyReinstated(ctx context.Context, org billing.Organization, t billing.Transition) error
}

// -----------------------------------------------------------------------------
// Payment Provider Ports
// -----------------------------------------------------------------------------

// InvoiceEventType classifies a provider webhook.
type InvoiceEventType string

const (
	InvoiceEventPaid    InvoiceEventType = "paid"
	InvoiceEventFailed  InvoiceEventType = "failed"
	InvoiceEventIgnored InvoiceEventType = "ignored"
)

// InvoiceEvent is the part of a provider webhook this system acts on.
type InvoiceEvent struct {
	ID                string // provider event ID
	Type              InvoiceEventType
	RawType           string
	ProviderInvoiceID string
}

// InvoiceWebhookParser verifies and decodes payment provider webhooks.
type InvoiceWebhookParser interface {
	// Name returns the provider name (e.g., "stripe").
	Name() string

	// ParseInvoiceEvent validates the signature and extracts the invoice event.
	ParseInvoiceEvent(payload []byte, signature string) (InvoiceEvent, error)
}
