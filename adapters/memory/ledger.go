// Package memory provides in-memory implementations of storage ports.
// Useful for testing and single-process development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/domain/endpoint"
	"github.com/artpar/relayledger/ports"
)

// Ledger holds organizations, endpoints and invoices behind one mutex so
// WithinTx can give all three stores a single atomic view.
type Ledger struct {
	mu        sync.Mutex
	orgs      map[string]billing.Organization
	endpoints map[string]endpoint.Endpoint
	invoices  map[string]billing.Invoice
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		orgs:      make(map[string]billing.Organization),
		endpoints: make(map[string]endpoint.Endpoint),
		invoices:  make(map[string]billing.Invoice),
	}
}

// Organizations returns the organization store.
func (l *Ledger) Organizations() *OrganizationStore { return &OrganizationStore{l: l} }

// Endpoints returns the endpoint store.
func (l *Ledger) Endpoints() *EndpointStore { return &EndpointStore{l: l} }

// Invoices returns the invoice store.
func (l *Ledger) Invoices() *InvoiceStore { return &InvoiceStore{l: l} }

// with runs fn under the ledger lock unless the caller already holds it.
func (l *Ledger) with(held bool, fn func()) {
	if !held {
		l.mu.Lock()
		defer l.mu.Unlock()
	}
	fn()
}

type txStores struct {
	l *Ledger
}

func (t txStores) Organizations() ports.OrganizationStore { return &OrganizationStore{l: t.l, held: true} }
func (t txStores) Endpoints() ports.EndpointStore         { return &EndpointStore{l: t.l, held: true} }
func (t txStores) Invoices() ports.InvoiceStore           { return &InvoiceStore{l: t.l, held: true} }

// WithinTx runs fn holding the ledger lock. Writes are rolled back from a
// snapshot if fn fails or panics.
func (l *Ledger) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.TxStores) error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	orgs, eps, invs := cloneMap(l.orgs), cloneMap(l.endpoints), cloneMap(l.invoices)
	restore := func() {
		l.orgs, l.endpoints, l.invoices = orgs, eps, invs
	}

	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	if err = fn(ctx, txStores{l: l}); err != nil {
		restore()
	}
	return err
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var _ ports.Transactor = (*Ledger)(nil)

// -----------------------------------------------------------------------------
// OrganizationStore
// -----------------------------------------------------------------------------

// OrganizationStore is an in-memory implementation of ports.OrganizationStore.
type OrganizationStore struct {
	l    *Ledger
	held bool
}

// NewOrganizationStore creates a store over a fresh ledger.
func NewOrganizationStore() *OrganizationStore {
	return NewLedger().Organizations()
}

// Create stores a new organization.
func (s *OrganizationStore) Create(ctx context.Context, org billing.Organization) (err error) {
	if org.PaymentStatus == "" {
		org.PaymentStatus = billing.StatusActive
	}
	if err := org.Validate(); err != nil {
		return err
	}
	s.l.with(s.held, func() {
		if _, ok := s.l.orgs[org.ID]; ok {
			err = ports.ErrDuplicate
			return
		}
		s.l.orgs[org.ID] = org
	})
	return err
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, id string) (org billing.Organization, err error) {
	s.l.with(s.held, func() {
		var ok bool
		if org, ok = s.l.orgs[id]; !ok {
			err = ports.ErrNotFound
		}
	})
	return org, err
}

// List returns every organization ordered by ID.
func (s *OrganizationStore) List(ctx context.Context) ([]billing.Organization, error) {
	var out []billing.Organization
	s.l.with(s.held, func() {
		for _, org := range s.l.orgs {
			if org.PaymentStatus != "" {
				out = append(out, org)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetPaymentStatus overwrites the payment status only.
func (s *OrganizationStore) SetPaymentStatus(ctx context.Context, id string, status billing.PaymentStatus, at time.Time) error {
	return s.update(id, func(o billing.Organization) billing.Organization {
		o.PaymentStatus = status
		o.UpdatedAt = at
		return o
	})
}

// ApplySuspension writes status, suspended_at, reason and balance.
func (s *OrganizationStore) ApplySuspension(ctx context.Context, id string, sus billing.Suspension) error {
	return s.update(id, func(o billing.Organization) billing.Organization {
		return o.ApplySuspension(sus)
	})
}

// ApplyReinstatement restores ACTIVE and clears the suspension fields.
func (s *OrganizationStore) ApplyReinstatement(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(o billing.Organization) billing.Organization {
		return o.ApplyReinstatement(at)
	})
}

func (s *OrganizationStore) update(id string, fn func(billing.Organization) billing.Organization) (err error) {
	s.l.with(s.held, func() {
		org, ok := s.l.orgs[id]
		if !ok {
			err = ports.ErrNotFound
			return
		}
		s.l.orgs[id] = fn(org)
	})
	return err
}

var _ ports.OrganizationStore = (*OrganizationStore)(nil)

// -----------------------------------------------------------------------------
// EndpointStore
// -----------------------------------------------------------------------------

// EndpointStore is an in-memory implementation of ports.EndpointStore.
type EndpointStore struct {
	l    *Ledger
	held bool
}

// Create stores a new endpoint.
func (s *EndpointStore) Create(ctx context.Context, ep endpoint.Endpoint) (err error) {
	s.l.with(s.held, func() {
		if _, ok := s.l.endpoints[ep.ID]; ok {
			err = ports.ErrDuplicate
			return
		}
		s.l.endpoints[ep.ID] = ep
	})
	return err
}

// Get retrieves an endpoint by ID.
func (s *EndpointStore) Get(ctx context.Context, id string) (ep endpoint.Endpoint, err error) {
	s.l.with(s.held, func() {
		var ok bool
		if ep, ok = s.l.endpoints[id]; !ok {
			err = ports.ErrNotFound
		}
	})
	return ep, err
}

// ListByOrg returns all endpoints of an organization ordered by ID.
func (s *EndpointStore) ListByOrg(ctx context.Context, orgID string) ([]endpoint.Endpoint, error) {
	var out []endpoint.Endpoint
	s.l.with(s.held, func() {
		for _, ep := range s.l.endpoints {
			if ep.OrgID == orgID {
				out = append(out, ep)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetActiveForOrg flips IsActive and returns how many endpoints changed.
func (s *EndpointStore) SetActiveForOrg(ctx context.Context, orgID string, active, onlyNonDeleted bool, at time.Time) (int64, error) {
	var n int64
	s.l.with(s.held, func() {
		for id, ep := range s.l.endpoints {
			if ep.OrgID != orgID || ep.IsActive == active {
				continue
			}
			if onlyNonDeleted && ep.IsDeleted() {
				continue
			}
			ep.IsActive = active
			ep.UpdatedAt = at
			s.l.endpoints[id] = ep
			n++
		}
	})
	return n, nil
}

// SoftDelete marks an endpoint deleted and inactive.
func (s *EndpointStore) SoftDelete(ctx context.Context, id string, at time.Time) (err error) {
	s.l.with(s.held, func() {
		ep, ok := s.l.endpoints[id]
		if !ok {
			err = ports.ErrNotFound
			return
		}
		s.l.endpoints[id] = ep.SoftDelete(at)
	})
	return err
}

var _ ports.EndpointStore = (*EndpointStore)(nil)

// -----------------------------------------------------------------------------
// InvoiceStore
// -----------------------------------------------------------------------------

// InvoiceStore is an in-memory implementation of ports.InvoiceStore.
type InvoiceStore struct {
	l    *Ledger
	held bool
}

// Create stores a new invoice.
func (s *InvoiceStore) Create(ctx context.Context, inv billing.Invoice) (err error) {
	s.l.with(s.held, func() {
		if _, ok := s.l.invoices[inv.ID]; ok {
			err = ports.ErrDuplicate
			return
		}
		if inv.ProviderID != "" {
			for _, other := range s.l.invoices {
				if other.ProviderID == inv.ProviderID {
					err = ports.ErrDuplicate
					return
				}
			}
		}
		s.l.invoices[inv.ID] = inv
	})
	return err
}

// Get retrieves an invoice by ID.
func (s *InvoiceStore) Get(ctx context.Context, id string) (inv billing.Invoice, err error) {
	s.l.with(s.held, func() {
		var ok bool
		if inv, ok = s.l.invoices[id]; !ok {
			err = ports.ErrNotFound
		}
	})
	return inv, err
}

// GetByProviderID retrieves an invoice by payment provider ID.
func (s *InvoiceStore) GetByProviderID(ctx context.Context, providerID string) (inv billing.Invoice, err error) {
	err = ports.ErrNotFound
	s.l.with(s.held, func() {
		for _, candidate := range s.l.invoices {
			if candidate.ProviderID != "" && candidate.ProviderID == providerID {
				inv, err = candidate, nil
				return
			}
		}
	})
	return inv, err
}

// FindOldestUnpaid returns the unpaid invoice with the earliest due date.
func (s *InvoiceStore) FindOldestUnpaid(ctx context.Context, orgID string) (billing.Invoice, error) {
	var (
		oldest billing.Invoice
		found  bool
	)
	s.l.with(s.held, func() {
		for _, inv := range s.l.invoices {
			if inv.OrgID != orgID || !inv.Status.IsUnpaid() {
				continue
			}
			if !found || inv.DueDate.Before(oldest.DueDate) {
				oldest, found = inv, true
			}
		}
	})
	if !found {
		return billing.Invoice{}, ports.ErrNotFound
	}
	return oldest, nil
}

// SumUnpaidAmount totals open and uncollectible invoices.
func (s *InvoiceStore) SumUnpaidAmount(ctx context.Context, orgID string) (float64, error) {
	var total float64
	s.l.with(s.held, func() {
		for _, inv := range s.l.invoices {
			if inv.OrgID == orgID && inv.Status.IsUnpaid() {
				total += inv.Amount
			}
		}
	})
	return total, nil
}

// SetStatus updates an invoice's status and paid timestamp.
func (s *InvoiceStore) SetStatus(ctx context.Context, id string, status billing.InvoiceStatus, paidAt *time.Time) (err error) {
	s.l.with(s.held, func() {
		inv, ok := s.l.invoices[id]
		if !ok {
			err = ports.ErrNotFound
			return
		}
		inv.Status = status
		inv.PaidAt = paidAt
		s.l.invoices[id] = inv
	})
	return err
}

// ListByOrg returns all invoices for an organization, oldest due first.
func (s *InvoiceStore) ListByOrg(ctx context.Context, orgID string) ([]billing.Invoice, error) {
	var out []billing.Invoice
	s.l.with(s.held, func() {
		for _, inv := range s.l.invoices {
			if inv.OrgID == orgID {
				out = append(out, inv)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

var _ ports.InvoiceStore = (*InvoiceStore)(nil)
