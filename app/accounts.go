package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/domain/endpoint"
	"github.com/artpar/relayledger/ports"
)

// ErrInvalidInput wraps every provisioning validation failure.
var ErrInvalidInput = errors.New("invalid input")

// AccountService provisions the records the ledger bills: organizations,
// their endpoints and their invoices.
type AccountService struct {
	orgs      ports.OrganizationStore
	endpoints ports.EndpointStore
	invoices  ports.InvoiceStore
	orgIDs    ports.IDGenerator
	epIDs     ports.IDGenerator
	invIDs    ports.IDGenerator
	clock     ports.Clock
	logger    zerolog.Logger
}

// AccountDeps holds AccountService's collaborators. IDs is used for all three
// record kinds unless the kind-specific generator is set.
type AccountDeps struct {
	Orgs        ports.OrganizationStore
	Endpoints   ports.EndpointStore
	Invoices    ports.InvoiceStore
	IDs         ports.IDGenerator
	OrgIDs      ports.IDGenerator
	EndpointIDs ports.IDGenerator
	InvoiceIDs  ports.IDGenerator
	Clock       ports.Clock
}

// NewAccountService creates an AccountService.
func NewAccountService(deps AccountDeps, logger zerolog.Logger) *AccountService {
	pick := func(g ports.IDGenerator) ports.IDGenerator {
		if g != nil {
			return g
		}
		return deps.IDs
	}
	return &AccountService{
		orgs:      deps.Orgs,
		endpoints: deps.Endpoints,
		invoices:  deps.Invoices,
		orgIDs:    pick(deps.OrgIDs),
		epIDs:     pick(deps.EndpointIDs),
		invIDs:    pick(deps.InvoiceIDs),
		clock:     deps.Clock,
		logger:    logger,
	}
}

// CreateOrganization stores a new ACTIVE organization.
func (s *AccountService) CreateOrganization(ctx context.Context, name, billingEmail string) (billing.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return billing.Organization{}, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}

	org := billing.NewOrganization(s.orgIDs.New(), name, strings.TrimSpace(billingEmail), s.clock.Now())
	if err := org.Validate(); err != nil {
		return billing.Organization{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		return billing.Organization{}, fmt.Errorf("create organization: %w", err)
	}

	s.logger.Info().Str("org_id", org.ID).Str("name", org.Name).Msg("organization created")
	return org, nil
}

// CreateEndpoint stores a new endpoint for orgID. Endpoints of a suspended
// organization start inactive and come up with the next reinstatement.
func (s *AccountService) CreateEndpoint(ctx context.Context, orgID, name string) (endpoint.Endpoint, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("get organization %s: %w", orgID, err)
	}

	now := s.clock.Now()
	ep := endpoint.Endpoint{
		ID:        s.epIDs.New(),
		OrgID:     org.ID,
		Name:      strings.TrimSpace(name),
		IsActive:  !org.PaymentStatus.IsSuspended(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.endpoints.Create(ctx, ep); err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("create endpoint: %w", err)
	}

	s.logger.Info().
		Str("endpoint_id", ep.ID).
		Str("org_id", ep.OrgID).
		Bool("active", ep.IsActive).
		Msg("endpoint created")
	return ep, nil
}

// DeleteEndpoint soft-deletes an endpoint. Reinstatement never reactivates it.
func (s *AccountService) DeleteEndpoint(ctx context.Context, endpointID string) error {
	if err := s.endpoints.SoftDelete(ctx, endpointID, s.clock.Now()); err != nil {
		return fmt.Errorf("delete endpoint %s: %w", endpointID, err)
	}
	s.logger.Info().Str("endpoint_id", endpointID).Msg("endpoint deleted")
	return nil
}

// ListEndpoints returns the organization's endpoints, deleted ones included.
func (s *AccountService) ListEndpoints(ctx context.Context, orgID string) ([]endpoint.Endpoint, error) {
	if _, err := s.orgs.Get(ctx, orgID); err != nil {
		return nil, fmt.Errorf("get organization %s: %w", orgID, err)
	}
	return s.endpoints.ListByOrg(ctx, orgID)
}

// NewInvoice describes an invoice to create.
type NewInvoice struct {
	OrgID      string
	ProviderID string
	Amount     float64
	Currency   string
	DueDate    time.Time
}

// CreateInvoice stores a new open invoice. It does not re-evaluate the
// organization; the next status update or sweep picks it up.
func (s *AccountService) CreateInvoice(ctx context.Context, in NewInvoice) (billing.Invoice, error) {
	if _, err := s.orgs.Get(ctx, in.OrgID); err != nil {
		return billing.Invoice{}, fmt.Errorf("get organization %s: %w", in.OrgID, err)
	}

	inv := billing.Invoice{
		ID:         s.invIDs.New(),
		OrgID:      in.OrgID,
		ProviderID: in.ProviderID,
		Amount:     in.Amount,
		Currency:   strings.ToLower(in.Currency),
		Status:     billing.InvoiceStatusOpen,
		DueDate:    in.DueDate.UTC(),
		CreatedAt:  s.clock.Now(),
	}
	if err := inv.Validate(); err != nil {
		return billing.Invoice{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return billing.Invoice{}, fmt.Errorf("create invoice: %w", err)
	}

	s.logger.Info().
		Str("invoice_id", inv.ID).
		Str("org_id", inv.OrgID).
		Float64("amount", inv.Amount).
		Time("due_date", inv.DueDate).
		Msg("invoice created")
	return inv, nil
}

// ListInvoices returns the organization's invoices.
func (s *AccountService) ListInvoices(ctx context.Context, orgID string) ([]billing.Invoice, error) {
	if _, err := s.orgs.Get(ctx, orgID); err != nil {
		return nil, fmt.Errorf("get organization %s: %w", orgID, err)
	}
	return s.invoices.ListByOrg(ctx, orgID)
}
