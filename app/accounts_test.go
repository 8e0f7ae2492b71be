package app

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/relayledger/adapters/idgen"
	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/ports"
)

func newAccounts(f *fixture) *AccountService {
	return NewAccountService(AccountDeps{
		Orgs:        f.ledger.Organizations(),
		Endpoints:   f.ledger.Endpoints(),
		Invoices:    f.ledger.Invoices(),
		IDs:         idgen.NewSequential("id_"),
		OrgIDs:      idgen.NewSequential("org_"),
		EndpointIDs: idgen.NewSequential("ep_"),
		Clock:       f.clock,
	}, zerolog.Nop())
}

func TestAccountService_CreateOrganization(t *testing.T) {
	f := newFixture(t)
	accounts := newAccounts(f)

	org, err := accounts.CreateOrganization(f.ctx, "  Acme  ", "billing@acme.test")
	require.NoError(t, err)
	assert.Equal(t, "org_1", org.ID)
	assert.Equal(t, "Acme", org.Name)
	assert.Equal(t, billing.StatusActive, org.PaymentStatus)
	assert.Nil(t, org.SuspendedAt)

	stored := f.org(t, org.ID)
	assert.Equal(t, org.Name, stored.Name)

	_, err = accounts.CreateOrganization(f.ctx, " ", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAccountService_EndpointsFollowSuspension(t *testing.T) {
	f := newFixture(t)
	accounts := newAccounts(f)
	f.addOrg(t, "org-1")

	active, err := accounts.CreateEndpoint(f.ctx, "org-1", "mainnet")
	require.NoError(t, err)
	assert.Equal(t, "ep_1", active.ID)
	assert.True(t, active.IsActive)

	_, err = f.svc.Suspend(f.ctx, "org-1", "manual")
	require.NoError(t, err)

	dormant, err := accounts.CreateEndpoint(f.ctx, "org-1", "testnet")
	require.NoError(t, err)
	assert.False(t, dormant.IsActive, "endpoints of a suspended org start inactive")

	require.NoError(t, accounts.DeleteEndpoint(f.ctx, active.ID))

	_, err = f.svc.Reinstate(f.ctx, "org-1")
	require.NoError(t, err)

	assert.False(t, f.endpoint(t, active.ID).IsActive, "deleted endpoint stays inactive")
	assert.True(t, f.endpoint(t, dormant.ID).IsActive)

	eps, err := accounts.ListEndpoints(f.ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, eps, 2)
}

func TestAccountService_CreateEndpointUnknownOrg(t *testing.T) {
	f := newFixture(t)
	accounts := newAccounts(f)

	_, err := accounts.CreateEndpoint(f.ctx, "ghost", "x")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestAccountService_CreateInvoice(t *testing.T) {
	f := newFixture(t)
	accounts := newAccounts(f)
	f.addOrg(t, "org-1")

	inv, err := accounts.CreateInvoice(f.ctx, NewInvoice{
		OrgID:      "org-1",
		ProviderID: "in_abc",
		Amount:     250,
		Currency:   "USD",
		DueDate:    epoch.AddDate(0, 0, -50),
	})
	require.NoError(t, err)
	assert.Equal(t, "id_1", inv.ID)
	assert.Equal(t, "usd", inv.Currency)
	assert.Equal(t, billing.InvoiceStatusOpen, inv.Status)

	invoices, err := accounts.ListInvoices(f.ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, invoices, 1)

	tr, err := f.svc.UpdatePaymentStatus(f.ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusFinalWarning, tr.To)

	_, err = accounts.CreateInvoice(f.ctx, NewInvoice{OrgID: "org-1", Amount: -1, DueDate: epoch})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, billing.ErrInvalidInvoice)

	_, err = accounts.CreateInvoice(f.ctx, NewInvoice{OrgID: "ghost", Amount: 1, DueDate: epoch})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
