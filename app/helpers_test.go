package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/artpar/relayledger/adapters/clock"
	"github.com/artpar/relayledger/adapters/memory"
	"github.com/artpar/relayledger/adapters/notify"
	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/domain/endpoint"
	"github.com/artpar/relayledger/ports"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// storeSpy wraps a Transactor to count endpoint writes and inject failures.
type storeSpy struct {
	inner ports.Transactor

	mu            sync.Mutex
	failFind      map[string]error
	failSetActive error

	setActiveCalls atomic.Int64
}

func (s *storeSpy) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.TxStores) error) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, tx ports.TxStores) error {
		return fn(ctx, spyStores{TxStores: tx, spy: s})
	})
}

func (s *storeSpy) findErr(orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failFind[orgID]
}

type spyStores struct {
	ports.TxStores
	spy *storeSpy
}

func (t spyStores) Invoices() ports.InvoiceStore {
	return spyInvoices{InvoiceStore: t.TxStores.Invoices(), spy: t.spy}
}

func (t spyStores) Endpoints() ports.EndpointStore {
	return spyEndpoints{EndpointStore: t.TxStores.Endpoints(), spy: t.spy}
}

type spyInvoices struct {
	ports.InvoiceStore
	spy *storeSpy
}

func (i spyInvoices) FindOldestUnpaid(ctx context.Context, orgID string) (billing.Invoice, error) {
	if err := i.spy.findErr(orgID); err != nil {
		return billing.Invoice{}, err
	}
	return i.InvoiceStore.FindOldestUnpaid(ctx, orgID)
}

type spyEndpoints struct {
	ports.EndpointStore
	spy *storeSpy
}

func (e spyEndpoints) SetActiveForOrg(ctx context.Context, orgID string, active, onlyNonDeleted bool, at time.Time) (int64, error) {
	e.spy.setActiveCalls.Add(1)
	if e.spy.failSetActive != nil {
		return 0, e.spy.failSetActive
	}
	return e.EndpointStore.SetActiveForOrg(ctx, orgID, active, onlyNonDeleted, at)
}

// fakeLocker is an in-process ports.Locker.
type fakeLocker struct {
	mu    sync.Mutex
	held  map[string]string
	err   error
	seq   int
	taken []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.seq++
	token := fmt.Sprintf("%s#%d", key, l.seq)
	l.held[key] = token
	l.taken = append(l.taken, key)
	return token, true, nil
}

func (l *fakeLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type fixture struct {
	ctx      context.Context
	ledger   *memory.Ledger
	spy      *storeSpy
	clock    *clock.Fake
	notifier *notify.Mock
	svc      *PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ledger := memory.NewLedger()
	f := &fixture{
		ctx:      context.Background(),
		ledger:   ledger,
		spy:      &storeSpy{inner: ledger, failFind: map[string]error{}},
		clock:    clock.NewFake(epoch),
		notifier: notify.NewMock(),
	}

	svc, err := NewPaymentService(PaymentDeps{
		Orgs:       ledger.Organizations(),
		Invoices:   ledger.Invoices(),
		Transactor: f.spy,
		Notifier:   f.notifier,
		Clock:      f.clock,
	}, PaymentConfig{}, zerolog.Nop())
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) addOrg(t *testing.T, id string) {
	t.Helper()
	org := billing.NewOrganization(id, "Org "+id, id+"@example.test", epoch)
	require.NoError(t, f.ledger.Organizations().Create(f.ctx, org))
}

func (f *fixture) addEndpoint(t *testing.T, id, orgID string, deleted bool) {
	t.Helper()
	ep := endpoint.Endpoint{ID: id, OrgID: orgID, Name: id, IsActive: true, CreatedAt: epoch, UpdatedAt: epoch}
	if deleted {
		at := epoch
		ep.DeletedAt = &at
		ep.IsActive = false
	}
	require.NoError(t, f.ledger.Endpoints().Create(f.ctx, ep))
}

func (f *fixture) addInvoice(t *testing.T, id, orgID string, amount float64, overdueDays int) {
	t.Helper()
	inv := billing.Invoice{
		ID:         id,
		OrgID:      orgID,
		ProviderID: "in_" + id,
		Amount:     amount,
		Currency:   "usd",
		Status:     billing.InvoiceStatusOpen,
		DueDate:    f.clock.Now().AddDate(0, 0, -overdueDays),
		CreatedAt:  epoch,
	}
	require.NoError(t, f.ledger.Invoices().Create(f.ctx, inv))
}

func (f *fixture) org(t *testing.T, id string) billing.Organization {
	t.Helper()
	org, err := f.ledger.Organizations().Get(f.ctx, id)
	require.NoError(t, err)
	return org
}

func (f *fixture) endpoint(t *testing.T, id string) endpoint.Endpoint {
	t.Helper()
	ep, err := f.ledger.Endpoints().Get(f.ctx, id)
	require.NoError(t, err)
	return ep
}

var errStoreDown = errors.New("store unavailable")
