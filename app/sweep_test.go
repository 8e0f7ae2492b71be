package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/relayledger/adapters/metrics"
	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/ports"
)

func newSweep(f *fixture, locker ports.Locker, m *metrics.Collector) *SweepService {
	return NewSweepService(f.ledger.Organizations(), f.svc, locker, m, SweepConfig{Concurrency: 2}, zerolog.Nop())
}

func TestSweep_CountsTransitions(t *testing.T) {
	f := newFixture(t)

	// org_a: becomes suspended
	f.addOrg(t, "org_a")
	f.addEndpoint(t, "ep_a", "org_a", false)
	f.addInvoice(t, "inv_a", "org_a", 100, 70)

	// org_b: suspended earlier, now paid up
	f.addOrg(t, "org_b")
	f.addEndpoint(t, "ep_b", "org_b", false)
	_, err := f.svc.Suspend(f.ctx, "org_b", "manual")
	require.NoError(t, err)

	// org_c: grace, no cascade
	f.addOrg(t, "org_c")
	f.addInvoice(t, "inv_c", "org_c", 10, 5)

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	res, err := newSweep(f, nil, m).Run(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Suspended)
	assert.Equal(t, 1, res.Reinstated)
	assert.Zero(t, res.Failed)
	assert.False(t, res.LockHeld)

	assert.False(t, f.endpoint(t, "ep_a").IsActive)
	assert.True(t, f.endpoint(t, "ep_b").IsActive)
	assert.Equal(t, billing.StatusGrace, f.org(t, "org_c").PaymentStatus)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepOrgs.WithLabelValues("suspended")))

	// a second sweep converges: nothing moves
	res, err = newSweep(f, nil, nil).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Zero(t, res.Suspended)
	assert.Zero(t, res.Reinstated)
}

func TestSweep_IsolatesFailures(t *testing.T) {
	f := newFixture(t)
	for i, days := range []int{70, 70, 70} {
		id := fmt.Sprintf("org_%d", i+1)
		f.addOrg(t, id)
		f.addInvoice(t, "inv_"+id, id, 100, days)
	}
	f.spy.failFind["org_2"] = errStoreDown

	res, err := newSweep(f, nil, nil).Run(f.ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Suspended)
	assert.Equal(t, 1, res.Failed)

	assert.Equal(t, billing.StatusSuspended, f.org(t, "org_1").PaymentStatus)
	assert.Equal(t, billing.StatusActive, f.org(t, "org_2").PaymentStatus)
	assert.Equal(t, billing.StatusSuspended, f.org(t, "org_3").PaymentStatus)
}

func TestSweep_FleetLock(t *testing.T) {
	f := newFixture(t)
	f.addOrg(t, "org_1")

	locker := newFakeLocker()
	_, ok, _ := locker.TryLock(f.ctx, sweepLockKey, 0)
	require.True(t, ok)

	res, err := newSweep(f, locker, nil).Run(f.ctx)
	require.NoError(t, err)
	assert.True(t, res.LockHeld)
	assert.Zero(t, res.Processed)

	locker = newFakeLocker()
	res, err = newSweep(f, locker, nil).Run(f.ctx)
	require.NoError(t, err)
	assert.False(t, res.LockHeld)
	assert.Equal(t, 1, res.Processed)
	assert.Empty(t, locker.held, "sweep lock released")

	locker.err = errors.New("redis down")
	res, err = newSweep(f, locker, nil).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed, "lock backend failure fails open")
}

type busyUpdater struct{}

func (busyUpdater) UpdatePaymentStatus(_ context.Context, orgID string) (billing.Transition, error) {
	return billing.Transition{OrgID: orgID}, ErrOrgBusy
}

func TestSweep_CountsBusyOrgsAsSkipped(t *testing.T) {
	f := newFixture(t)
	f.addOrg(t, "org_1")
	f.addOrg(t, "org_2")

	res, err := NewSweepService(f.ledger.Organizations(), busyUpdater{}, nil, nil, SweepConfig{}, zerolog.Nop()).Run(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.Zero(t, res.Processed)
}

type brokenOrgList struct {
	ports.OrganizationStore
}

func (brokenOrgList) List(context.Context) ([]billing.Organization, error) {
	return nil, errStoreDown
}

func TestSweep_ListFailure(t *testing.T) {
	f := newFixture(t)
	_, err := NewSweepService(brokenOrgList{}, f.svc, nil, nil, SweepConfig{}, zerolog.Nop()).Run(f.ctx)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestScheduler(t *testing.T) {
	f := newFixture(t)
	sweep := newSweep(f, nil, nil)

	_, err := NewScheduler(sweep, "every now and then", zerolog.Nop())
	assert.Error(t, err)

	s, err := NewScheduler(sweep, "@hourly", zerolog.Nop())
	require.NoError(t, err)

	s.Start()
	assert.False(t, s.Next().IsZero())
	assert.NoError(t, s.Stop(context.Background()))
}
