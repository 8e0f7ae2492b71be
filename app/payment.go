package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/relayledger/adapters/metrics"
	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/ports"
)

// ErrOrgBusy is returned when another caller is already updating the
// organization. That caller converges the organization's status.
var ErrOrgBusy = errors.New("organization update already in progress")

const (
	defaultLockTTL       = 30 * time.Second
	defaultNotifyTimeout = 10 * time.Second
)

// PaymentDeps are the collaborators of PaymentService. Locker, Notifier and
// Metrics are optional.
type PaymentDeps struct {
	Orgs       ports.OrganizationStore
	Invoices   ports.InvoiceStore
	Transactor ports.Transactor
	Notifier   ports.Notifier
	Locker     ports.Locker
	Clock      ports.Clock
	Metrics    *metrics.Collector
}

// PaymentConfig tunes PaymentService.
type PaymentConfig struct {
	Thresholds    billing.Thresholds
	LockTTL       time.Duration
	NotifyTimeout time.Duration
}

// PaymentService is the payment status engine. It derives an organization's
// status from overdue invoice age and cascades suspension and reinstatement
// into endpoint availability.
type PaymentService struct {
	orgs     ports.OrganizationStore
	invoices ports.InvoiceStore
	overdue  *OverdueCalculator
	tx       ports.Transactor
	notifier ports.Notifier
	locker   ports.Locker
	clock    ports.Clock
	metrics  *metrics.Collector
	logger   zerolog.Logger

	thresholds    atomic.Pointer[billing.Thresholds]
	lockTTL       time.Duration
	notifyTimeout time.Duration
}

// NewPaymentService creates a new payment service.
func NewPaymentService(deps PaymentDeps, cfg PaymentConfig, logger zerolog.Logger) (*PaymentService, error) {
	if deps.Orgs == nil || deps.Invoices == nil || deps.Transactor == nil || deps.Clock == nil {
		return nil, errors.New("payment service: organization store, invoice store, transactor and clock are required")
	}
	if cfg.Thresholds == (billing.Thresholds{}) {
		cfg.Thresholds = billing.DefaultThresholds()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}

	s := &PaymentService{
		orgs:          deps.Orgs,
		invoices:      deps.Invoices,
		overdue:       NewOverdueCalculator(deps.Invoices, deps.Clock),
		tx:            deps.Transactor,
		notifier:      deps.Notifier,
		locker:        deps.Locker,
		clock:         deps.Clock,
		metrics:       deps.Metrics,
		logger:        logger,
		lockTTL:       cfg.LockTTL,
		notifyTimeout: cfg.NotifyTimeout,
	}
	if err := s.SetThresholds(cfg.Thresholds); err != nil {
		return nil, err
	}
	return s, nil
}

// SetThresholds swaps the status thresholds. Safe to call while updates run.
func (s *PaymentService) SetThresholds(t billing.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.thresholds.Store(&t)
	return nil
}

// Thresholds returns the thresholds currently in force.
func (s *PaymentService) Thresholds() billing.Thresholds {
	return *s.thresholds.Load()
}

// UpdatePaymentStatus recomputes the organization's status from its overdue
// age, persists it, and runs the suspension or reinstatement cascade when the
// freshly read current status crosses into or out of suspension.
//
// The status write and the endpoint writes share one transaction. Repeated
// and concurrent calls converge: the second of two calls sees the status the
// first one wrote and cascades nothing.
func (s *PaymentService) UpdatePaymentStatus(ctx context.Context, orgID string) (billing.Transition, error) {
	release, err := s.lockOrg(ctx, orgID)
	if err != nil {
		return billing.Transition{OrgID: orgID}, err
	}
	defer release()

	var (
		t   = billing.Transition{OrgID: orgID}
		org billing.Organization
	)
	now := s.clock.Now()
	thresholds := s.Thresholds()

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx ports.TxStores) error {
		current, err := tx.Organizations().Get(ctx, orgID)
		if err != nil {
			return fmt.Errorf("get organization: %w", err)
		}

		days, err := s.overdue.WithStore(tx.Invoices()).DaysOverdueAt(ctx, orgID, now)
		if err != nil {
			return err
		}

		next, cascade := billing.Resolve(current.PaymentStatus, thresholds.StatusFor(days))
		t = billing.Transition{OrgID: orgID, From: current.PaymentStatus, To: next, DaysOverdue: days, Cascade: cascade}

		org, err = s.apply(ctx, tx, current, t, billing.SuspensionReason(next, days), now)
		return err
	})
	if err != nil {
		s.cascadeFailed(t, err)
		return t, err
	}

	s.committed(ctx, org, t)
	return t, nil
}

// Suspend suspends the organization outright, whatever its overdue age.
// An organization that is already suspended is left as it is.
func (s *PaymentService) Suspend(ctx context.Context, orgID, reason string) (billing.Transition, error) {
	return s.force(ctx, orgID, func(current billing.Organization) (billing.Transition, string) {
		t := billing.Transition{OrgID: orgID, From: current.PaymentStatus, To: current.PaymentStatus, Cascade: billing.CascadeNone}
		if !current.PaymentStatus.IsSuspended() {
			t.To, t.Cascade = billing.StatusSuspended, billing.CascadeSuspend
		}
		return t, reason
	})
}

// Reinstate restores the organization to ACTIVE and reactivates every endpoint
// that was not deleted, whatever its overdue age.
func (s *PaymentService) Reinstate(ctx context.Context, orgID string) (billing.Transition, error) {
	return s.force(ctx, orgID, func(current billing.Organization) (billing.Transition, string) {
		return billing.Transition{OrgID: orgID, From: current.PaymentStatus, To: billing.StatusActive, Cascade: billing.CascadeReinstate}, ""
	})
}

func (s *PaymentService) force(ctx context.Context, orgID string, decide func(billing.Organization) (billing.Transition, string)) (billing.Transition, error) {
	release, err := s.lockOrg(ctx, orgID)
	if err != nil {
		return billing.Transition{OrgID: orgID}, err
	}
	defer release()

	var (
		t   = billing.Transition{OrgID: orgID}
		org billing.Organization
	)
	now := s.clock.Now()

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx ports.TxStores) error {
		current, err := tx.Organizations().Get(ctx, orgID)
		if err != nil {
			return fmt.Errorf("get organization: %w", err)
		}
		days, err := s.overdue.WithStore(tx.Invoices()).DaysOverdueAt(ctx, orgID, now)
		if err != nil {
			return err
		}

		var reason string
		t, reason = decide(current)
		t.DaysOverdue = days
		if reason == "" {
			reason = billing.SuspensionReason(t.To, days)
		}

		org, err = s.apply(ctx, tx, current, t, reason, now)
		return err
	})
	if err != nil {
		s.cascadeFailed(t, err)
		return t, err
	}

	s.committed(ctx, org, t)
	return t, nil
}

// apply writes the transition through tx and returns the organization as
// it now stands.
func (s *PaymentService) apply(ctx context.Context, tx ports.TxStores, current billing.Organization, t billing.Transition, reason string, now time.Time) (billing.Organization, error) {
	switch t.Cascade {
	case billing.CascadeSuspend:
		balance, err := tx.Invoices().SumUnpaidAmount(ctx, current.ID)
		if err != nil {
			return current, fmt.Errorf("sum unpaid invoices: %w", err)
		}
		sus := billing.Suspension{Status: t.To, At: now, Reason: reason, BalanceDue: balance}
		if err := tx.Organizations().ApplySuspension(ctx, current.ID, sus); err != nil {
			return current, fmt.Errorf("write suspension: %w", err)
		}
		// suspension is total: deleted endpoints are deactivated too
		n, err := tx.Endpoints().SetActiveForOrg(ctx, current.ID, false, false, now)
		if err != nil {
			return current, fmt.Errorf("deactivate endpoints: %w", err)
		}
		s.logger.Debug().Str("org_id", current.ID).Int64("endpoints", n).Msg("endpoints deactivated")
		return current.ApplySuspension(sus), nil

	case billing.CascadeReinstate:
		if err := tx.Organizations().ApplyReinstatement(ctx, current.ID, now); err != nil {
			return current, fmt.Errorf("write reinstatement: %w", err)
		}
		n, err := tx.Endpoints().SetActiveForOrg(ctx, current.ID, true, true, now)
		if err != nil {
			return current, fmt.Errorf("reactivate endpoints: %w", err)
		}
		s.logger.Debug().Str("org_id", current.ID).Int64("endpoints", n).Msg("endpoints reactivated")
		return current.ApplyReinstatement(now), nil
	}

	if err := tx.Organizations().SetPaymentStatus(ctx, current.ID, t.To, now); err != nil {
		return current, fmt.Errorf("write payment status: %w", err)
	}
	current.PaymentStatus = t.To
	current.UpdatedAt = now
	return current, nil
}

func (s *PaymentService) cascadeFailed(t billing.Transition, err error) {
	if t.Cascade == "" || t.Cascade == billing.CascadeNone {
		s.logger.Error().Err(err).Str("org_id", t.OrgID).Msg("payment status update failed")
		return
	}
	s.metrics.ObserveCascadeFailure(string(t.Cascade))
	s.logger.Error().Err(err).
		Str("org_id", t.OrgID).
		Str("from_status", string(t.From)).
		Str("to_status", string(t.To)).
		Str("cascade", string(t.Cascade)).
		Bool("consistency_warning", true).
		Msg("cascade rolled back; next update will retry")
}

func (s *PaymentService) committed(ctx context.Context, org billing.Organization, t billing.Transition) {
	s.metrics.ObserveStatus(string(t.From), string(t.To))

	if t.Changed() || t.Cascade != billing.CascadeNone {
		s.logger.Info().
			Str("org_id", t.OrgID).
			Str("from_status", string(t.From)).
			Str("to_status", string(t.To)).
			Int("days_overdue", t.DaysOverdue).
			Str("cascade", string(t.Cascade)).
			Msg("payment status changed")
	}

	switch t.Cascade {
	case billing.CascadeSuspend:
		s.metrics.ObserveCascade(string(t.Cascade))
		s.notify(ctx, "suspended", org, t)
	case billing.CascadeReinstate:
		s.metrics.ObserveCascade(string(t.Cascade))
		if t.From.IsSuspended() {
			s.notify(ctx, "reinstated", org, t)
		}
	}
}

// notify delivers a notice after commit. Failures are logged and counted,
// never returned.
func (s *PaymentService) notify(ctx context.Context, kind string, org billing.Organization, t billing.Transition) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	var err error
	if t.Cascade == billing.CascadeSuspend {
		err = s.notifier.NotifySuspended(ctx, org, t)
	} else {
		err = s.notifier.NotifyReinstated(ctx, org, t)
	}
	if err != nil {
		s.metrics.ObserveNotificationFailure(kind)
		s.logger.Warn().Err(err).
			Str("org_id", org.ID).
			Str("kind", kind).
			Msg("notification failed")
	}
}

// lockOrg takes the per-organization lock. Lock backend errors fail open so
// a Redis outage never blocks billing.
func (s *PaymentService) lockOrg(ctx context.Context, orgID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := "relayledger:org:" + orgID
	token, ok, err := s.locker.TryLock(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Warn().Err(err).Str("org_id", orgID).Msg("org lock unavailable, continuing without it")
		return func() {}, nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrgBusy, orgID)
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn().Err(err).Str("org_id", orgID).Msg("org lock release failed")
		}
	}, nil
}

// -----------------------------------------------------------------------------
// Invoice marks
// -----------------------------------------------------------------------------

// MarkInvoicePaid marks the invoice paid and re-evaluates its organization.
// Marking a paid invoice paid again only re-evaluates.
func (s *PaymentService) MarkInvoicePaid(ctx context.Context, invoiceID string) (billing.Transition, error) {
	inv, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return billing.Transition{}, fmt.Errorf("get invoice %s: %w", invoiceID, err)
	}
	return s.markInvoice(ctx, inv, billing.InvoiceStatusPaid)
}

// MarkInvoiceFailed marks the invoice uncollectible and re-evaluates its
// organization. Paid invoices are rejected with billing.ErrInvoiceAlreadyPaid.
func (s *PaymentService) MarkInvoiceFailed(ctx context.Context, invoiceID string) (billing.Transition, error) {
	inv, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return billing.Transition{}, fmt.Errorf("get invoice %s: %w", invoiceID, err)
	}
	return s.markInvoice(ctx, inv, billing.InvoiceStatusUncollectible)
}

// MarkInvoicePaidByProvider is MarkInvoicePaid addressed by the payment
// provider's invoice ID.
func (s *PaymentService) MarkInvoicePaidByProvider(ctx context.Context, providerID string) (billing.Transition, error) {
	inv, err := s.invoices.GetByProviderID(ctx, providerID)
	if err != nil {
		return billing.Transition{}, fmt.Errorf("get invoice by provider id %s: %w", providerID, err)
	}
	return s.markInvoice(ctx, inv, billing.InvoiceStatusPaid)
}

// MarkInvoiceFailedByProvider is MarkInvoiceFailed addressed by the payment
// provider's invoice ID.
func (s *PaymentService) MarkInvoiceFailedByProvider(ctx context.Context, providerID string) (billing.Transition, error) {
	inv, err := s.invoices.GetByProviderID(ctx, providerID)
	if err != nil {
		return billing.Transition{}, fmt.Errorf("get invoice by provider id %s: %w", providerID, err)
	}
	return s.markInvoice(ctx, inv, billing.InvoiceStatusUncollectible)
}

func (s *PaymentService) markInvoice(ctx context.Context, inv billing.Invoice, to billing.InvoiceStatus) (billing.Transition, error) {
	if err := billing.CheckInvoiceTransition(inv.Status, to); err != nil {
		return billing.Transition{OrgID: inv.OrgID}, err
	}

	if inv.Status != to {
		var paidAt *time.Time
		if to == billing.InvoiceStatusPaid {
			now := s.clock.Now()
			paidAt = &now
		}
		if err := s.invoices.SetStatus(ctx, inv.ID, to, paidAt); err != nil {
			return billing.Transition{OrgID: inv.OrgID}, fmt.Errorf("set invoice %s %s: %w", inv.ID, to, err)
		}
		s.logger.Info().
			Str("invoice_id", inv.ID).
			Str("org_id", inv.OrgID).
			Str("from_status", string(inv.Status)).
			Str("to_status", string(to)).
			Msg("invoice status updated")
	}

	return s.UpdatePaymentStatus(ctx, inv.OrgID)
}

// -----------------------------------------------------------------------------
// Projection
// -----------------------------------------------------------------------------

// GetPaymentStatus returns the read-only status projection. An unknown
// organization yields the UNKNOWN view with a nil error; any other failure
// yields the UNKNOWN view together with the error, so callers that ignore
// the error still fail safe.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, orgID string) (billing.StatusView, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if errors.Is(err, ports.ErrNotFound) {
		return billing.UnknownView(orgID), nil
	}
	if err != nil {
		return billing.UnknownView(orgID), fmt.Errorf("get organization: %w", err)
	}

	days, err := s.overdue.DaysOverdue(ctx, orgID)
	if err != nil {
		return billing.UnknownView(orgID), err
	}
	balance, err := s.invoices.SumUnpaidAmount(ctx, orgID)
	if err != nil {
		return billing.UnknownView(orgID), fmt.Errorf("sum unpaid invoices: %w", err)
	}

	return billing.Project(org, days, balance), nil
}
