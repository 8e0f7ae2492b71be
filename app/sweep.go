package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/artpar/relayledger/adapters/metrics"
	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/ports"
)

const sweepLockKey = "relayledger:sweep"

// SweepConfig tunes SweepService.
type SweepConfig struct {
	Concurrency int
	LockTTL     time.Duration
}

// SweepResult reports one sweep.
type SweepResult struct {
	Processed  int
	Suspended  int
	Reinstated int
	Failed     int
	Skipped    int // organizations another caller was already updating
	Duration   time.Duration
	LockHeld   bool // another instance was sweeping; nothing was processed
}

// statusUpdater is the part of PaymentService a sweep drives.
type statusUpdater interface {
	UpdatePaymentStatus(ctx context.Context, orgID string) (billing.Transition, error)
}

// SweepService reconciles every organization's payment status.
type SweepService struct {
	orgs    ports.OrganizationStore
	updater statusUpdater
	locker  ports.Locker
	metrics *metrics.Collector
	logger  zerolog.Logger
	config  SweepConfig
}

// NewSweepService creates a new sweep service. locker and m may be nil.
func NewSweepService(orgs ports.OrganizationStore, updater statusUpdater, locker ports.Locker, m *metrics.Collector, cfg SweepConfig, logger zerolog.Logger) *SweepService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &SweepService{
		orgs:    orgs,
		updater: updater,
		locker:  locker,
		metrics: m,
		logger:  logger,
		config:  cfg,
	}
}

// Run calls UpdatePaymentStatus for every organization. A failure for one
// organization is logged and counted; it never stops the others. Run only
// returns an error when the organization list itself cannot be read.
func (s *SweepService) Run(ctx context.Context) (SweepResult, error) {
	start := time.Now()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.config.LockTTL)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("sweep lock unavailable, sweeping without it")
		case !ok:
			s.logger.Info().Msg("sweep already running on another instance")
			return SweepResult{LockHeld: true, Duration: time.Since(start)}, nil
		default:
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
					s.logger.Warn().Err(err).Msg("sweep lock release failed")
				}
			}()
		}
	}

	orgs, err := s.orgs.List(ctx)
	if err != nil {
		return SweepResult{Duration: time.Since(start)}, fmt.Errorf("list organizations: %w", err)
	}

	var processed, suspended, reinstated, failed, skipped atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(s.config.Concurrency)
	for _, org := range orgs {
		if ctx.Err() != nil {
			break
		}
		orgID := org.ID
		g.Go(func() error {
			t, err := s.updater.UpdatePaymentStatus(ctx, orgID)
			switch {
			case errors.Is(err, ErrOrgBusy):
				skipped.Add(1)
				return nil
			case err != nil:
				failed.Add(1)
				s.logger.Error().Err(err).Str("org_id", orgID).Msg("sweep: payment status update failed")
				return nil
			}

			processed.Add(1)
			switch {
			case !t.From.IsSuspended() && t.To.IsSuspended():
				suspended.Add(1)
			case t.From.IsSuspended() && t.To == billing.StatusActive:
				reinstated.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Processed:  int(processed.Load()),
		Suspended:  int(suspended.Load()),
		Reinstated: int(reinstated.Load()),
		Failed:     int(failed.Load()),
		Skipped:    int(skipped.Load()),
		Duration:   time.Since(start),
	}

	s.metrics.ObserveSweep(res.Duration, metrics.SweepOutcomes{
		Suspended:  res.Suspended,
		Reinstated: res.Reinstated,
		Unchanged:  res.Processed - res.Suspended - res.Reinstated,
		Failed:     res.Failed,
	}, time.Now())

	s.logger.Info().
		Int("organizations", len(orgs)).
		Int("processed", res.Processed).
		Int("suspended", res.Suspended).
		Int("reinstated", res.Reinstated).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Dur("duration", res.Duration).
		Msg("sweep complete")

	return res, nil
}
