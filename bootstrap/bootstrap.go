// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/artpar/relayledger/adapters/clock"
	apihttp "github.com/artpar/relayledger/adapters/http"
	"github.com/artpar/relayledger/adapters/idgen"
	"github.com/artpar/relayledger/adapters/lock"
	"github.com/artpar/relayledger/adapters/metrics"
	"github.com/artpar/relayledger/adapters/notify"
	"github.com/artpar/relayledger/adapters/payment"
	"github.com/artpar/relayledger/app"
	"github.com/artpar/relayledger/config"
	"github.com/artpar/relayledger/ports"
)

// Options tunes New. The zero value is valid.
type Options struct {
	// Holder enables hot reload of thresholds and log level.
	Holder *config.Holder

	// Registry receives the Prometheus collectors. Defaults to a fresh
	// registry so several Apps can live in one process.
	Registry *prometheus.Registry

	// LogOutput defaults to stdout.
	LogOutput io.Writer

	// Clock defaults to the real clock.
	Clock ports.Clock

	// Version is reported by /version.
	Version string
}

// App represents the running application.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Stores  *Stores
	Metrics *metrics.Collector

	// Services
	Usage     *app.UsageService
	Payments  *app.PaymentService
	Accounts  *app.AccountService
	Sweep     *app.SweepService
	Scheduler *app.Scheduler

	Router     http.Handler
	HTTPServer *http.Server

	holder *config.Holder
	redis  *redis.Client
}

// New creates and initializes the application from cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	out := opts.LogOutput
	if out == nil {
		out = os.Stdout
	}
	logger := NewLogger(cfg.Logging, out)
	logger.Info().Str("driver", cfg.Database.Driver).Msg("initializing relayledger")

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		holder: opts.Holder,
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a.Metrics = metrics.NewWithRegistry(reg)

	stores, err := OpenStores(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	a.Stores = stores

	locker := a.initLocker(ctx)

	notifier, err := notify.New(ctx, notify.Config{
		Provider:  cfg.Notify.Provider,
		AppName:   cfg.Notify.AppName,
		PortalURL: cfg.Notify.PortalURL,
		SMTP: notify.SMTPConfig{
			Host:        cfg.Notify.SMTP.Host,
			Port:        cfg.Notify.SMTP.Port,
			Username:    cfg.Notify.SMTP.Username,
			Password:    cfg.Notify.SMTP.Password,
			From:        cfg.Notify.SMTP.From,
			FromName:    cfg.Notify.SMTP.FromName,
			UseTLS:      cfg.Notify.SMTP.UseTLS,
			SkipVerify:  cfg.Notify.SMTP.SkipVerify,
			UseImplicit: cfg.Notify.SMTP.UseImplicit,
			Timeout:     cfg.Notify.Timeout,
		},
		SES: notify.SESConfig{
			Region:           cfg.Notify.SES.Region,
			From:             cfg.Notify.SES.From,
			ConfigurationSet: cfg.Notify.SES.ConfigurationSet,
		},
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init notifier: %w", err)
	}
	logger.Info().Str("provider", cfg.Notify.Provider).Msg("notifier initialized")

	a.Usage = app.NewUsageService(stores.Usage, clk, a.Metrics, logger.With().Str("component", "usage").Logger())

	a.Payments, err = app.NewPaymentService(app.PaymentDeps{
		Orgs:       stores.Organizations,
		Invoices:   stores.Invoices,
		Transactor: stores.Transactor,
		Notifier:   notifier,
		Locker:     locker,
		Clock:      clk,
		Metrics:    a.Metrics,
	}, app.PaymentConfig{
		Thresholds:    cfg.Billing.Thresholds,
		LockTTL:       cfg.Billing.LockTTL,
		NotifyTimeout: cfg.Notify.Timeout,
	}, logger.With().Str("component", "payments").Logger())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init payment service: %w", err)
	}

	a.Accounts = app.NewAccountService(app.AccountDeps{
		Orgs:        stores.Organizations,
		Endpoints:   stores.Endpoints,
		Invoices:    stores.Invoices,
		OrgIDs:      idgen.UUID{Prefix: "org_"},
		EndpointIDs: idgen.UUID{Prefix: "ep_"},
		InvoiceIDs:  idgen.UUID{Prefix: "inv_"},
		Clock:       clk,
	}, logger.With().Str("component", "accounts").Logger())

	a.Sweep = app.NewSweepService(stores.Organizations, a.Payments, locker, a.Metrics, app.SweepConfig{
		Concurrency: cfg.Sweep.Concurrency,
		LockTTL:     cfg.Sweep.LockTTL,
	}, logger.With().Str("component", "sweep").Logger())

	if cfg.Sweep.Enabled {
		a.Scheduler, err = app.NewScheduler(a.Sweep, cfg.Sweep.Schedule, logger.With().Str("component", "scheduler").Logger())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init scheduler: %w", err)
		}
	}

	var webhooks ports.InvoiceWebhookParser
	if cfg.Stripe.WebhookSecret != "" {
		webhooks, err = payment.NewStripeWebhooks(payment.StripeConfig{WebhookSecret: cfg.Stripe.WebhookSecret})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init stripe webhooks: %w", err)
		}
	}

	routerCfg := apihttp.RouterConfig{
		Usage:          a.Usage,
		Payments:       a.Payments,
		Accounts:       a.Accounts,
		Sweep:          a.Sweep,
		Webhooks:       webhooks,
		Clock:          clk,
		AdminKey:       cfg.Server.AdminKey,
		Currency:       cfg.Billing.Currency,
		Health:         stores.Health,
		RequestTimeout: cfg.Server.RequestTimeout,
		Version:        opts.Version,
	}
	if cfg.Metrics.Enabled {
		routerCfg.Metrics = a.Metrics
		routerCfg.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	a.Router = apihttp.NewRouter(routerCfg, logger.With().Str("component", "http").Logger())

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if a.holder != nil {
		a.holder.SetObserver(a.Metrics)
		a.holder.OnChange(a.applyReload)
	}

	if cfg.Server.AdminKey == "" {
		logger.Warn().Msg("server.admin_key is empty; /v1 is unauthenticated")
	}
	return a, nil
}

// initLocker returns the Redis locker when redis.addr is set and reachable,
// otherwise the noop locker.
func (a *App) initLocker(ctx context.Context) ports.Locker {
	rc := a.Config.Redis
	if rc.Addr == "" {
		return lock.Noop{}
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		// lock calls fail open, so an unreachable Redis only costs exclusivity
		a.Logger.Warn().Err(err).Str("addr", rc.Addr).Msg("redis unreachable at startup")
	} else {
		a.Logger.Info().Str("addr", rc.Addr).Msg("redis locker initialized")
	}
	return lock.NewRedis(a.redis, rc.Prefix)
}

// applyReload applies the hot-reloadable settings.
func (a *App) applyReload(cfg *config.Config) {
	if err := a.Payments.SetThresholds(cfg.Billing.Thresholds); err != nil {
		a.Logger.Error().Err(err).Msg("rejected reloaded thresholds")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
}

// Run starts the HTTP server and scheduler and blocks until ctx is done, a
// SIGINT/SIGTERM arrives or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a.Scheduler != nil {
		a.Scheduler.Start()
	}

	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.holder.WatchSignals()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
		a.Logger.Info().Msg("context cancelled, shutting down")
	}

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	// Stop the scheduler first so no sweep starts against a closing store
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("scheduler stop error")
		}
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	a.Close()
	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// Close releases the store and Redis connections. Commands that never call
// Run close the App with it.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("redis close error")
		}
		a.redis = nil
	}
	if a.Stores != nil {
		if err := a.Stores.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
		a.Stores = nil
	}
}

// NewLogger builds the root logger and sets the global level.
func NewLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}
