// Package http exposes the ledger's operations over HTTP as JSON:API documents.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/relayledger/adapters/metrics"
	"github.com/artpar/relayledger/app"
	"github.com/artpar/relayledger/ports"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterConfig holds the router's collaborators. Webhooks, Health, Metrics
// and Clock are optional.
type RouterConfig struct {
	Usage    *app.UsageService
	Payments *app.PaymentService
	Accounts *app.AccountService
	Sweep    *app.SweepService
	Webhooks ports.InvoiceWebhookParser
	Health   HealthChecker
	Clock    ports.Clock

	Metrics        *metrics.Collector
	MetricsHandler http.Handler // defaults to promhttp.Handler() when Metrics is set

	AdminKey       string // guards /v1 when set
	Currency       string // default invoice currency
	RequestTimeout time.Duration
	Version        string
}

// Handler serves the ledger API.
type Handler struct {
	usage    *app.UsageService
	payments *app.PaymentService
	accounts *app.AccountService
	sweep    *app.SweepService
	webhooks ports.InvoiceWebhookParser
	clock    ports.Clock
	currency string
	logger   zerolog.Logger
}

// NewRouter creates the HTTP router.
func NewRouter(cfg RouterConfig, logger zerolog.Logger) chi.Router {
	h := &Handler{
		usage:    cfg.Usage,
		payments: cfg.Payments,
		accounts: cfg.Accounts,
		sweep:    cfg.Sweep,
		webhooks: cfg.Webhooks,
		clock:    cfg.Clock,
		currency: cfg.Currency,
		logger:   logger,
	}
	if h.currency == "" {
		h.currency = "usd"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	health := &healthHandler{checker: cfg.Health, version: cfg.Version}
	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Get("/version", health.VersionInfo)

	if cfg.Metrics != nil {
		mh := cfg.MetricsHandler
		if mh == nil {
			mh = promhttp.Handler()
		}
		r.Handle("/metrics", mh)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.AdminKey != "" {
			r.Use(NewAdminKeyMiddleware(cfg.AdminKey))
		}

		r.Post("/usage", h.RecordUsage)
		r.Post("/usage/batch", h.RecordUsageBatch)
		r.Get("/endpoints/{id}/usage", h.GetEndpointUsage)

		r.Get("/orgs/{id}/payment-status", h.GetPaymentStatus)
		r.Post("/orgs/{id}/payment-status/refresh", h.RefreshPaymentStatus)
		r.Post("/orgs/{id}/suspend", h.SuspendOrganization)
		r.Post("/orgs/{id}/reinstate", h.ReinstateOrganization)

		if cfg.Accounts != nil {
			r.Post("/orgs", h.CreateOrganization)
			r.Get("/orgs/{id}/endpoints", h.ListEndpoints)
			r.Post("/orgs/{id}/endpoints", h.CreateEndpoint)
			r.Delete("/endpoints/{id}", h.DeleteEndpoint)
			r.Get("/orgs/{id}/invoices", h.ListInvoices)
			r.Post("/orgs/{id}/invoices", h.CreateInvoice)
		}

		r.Post("/invoices/{id}/paid", h.MarkInvoicePaid)
		r.Post("/invoices/{id}/failed", h.MarkInvoiceFailed)

		r.Post("/sweep", h.RunSweep)
	})

	// signature verification happens inside the handler
	if cfg.Webhooks != nil {
		r.Post("/webhooks/"+cfg.Webhooks.Name(), h.PaymentWebhook)
	}

	return r
}

// NewAdminKeyMiddleware rejects requests whose X-Admin-Key header does not
// match key.
func NewAdminKeyMiddleware(key string) func(next http.Handler) http.Handler {
	want := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("X-Admin-Key"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewMetricsMiddleware creates middleware that records request metrics.
// Requests are labelled by route pattern, not raw path.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveRequest(r.Method, route, statusLabel(ww.Status()), time.Since(start))
		})
	}
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// NewLoggingMiddleware logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == "/metrics" {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

type healthHandler struct {
	checker HealthChecker
	version string
}

// Liveness returns a simple liveness check.
func (h *healthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readiness checks that the backing store answers.
func (h *healthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if h.checker != nil {
		if err := h.checker.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// VersionInfo returns the service version.
func (h *healthHandler) VersionInfo(w http.ResponseWriter, r *http.Request) {
	version := h.version
	if version == "" {
		version = "dev"
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"version": version,
		"service": "relayledger",
	})
}
