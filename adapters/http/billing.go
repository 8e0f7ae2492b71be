package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/relayledger/app"
	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/domain/usage"
	"github.com/artpar/relayledger/pkg/jsonapi"
	"github.com/artpar/relayledger/ports"
)

const (
	typePaymentStatus = "payment_statuses"
	typeTransition    = "status_transitions"
	typeOrganization  = "organizations"
	typeInvoice       = "invoices"

	maxWebhookBody = 64 << 10
)

// GetPaymentStatus returns the organization's status projection. A store
// failure yields the UNKNOWN view with meta.degraded set.
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")

	view, err := h.payments.GetPaymentStatus(r.Context(), orgID)
	if err != nil {
		h.logger.Warn().Err(err).Str("org_id", orgID).Msg("payment status degraded to UNKNOWN")
		jsonapi.WriteDocument(w, http.StatusOK, jsonapi.NewDocument().
			Data(statusResource(view)).
			Meta("degraded", true).
			Build())
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, statusResource(view))
}

// RefreshPaymentStatus recomputes the organization's status now.
func (h *Handler) RefreshPaymentStatus(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")

	t, err := h.payments.UpdatePaymentStatus(r.Context(), orgID)
	if err != nil {
		h.writeBillingError(w, r, err, typeOrganization, orgID)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, transitionResource(t))
}

// MarkInvoicePaid records a payment and recomputes the owner's status.
func (h *Handler) MarkInvoicePaid(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "id")

	t, err := h.payments.MarkInvoicePaid(r.Context(), invoiceID)
	if err != nil {
		h.writeBillingError(w, r, err, typeInvoice, invoiceID)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, transitionResource(t))
}

// MarkInvoiceFailed marks an invoice uncollectible and recomputes the owner's status.
func (h *Handler) MarkInvoiceFailed(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "id")

	t, err := h.payments.MarkInvoiceFailed(r.Context(), invoiceID)
	if err != nil {
		h.writeBillingError(w, r, err, typeInvoice, invoiceID)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, transitionResource(t))
}

// RunSweep runs one sweep synchronously.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweep == nil {
		jsonapi.WriteError(w, jsonapi.ErrServiceUnavailable("sweep is not configured"))
		return
	}

	res, err := h.sweep.Run(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err, "sweep")
		return
	}
	if res.LockHeld {
		jsonapi.WriteError(w, jsonapi.ErrConflict("sweep_in_progress", "another sweep is already running"))
		return
	}

	jsonapi.WriteMeta(w, http.StatusOK, jsonapi.Meta{
		"processed":   res.Processed,
		"suspended":   res.Suspended,
		"reinstated":  res.Reinstated,
		"failed":      res.Failed,
		"skipped":     res.Skipped,
		"duration_ms": res.Duration.Milliseconds(),
	})
}

// PaymentWebhook applies invoice.paid and invoice.payment_failed events.
// Events for unknown invoices are acknowledged so the provider stops retrying.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		jsonapi.WriteBadRequest(w, "Failed to read request body")
		return
	}

	ev, err := h.webhooks.ParseInvoiceEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn().Err(err).Str("provider", h.webhooks.Name()).Msg("webhook rejected")
		jsonapi.WriteError(w, jsonapi.ErrInvalidSignature(err.Error()))
		return
	}

	log := h.logger.With().
		Str("provider", h.webhooks.Name()).
		Str("event_id", ev.ID).
		Str("event_type", ev.RawType).
		Str("provider_invoice_id", ev.ProviderInvoiceID).
		Logger()

	var t billing.Transition
	switch ev.Type {
	case ports.InvoiceEventPaid:
		t, err = h.payments.MarkInvoicePaidByProvider(r.Context(), ev.ProviderInvoiceID)
	case ports.InvoiceEventFailed:
		t, err = h.payments.MarkInvoiceFailedByProvider(r.Context(), ev.ProviderInvoiceID)
	default:
		writeWebhookAck(w, "ignored")
		return
	}

	switch {
	case err == nil:
		log.Info().Str("org_id", t.OrgID).Str("to", string(t.To)).Msg("webhook applied")
		writeWebhookAck(w, "applied")
	case errors.Is(err, ports.ErrNotFound):
		log.Warn().Msg("webhook for unknown invoice ignored")
		writeWebhookAck(w, "ignored")
	case errors.Is(err, billing.ErrInvoiceAlreadyPaid):
		log.Info().Msg("payment failure for paid invoice ignored")
		writeWebhookAck(w, "ignored")
	default:
		// 5xx makes the provider retry
		h.writeBillingError(w, r, err, typeInvoice, ev.ProviderInvoiceID)
	}
}

func writeWebhookAck(w http.ResponseWriter, result string) {
	jsonapi.WriteMeta(w, http.StatusOK, jsonapi.Meta{"received": true, "result": result})
}

func statusResource(v billing.StatusView) jsonapi.Resource {
	b := jsonapi.NewResource(typePaymentStatus, v.OrgID).
		Attr("status", string(v.Status)).
		Attr("days_overdue", v.DaysOverdue).
		Attr("balance_due", v.BalanceDue).
		Attr("can_use_service", v.CanUseService).
		Attr("warning_message", v.WarningMessage).
		BelongsTo("organization", typeOrganization, v.OrgID)
	if v.SuspendedAt != nil {
		b.Attr("suspended_at", v.SuspendedAt.UTC())
	}
	return b.Build()
}

func transitionResource(t billing.Transition) jsonapi.Resource {
	return jsonapi.NewResource(typeTransition, t.OrgID).
		Attr("from", string(t.From)).
		Attr("to", string(t.To)).
		Attr("changed", t.Changed()).
		Attr("days_overdue", t.DaysOverdue).
		Attr("cascade", string(t.Cascade)).
		BelongsTo("organization", typeOrganization, t.OrgID).
		Build()
}

func (h *Handler) writeBillingError(w http.ResponseWriter, r *http.Request, err error, resourceType, id string) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		jsonapi.WriteNotFound(w, resourceType, id)
	case errors.Is(err, app.ErrOrgBusy):
		jsonapi.WriteError(w, jsonapi.ErrConflict("org_busy", "a status update for this organization is already in progress"))
	case errors.Is(err, billing.ErrInvoiceAlreadyPaid):
		jsonapi.WriteError(w, jsonapi.ErrConflict("invoice_already_paid", "invoice is already paid"))
	case errors.Is(err, billing.ErrInvalidInvoiceTransition):
		jsonapi.WriteError(w, jsonapi.ErrConflict("invalid_invoice_transition", err.Error()))
	default:
		h.writeStoreError(w, r, err, "billing update")
	}
}

// writeStoreError maps unexpected failures to 503 and logs them.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, op string) {
	if usage.IsValidationError(err) {
		jsonapi.WriteValidationError(w, "data", err.Error())
		return
	}
	h.logger.Error().
		Err(err).
		Str("op", op).
		Str("path", r.URL.Path).
		Msg("request failed")
	jsonapi.WriteError(w, jsonapi.ErrServiceUnavailable(""))
}

func writeUnauthorized(w http.ResponseWriter) {
	jsonapi.WriteUnauthorized(w, "missing or invalid admin key")
}
