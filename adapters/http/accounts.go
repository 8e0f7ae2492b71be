package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/relayledger/app"
	"github.com/artpar/relayledger/domain/billing"
	"github.com/artpar/relayledger/domain/endpoint"
	"github.com/artpar/relayledger/pkg/jsonapi"
)

const maxAdminBody = 64 << 10

func decodeAttributes(w http.ResponseWriter, r *http.Request, resourceType string, dst any) bool {
	var req struct {
		Data struct {
			Type       string          `json:"type"`
			Attributes json.RawMessage `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody)).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid JSON body")
		return false
	}
	if req.Data.Type != "" && req.Data.Type != resourceType {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusConflict, "type_mismatch", "Conflict").
			Detailf("expected resource type %q", resourceType).
			Pointer("/data/type").
			Build())
		return false
	}
	if len(req.Data.Attributes) == 0 {
		jsonapi.WriteValidationError(w, "attributes", "attributes are required")
		return false
	}
	if err := json.Unmarshal(req.Data.Attributes, dst); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid attributes: "+err.Error())
		return false
	}
	return true
}

// CreateOrganization provisions a new ACTIVE organization.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var attrs struct {
		Name         string `json:"name"`
		BillingEmail string `json:"billing_email"`
	}
	if !decodeAttributes(w, r, typeOrganization, &attrs) {
		return
	}

	org, err := h.accounts.CreateOrganization(r.Context(), attrs.Name, attrs.BillingEmail)
	if err != nil {
		h.writeAccountError(w, r, err, typeOrganization, "")
		return
	}
	jsonapi.WriteResource(w, http.StatusCreated, organizationResource(org))
}

// SuspendOrganization suspends an organization regardless of overdue age.
func (h *Handler) SuspendOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")

	var attrs struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 && !decodeAttributes(w, r, typeOrganization, &attrs) {
		return
	}
	if attrs.Reason == "" {
		attrs.Reason = "Suspended by administrator"
	}

	t, err := h.payments.Suspend(r.Context(), orgID, attrs.Reason)
	if err != nil {
		h.writeBillingError(w, r, err, typeOrganization, orgID)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, transitionResource(t))
}

// ReinstateOrganization restores an organization to ACTIVE.
func (h *Handler) ReinstateOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")

	t, err := h.payments.Reinstate(r.Context(), orgID)
	if err != nil {
		h.writeBillingError(w, r, err, typeOrganization, orgID)
		return
	}
	jsonapi.WriteResource(w, http.StatusOK, transitionResource(t))
}

// CreateEndpoint provisions an endpoint for the organization.
func (h *Handler) CreateEndpoint(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")

	var attrs struct {
		Name string `json:"name"`
	}
	if !decodeAttributes(w, r, typeEndpoint, &attrs) {
		return
	}

	ep, err := h.accounts.CreateEndpoint(r.Context(), orgID, attrs.Name)
	if err != nil {
		h.writeAccountError(w, r, err, typeOrganization, orgID)
		return
	}
	jsonapi.WriteResource(w, http.StatusCreated, endpointResource(ep))
}

// ListEndpoints lists the organization's endpoints.
func (h *Handler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")

	eps, err := h.accounts.ListEndpoints(r.Context(), orgID)
	if err != nil {
		h.writeAccountError(w, r, err, typeOrganization, orgID)
		return
	}
	resources := make([]jsonapi.Resource, 0, len(eps))
	for _, ep := range eps {
		resources = append(resources, endpointResource(ep))
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources, jsonapi.Meta{"total": len(eps)})
}

// DeleteEndpoint soft-deletes an endpoint.
func (h *Handler) DeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "id")

	if err := h.accounts.DeleteEndpoint(r.Context(), endpointID); err != nil {
		h.writeAccountError(w, r, err, typeEndpoint, endpointID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateInvoice records an open invoice for the organization.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")

	var attrs struct {
		ProviderID string  `json:"provider_id"`
		Amount     float64 `json:"amount"`
		Currency   string  `json:"currency"`
		DueDate    string  `json:"due_date"`
	}
	if !decodeAttributes(w, r, typeInvoice, &attrs) {
		return
	}
	due, err := parseDueDate(attrs.DueDate)
	if err != nil {
		jsonapi.WriteValidationError(w, "due_date", "due_date must be YYYY-MM-DD or RFC3339")
		return
	}
	if attrs.Currency == "" {
		attrs.Currency = h.currency
	}

	inv, err := h.accounts.CreateInvoice(r.Context(), app.NewInvoice{
		OrgID:      orgID,
		ProviderID: attrs.ProviderID,
		Amount:     attrs.Amount,
		Currency:   attrs.Currency,
		DueDate:    due,
	})
	if err != nil {
		h.writeAccountError(w, r, err, typeOrganization, orgID)
		return
	}
	jsonapi.WriteResource(w, http.StatusCreated, invoiceResource(inv))
}

// ListInvoices lists the organization's invoices.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "id")

	invoices, err := h.accounts.ListInvoices(r.Context(), orgID)
	if err != nil {
		h.writeAccountError(w, r, err, typeOrganization, orgID)
		return
	}
	resources := make([]jsonapi.Resource, 0, len(invoices))
	for _, inv := range invoices {
		resources = append(resources, invoiceResource(inv))
	}
	jsonapi.WriteCollection(w, http.StatusOK, resources, jsonapi.Meta{"total": len(invoices)})
}

func parseDueDate(v string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

func (h *Handler) writeAccountError(w http.ResponseWriter, r *http.Request, err error, resourceType, id string) {
	if errors.Is(err, app.ErrInvalidInput) {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusUnprocessableEntity, "validation_error", "Validation Failed").
			Detail(err.Error()).
			Pointer("/data/attributes").
			Build())
		return
	}
	h.writeBillingError(w, r, err, resourceType, id)
}

func organizationResource(org billing.Organization) jsonapi.Resource {
	b := jsonapi.NewResource(typeOrganization, org.ID).
		Attr("name", org.Name).
		Attr("billing_email", org.BillingEmail).
		Attr("payment_status", string(org.PaymentStatus)).
		Attr("created_at", org.CreatedAt)
	if org.SuspendedAt != nil {
		b.Attr("suspended_at", org.SuspendedAt.UTC()).
			Attr("suspension_reason", org.SuspensionReason)
	}
	return b.Build()
}

func endpointResource(ep endpoint.Endpoint) jsonapi.Resource {
	b := jsonapi.NewResource(typeEndpoint, ep.ID).
		Attr("name", ep.Name).
		Attr("is_active", ep.IsActive).
		Attr("created_at", ep.CreatedAt).
		BelongsTo("organization", typeOrganization, ep.OrgID)
	if ep.DeletedAt != nil {
		b.Attr("deleted_at", ep.DeletedAt.UTC())
	}
	return b.Build()
}

func invoiceResource(inv billing.Invoice) jsonapi.Resource {
	b := jsonapi.NewResource(typeInvoice, inv.ID).
		Attr("provider_id", inv.ProviderID).
		Attr("amount", inv.Amount).
		Attr("currency", inv.Currency).
		Attr("status", string(inv.Status)).
		Attr("due_date", inv.DueDate.UTC().Format("2006-01-02")).
		BelongsTo("organization", typeOrganization, inv.OrgID)
	if inv.PaidAt != nil {
		b.Attr("paid_at", inv.PaidAt.UTC())
	}
	return b.Build()
}
