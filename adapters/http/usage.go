package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/relayledger/app"
	"github.com/artpar/relayledger/domain/usage"
	"github.com/artpar/relayledger/pkg/jsonapi"
)

const (
	maxBatchEvents   = 1000
	maxUsageBody     = 1 << 20
	typeUsageEvent   = "usage_events"
	typeUsageDaily   = "usage_daily"
	typeEndpoint     = "endpoints"
	defaultUsageDays = 30
)

type usageEventAttributes struct {
	EndpointID string    `json:"endpoint_id"`
	Relays     int64     `json:"relays"`
	LatencyMs  int64     `json:"latency_ms"`
	ErrorRate  float64   `json:"error_rate"`
	Timestamp  time.Time `json:"timestamp"`
}

type usageEventData struct {
	Type       string               `json:"type"`
	Attributes usageEventAttributes `json:"attributes"`
}

func (h *Handler) toEvent(d usageEventData) usage.Event {
	ts := d.Attributes.Timestamp
	if ts.IsZero() {
		ts = h.now()
	}
	return usage.Event{
		EndpointID: d.Attributes.EndpointID,
		Relays:     d.Attributes.Relays,
		LatencyMs:  d.Attributes.LatencyMs,
		ErrorRate:  d.Attributes.ErrorRate,
		Timestamp:  ts,
	}
}

func (h *Handler) now() time.Time {
	if h.clock != nil {
		return h.clock.Now()
	}
	return time.Now()
}

// RecordUsage merges one usage event into its daily aggregate.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data usageEventData `json:"data"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUsageBody)).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid JSON body")
		return
	}
	if req.Data.Type != "" && req.Data.Type != typeUsageEvent {
		jsonapi.WriteError(w, jsonapi.NewError(http.StatusConflict, "type_mismatch", "Conflict").
			Detailf("expected resource type %q", typeUsageEvent).
			Pointer("/data/type").
			Build())
		return
	}

	e := h.toEvent(req.Data)
	if err := h.usage.Record(r.Context(), e); err != nil {
		if usage.IsValidationError(err) {
			jsonapi.WriteError(w, jsonapi.ErrInvalidUsageEvent(0, err.Error()))
			return
		}
		h.writeStoreError(w, r, err, "record usage")
		return
	}

	jsonapi.WriteMeta(w, http.StatusAccepted, jsonapi.Meta{
		"accepted":    1,
		"endpoint_id": e.EndpointID,
		"day":         e.Day(),
	})
}

// RecordUsageBatch merges up to maxBatchEvents events. Valid events are kept
// even when others are rejected.
func (h *Handler) RecordUsageBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data []usageEventData `json:"data"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUsageBody)).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "Invalid JSON body")
		return
	}
	if len(req.Data) == 0 {
		jsonapi.WriteValidationError(w, "data", "at least one event is required")
		return
	}
	if len(req.Data) > maxBatchEvents {
		jsonapi.WriteValidationError(w, "data", fmt.Sprintf("at most %d events per batch", maxBatchEvents))
		return
	}

	events := make([]usage.Event, len(req.Data))
	for i, d := range req.Data {
		events[i] = h.toEvent(d)
	}

	accepted, err := h.usage.RecordBatch(r.Context(), events)
	var errs []jsonapi.Error
	for _, e := range eventErrors(err) {
		if !usage.IsValidationError(e.Err) {
			h.logger.Error().Err(e.Err).Int("index", e.Index).Msg("batch usage merge failed")
			errs = append(errs, jsonapi.NewError(http.StatusServiceUnavailable, "merge_failed", "Merge Failed").
				Detail("usage could not be recorded").
				Pointer(fmt.Sprintf("/data/%d", e.Index)).
				Build())
			continue
		}
		errs = append(errs, jsonapi.ErrInvalidUsageEvent(e.Index, e.Err.Error()))
	}

	meta := jsonapi.Meta{
		"accepted": accepted,
		"rejected": len(errs),
	}
	status := http.StatusAccepted
	if accepted == 0 {
		status = batchFailureStatus(errs)
	}
	jsonapi.WriteDocument(w, status, jsonapi.NewDocument().Errors(errs...).MetaAll(meta).Build())
}

// eventErrors unwraps the joined error returned by RecordBatch.
func eventErrors(err error) []*app.EventError {
	if err == nil {
		return nil
	}
	var out []*app.EventError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			var ee *app.EventError
			if errors.As(e, &ee) {
				out = append(out, ee)
			}
		}
		return out
	}
	var ee *app.EventError
	if errors.As(err, &ee) {
		out = append(out, ee)
	}
	return out
}

// batchFailureStatus is 422 when every failure was a validation error and
// 503 when any was a store failure.
func batchFailureStatus(errs []jsonapi.Error) int {
	for _, e := range errs {
		if e.StatusCode() == http.StatusServiceUnavailable {
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusUnprocessableEntity
}

// GetEndpointUsage lists the endpoint's daily aggregates for ?from=&to=.
// Both default to the defaultUsageDays days ending today, inclusive.
func (h *Handler) GetEndpointUsage(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "id")

	today := h.now().UTC()
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if to == "" {
		to = usage.DayOf(today)
	}
	if from == "" {
		from = usage.DayOf(today.AddDate(0, 0, -(defaultUsageDays - 1)))
	}

	rows, err := h.usage.Daily(r.Context(), endpointID, from, to)
	if err != nil {
		if errors.Is(err, app.ErrInvalidRange) {
			jsonapi.WriteError(w, jsonapi.ErrInvalidDayRange(err.Error()))
			return
		}
		h.writeStoreError(w, r, err, "list usage")
		return
	}
	summary := usage.Summarize(endpointID, from, to, rows)

	resources := make([]jsonapi.Resource, 0, len(rows))
	for _, row := range rows {
		resources = append(resources, usageResource(row))
	}

	jsonapi.WriteCollection(w, http.StatusOK, resources, jsonapi.Meta{
		"summary": map[string]any{
			"from":           summary.From,
			"to":             summary.To,
			"days":           summary.Days,
			"relays":         summary.Relays,
			"avg_latency_ms": summary.AvgLatencyMs,
			"error_rate":     summary.ErrorRate,
		},
	})
}

func usageResource(a usage.DailyAggregate) jsonapi.Resource {
	return jsonapi.NewResource(typeUsageDaily, a.EndpointID+":"+a.Day).
		Attr("day", a.Day).
		Attr("relays", a.Relays).
		Attr("avg_latency_ms", a.AvgLatencyMs).
		Attr("error_rate", a.ErrorRate).
		Attr("updated_at", a.UpdatedAt).
		BelongsTo("endpoint", typeEndpoint, a.EndpointID).
		Build()
}
