package api

import (
	"net/http"
	"time"
)

// PostTelemetry handles POST /api/telemetry.
//
//	@Summary		Record a custom telemetry event
//	@Tags			telemetry
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TelemetryEventRequest	true	"Event to record"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Router			/telemetry [post]
func (h *Handler) PostTelemetry(w http.ResponseWriter, r *http.Request) {
	var req TelemetryEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	event := h.telemetry.Emit(r.Context(), req.EventType, req.NodeID, req.Data)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "logged",
		"event_id": event.ID,
	})
}

// ListTelemetry handles GET /api/telemetry.
//
//	@Summary		List recent telemetry events, oldest first
//	@Tags			telemetry
//	@Produce		json
//	@Param			limit	query		int	false	"Max events, most recent"
//	@Success		200		{object}	map[string]any
//	@Router			/telemetry [get]
func (h *Handler) ListTelemetry(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	writeJSON(w, http.StatusOK, map[string]any{
		"telemetry": h.telemetry.List(limit),
		"total":     h.telemetry.Len(),
	})
}

// sinkState reports the telemetry forwarder's health for the status page.
func (h *Handler) sinkState() string {
	if h.sink == nil {
		return "in-memory"
	}
	switch h.sink.State() {
	case "closed":
		return "healthy"
	case "half-open":
		return "degraded"
	default:
		return "unreachable"
	}
}

// Status handles GET /api/status.
//
//	@Summary		Report component health and processing counts
//	@Tags			ops
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.events != nil {
		clients = h.events.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gateway": "healthy",
		"components": map[string]string{
			"directory": "healthy",
			"ledger":    "healthy",
			"schemas":   "healthy",
			"telemetry": h.sinkState(),
		},
		"registered_nodes":   h.directory.Len(),
		"messages_processed": h.history.Len(),
		"connected_clients":  clients,
		"uptime_seconds":     int(time.Since(h.startedAt).Seconds()),
	})
}

// Metrics handles GET /api/metrics.
//
//	@Summary		Report service counters
//	@Tags			ops
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Router			/metrics [get]
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	completed, failed := h.history.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_nodes":             h.directory.Len(),
		"total_messages":          h.history.Len(),
		"successful_messages":     completed,
		"failed_messages":         failed,
		"routing_capabilities":    len(h.directory.Routing()),
		"total_ledger_entries":    h.ledger.Height(),
		"verified_ledger_entries": h.ledger.VerifiedCount(),
		"total_schemas":           h.schemas.Len(),
		"total_telemetry_events":  h.telemetry.Len(),
		"uptime_seconds":          int(time.Since(h.startedAt).Seconds()),
		"service":                 "herald",
	})
}
