package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(h *Handler, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	// Node directory.
	r.Post("/nodes/register", h.RegisterNode)
	r.Get("/nodes", h.ListNodes)
	r.Get("/nodes/{id}", h.GetNode)
	r.Patch("/nodes/{id}/status", h.SetNodeStatus)
	r.Get("/routing", h.RoutingTable)

	// Message pipeline.
	r.Post("/messages/send", h.SendMessage)
	r.Get("/messages", h.ListMessages)
	r.Get("/messages/{id}", h.GetMessage)

	// Signatures and ledger.
	r.Post("/sign", h.SignPayload)
	r.Post("/verify", h.VerifySignature)
	r.Post("/ledger/append", h.AppendLedger)
	r.Get("/ledger", h.ListLedger)
	r.Get("/ledger/verify", h.VerifyLedgerChain)
	r.Get("/ledger/{id}", h.GetLedgerEntry)

	// Schema transforms.
	r.Post("/schemas/register", h.RegisterSchema)
	r.Get("/schemas/mappings", h.ListSchemas)
	r.Post("/transform", h.Transform)

	// Telemetry and ops.
	r.Post("/telemetry", h.PostTelemetry)
	r.Get("/telemetry", h.ListTelemetry)
	r.Get("/status", h.Status)
	r.Get("/metrics", h.Metrics)

	// SSE endpoint.
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
