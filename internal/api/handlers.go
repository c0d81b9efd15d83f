package api

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/herald-mesh/herald/internal/apperr"
	"github.com/herald-mesh/herald/internal/keys"
	"github.com/herald-mesh/herald/internal/ledger"
	"github.com/herald-mesh/herald/internal/nodes"
	"github.com/herald-mesh/herald/internal/pipeline"
	"github.com/herald-mesh/herald/internal/schema"
	"github.com/herald-mesh/herald/internal/telemetry"
)

// ClientCounter reports how many live event-stream subscribers are
// connected. The SSE broker satisfies it.
type ClientCounter interface {
	ClientCount() int
}

// Deps bundles the stores the API serves. Sink is nil when telemetry
// forwarding is disabled; Events is nil when no event stream is served.
type Deps struct {
	Directory *nodes.Directory
	Custodian *keys.Custodian
	Ledger    *ledger.Store
	Schemas   *schema.Registry
	Telemetry *telemetry.Store
	Pipeline  *pipeline.Orchestrator
	History   *pipeline.History
	Sink      *telemetry.HTTPSink
	Events    ClientCounter
}

// Handler holds API route handlers.
type Handler struct {
	directory *nodes.Directory
	custodian *keys.Custodian
	ledger    *ledger.Store
	schemas   *schema.Registry
	telemetry *telemetry.Store
	pipeline  *pipeline.Orchestrator
	history   *pipeline.History
	sink      *telemetry.HTTPSink
	events    ClientCounter
	startedAt time.Time
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		directory: d.Directory,
		custodian: d.Custodian,
		ledger:    d.Ledger,
		schemas:   d.Schemas,
		telemetry: d.Telemetry,
		pipeline:  d.Pipeline,
		history:   d.History,
		sink:      d.Sink,
		events:    d.Events,
		startedAt: time.Now(),
	}
}

// queryInt parses an integer query parameter, falling back to def when
// absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// RegisterNode handles POST /api/nodes/register.
//
//	@Summary		Register a node and provision its key material
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RegisterNodeRequest	true	"Node to register"
//	@Success		201		{object}	RegisterNodeResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/nodes/register [post]
func (h *Handler) RegisterNode(w http.ResponseWriter, r *http.Request) {
	var req RegisterNodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	var pub []byte
	if req.PublicKey != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.PublicKey)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("public_key must be base64"))
			return
		}
		pub = decoded
	}

	pair, err := h.custodian.Register(req.NodeID, pub)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrAlreadyExists):
			writeJSON(w, http.StatusConflict, errorBody("node already registered"))
		case errors.Is(err, apperr.ErrInvalidKeyMaterial):
			writeJSON(w, http.StatusBadRequest, errorBody("public_key must be a 32-byte ed25519 key"))
		default:
			slog.Error("register keys failed", slog.String("node_id", req.NodeID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	publicKey := base64.StdEncoding.EncodeToString(pair.PublicKey)
	node, err := h.directory.Register(nodes.Node{
		ID:            req.NodeID,
		Type:          req.NodeType,
		Capabilities:  req.Capabilities,
		Endpoint:      req.Endpoint,
		PublicKey:     publicKey,
		HasSigningKey: pair.CanSign(),
	})
	if err != nil {
		writeJSON(w, http.StatusConflict, errorBody("node already registered"))
		return
	}

	h.telemetry.Emit(r.Context(), "node_registered", node.ID, map[string]any{
		"node_type":    node.Type,
		"capabilities": node.Capabilities,
	})

	resp := RegisterNodeResponse{
		NodeID:    node.ID,
		Status:    "registered",
		PublicKey: publicKey,
	}
	// The private key crosses the wire exactly once, at registration.
	if pair.CanSign() {
		resp.PrivateKey = base64.StdEncoding.EncodeToString(pair.PrivateKey)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListNodes handles GET /api/nodes.
//
//	@Summary		List registered nodes in registration order
//	@Tags			nodes
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Router			/nodes [get]
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	items := h.directory.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": items,
		"total": len(items),
	})
}

// GetNode handles GET /api/nodes/{id}.
//
//	@Summary		Get a single node by id
//	@Tags			nodes
//	@Produce		json
//	@Param			id	path		string	true	"Node id"
//	@Success		200	{object}	NodeDetail
//	@Failure		404	{object}	errResponse
//	@Router			/nodes/{id} [get]
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.directory.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("node not found"))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// SetNodeStatus handles PATCH /api/nodes/{id}/status.
//
//	@Summary		Update a node's status, its only mutable field
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Node id"
//	@Param			body	body		SetNodeStatusRequest	true	"New status"
//	@Success		200		{object}	NodeDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/nodes/{id}/status [patch]
func (h *Handler) SetNodeStatus(w http.ResponseWriter, r *http.Request) {
	var req SetNodeStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	node, err := h.directory.SetStatus(chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("node not found"))
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// RoutingTable handles GET /api/routing.
//
//	@Summary		Get the capability to node-ids routing table
//	@Tags			nodes
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Router			/routing [get]
func (h *Handler) RoutingTable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"routing_table": h.directory.Routing(),
	})
}

// SendMessage handles POST /api/messages/send.
//
//	@Summary		Submit a message to the routing pipeline
//	@Tags			messages
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SendMessageRequest	true	"Message to route"
//	@Success		200		{object}	MessageSummary
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/messages/send [post]
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	entry, err := h.pipeline.Submit(r.Context(), pipeline.Message{
		From:   req.Message.FromNode,
		To:     req.Message.ToNode,
		Type:   req.Message.MessageType,
		Data:   req.Message.Data,
		Schema: req.Message.Schema,
	}, req.TransformSchema, req.Commit())
	if err != nil {
		if errors.Is(err, apperr.ErrNodeUnknown) {
			writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
		} else {
			slog.Error("send message failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	// Failed runs still answer 200; the summary carries status and error.
	writeJSON(w, http.StatusOK, entry.Summary())
}

// ListMessages handles GET /api/messages.
//
//	@Summary		List pipeline runs with optional node filtering
//	@Tags			messages
//	@Produce		json
//	@Param			limit	query		int		false	"Max entries, most recent first"
//	@Param			node_id	query		string	false	"Only runs sent or received by this node"
//	@Success		200		{object}	map[string]any
//	@Router			/messages [get]
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	items, total := h.history.List(limit, r.URL.Query().Get("node_id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": items,
		"total":    total,
	})
}

// GetMessage handles GET /api/messages/{id}.
//
//	@Summary		Get the full record of one pipeline run
//	@Tags			messages
//	@Produce		json
//	@Param			id	path		string	true	"Message id"
//	@Success		200	{object}	MessageDetail
//	@Failure		404	{object}	errResponse
//	@Router			/messages/{id} [get]
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	entry, err := h.history.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("message not found"))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
