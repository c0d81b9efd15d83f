package api

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/herald-mesh/herald/internal/apperr"
)

// SignPayload handles POST /api/sign.
//
//	@Summary		Sign a payload with a node's custodied private key
//	@Tags			ledger
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SignRequest	true	"Payload to sign"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/sign [post]
func (h *Handler) SignPayload(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	signature, err := h.custodian.Sign(req.NodeID, []byte(req.Data))
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNodeUnknown):
			writeJSON(w, http.StatusNotFound, errorBody("node not registered"))
		case errors.Is(err, apperr.ErrNoSigningKey):
			writeJSON(w, http.StatusBadRequest, errorBody("no signing key held for this node"))
		default:
			slog.Error("sign failed", slog.String("node_id", req.NodeID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":      req.Data,
		"signature": base64.StdEncoding.EncodeToString(signature),
		"node_id":   req.NodeID,
	})
}

// VerifySignature handles POST /api/verify.
//
//	@Summary		Verify a signature against a node's public key
//	@Tags			ledger
//	@Accept			json
//	@Produce		json
//	@Param			body	body		VerifyRequest	true	"Signature to verify"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/verify [post]
func (h *Handler) VerifySignature(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	// An undecodable signature cannot be valid; answer false rather than
	// rejecting the request.
	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "node_id": req.NodeID})
		return
	}

	valid, err := h.custodian.Verify(req.NodeID, []byte(req.Data), signature)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("node not registered"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid, "node_id": req.NodeID})
}

// AppendLedger handles POST /api/ledger/append.
//
//	@Summary		Append an entry to the ledger
//	@Tags			ledger
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AppendLedgerRequest	true	"Entry to commit"
//	@Success		201		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Router			/ledger/append [post]
func (h *Handler) AppendLedger(w http.ResponseWriter, r *http.Request) {
	var req AppendLedgerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	var signature []byte
	if req.Signature != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Signature)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("signature must be base64"))
			return
		}
		signature = decoded
	}

	entry, err := h.ledger.Append(req.Data, req.NodeID, signature)
	if err != nil {
		slog.Error("ledger append failed", slog.String("node_id", req.NodeID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"entry_id":     entry.ID,
		"block_height": entry.BlockHeight,
		"verified":     entry.Verified,
		"data_hash":    entry.DataHash,
	})
}

// ListLedger handles GET /api/ledger.
//
//	@Summary		List ledger entries, oldest first
//	@Tags			ledger
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{object}	map[string]any
//	@Router			/ledger [get]
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	entries, total := h.ledger.List(limit, offset)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetLedgerEntry handles GET /api/ledger/{id}.
//
//	@Summary		Get a single ledger entry
//	@Tags			ledger
//	@Produce		json
//	@Param			id	path		string	true	"Entry id"
//	@Success		200	{object}	LedgerEntry
//	@Failure		404	{object}	errResponse
//	@Router			/ledger/{id} [get]
func (h *Handler) GetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.ledger.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("entry not found"))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// VerifyLedgerChain handles GET /api/ledger/verify.
//
//	@Summary		Walk the full chain and report the first break
//	@Tags			ledger
//	@Produce		json
//	@Success		200	{object}	ChainReport
//	@Router			/ledger/verify [get]
func (h *Handler) VerifyLedgerChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ledger.VerifyChain())
}
