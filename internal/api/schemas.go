package api

import (
	"net/http"

	"github.com/herald-mesh/herald/internal/canonical"
)

// RegisterSchema handles POST /api/schemas/register.
//
//	@Summary		Register a schema mapping
//	@Tags			schemas
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RegisterSchemaRequest	true	"Mapping to register"
//	@Success		201		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Router			/schemas/register [post]
func (h *Handler) RegisterSchema(w http.ResponseWriter, r *http.Request) {
	var req RegisterSchemaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	mapping, err := h.schemas.Register(req.SourceSchema, req.TargetSchema, req.MappingRules)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	h.telemetry.Emit(r.Context(), "schema_registered", "", map[string]any{
		"mapping_id":    mapping.ID,
		"source_schema": mapping.SourceSchema,
		"target_schema": mapping.TargetSchema,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"mapping_id": mapping.ID,
		"status":     "registered",
	})
}

// ListSchemas handles GET /api/schemas/mappings.
//
//	@Summary		List registered schema mappings
//	@Tags			schemas
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Router			/schemas/mappings [get]
func (h *Handler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mappings": h.schemas.List(),
	})
}

// Transform handles POST /api/transform.
//
//	@Summary		Transform a document between schemas
//	@Tags			schemas
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TransformRequest	true	"Document and schema pair"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Router			/transform [post]
func (h *Handler) Transform(w http.ResponseWriter, r *http.Request) {
	var req TransformRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	mapping, ok := h.schemas.Find(req.SourceSchema, req.TargetSchema)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("schema mapping not found"))
		return
	}
	transformed := mapping.Apply(req.Data)

	event := map[string]any{
		"mapping_id":    mapping.ID,
		"source_schema": req.SourceSchema,
		"target_schema": req.TargetSchema,
	}
	if raw, err := canonical.Marshal(req.Data); err == nil {
		event["data_size"] = len(raw)
	}
	h.telemetry.Emit(r.Context(), "data_transformed", "", event)

	writeJSON(w, http.StatusOK, map[string]any{
		"transformed_data": transformed,
		"mapping_id":       mapping.ID,
	})
}
