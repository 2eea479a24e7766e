package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/composition"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/services"
)

// CalculateCompositeRequest is the body of the calculate and preview endpoints.
type CalculateCompositeRequest struct {
	AnalysisIDs []uuid.UUID `json:"analysis_ids,omitempty"`
	Notes       *string     `json:"notes,omitempty"`
}

// CreateCompositeRequest is the body of POST /api/materials/{mid}/composites.
type CreateCompositeRequest struct {
	Origin     string                  `json:"origin,omitempty"`
	Components []composition.ManualRow `json:"components"`
	Notes      *string                 `json:"notes,omitempty"`
}

// CompositeListResponse for GET /api/materials/{mid}/composites
type CompositeListResponse struct {
	Composites []*models.Composite `json:"composites"`
	Total      int                 `json:"total"`
}

// CompositeHistoryResponse for GET /api/materials/{mid}/composites/history
type CompositeHistoryResponse struct {
	Versions []*services.HistoryEntry `json:"versions"`
	Total    int                      `json:"total"`
}

// CompositeHandler handles composite creation, listing and comparison.
type CompositeHandler struct {
	compositeService services.CompositeService
	logger           *zap.Logger
}

// NewCompositeHandler creates a new composite handler.
func NewCompositeHandler(compositeService services.CompositeService, logger *zap.Logger) *CompositeHandler {
	return &CompositeHandler{
		compositeService: compositeService,
		logger:           logger,
	}
}

// RegisterRoutes registers the composite handler's routes on the given mux.
func (h *CompositeHandler) RegisterRoutes(mux *http.ServeMux, withConn ConnectionMiddleware) {
	mux.HandleFunc("POST /api/materials/{mid}/composites/calculate", withConn(h.Calculate))
	mux.HandleFunc("POST /api/materials/{mid}/composites/preview", withConn(h.Preview))
	mux.HandleFunc("POST /api/materials/{mid}/composites", withConn(h.Create))
	mux.HandleFunc("GET /api/materials/{mid}/composites", withConn(h.List))
	mux.HandleFunc("GET /api/materials/{mid}/composites/history", withConn(h.History))
	mux.HandleFunc("GET /api/materials/{mid}/composites/current", withConn(h.Current))
	mux.HandleFunc("GET /api/composites/compare", withConn(h.Compare))
	mux.HandleFunc("GET /api/composites/{cid}", withConn(h.Get))
	mux.HandleFunc("DELETE /api/composites/{cid}", withConn(h.Delete))
}

// Calculate handles POST /api/materials/{mid}/composites/calculate
func (h *CompositeHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	h.aggregate(w, r, false)
}

// Preview handles POST /api/materials/{mid}/composites/preview
func (h *CompositeHandler) Preview(w http.ResponseWriter, r *http.Request) {
	h.aggregate(w, r, true)
}

func (h *CompositeHandler) aggregate(w http.ResponseWriter, r *http.Request, preview bool) {
	materialID, ok := ParseMaterialID(w, r, h.logger)
	if !ok {
		return
	}

	var body CalculateCompositeRequest
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}
	req := &services.CalculateRequest{
		MaterialID:  materialID,
		AnalysisIDs: body.AnalysisIDs,
		Notes:       body.Notes,
	}

	if preview {
		c, err := h.compositeService.Preview(r.Context(), req)
		if err != nil {
			writeServiceError(w, err, "preview composite", h.logger, zap.String("material_id", materialID.String()))
			return
		}
		writeData(w, http.StatusOK, c, h.logger)
		return
	}

	c, err := h.compositeService.Calculate(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "calculate composite", h.logger, zap.String("material_id", materialID.String()))
		return
	}
	writeData(w, http.StatusCreated, c, h.logger)
}

// Create handles POST /api/materials/{mid}/composites for manual entry.
func (h *CompositeHandler) Create(w http.ResponseWriter, r *http.Request) {
	materialID, ok := ParseMaterialID(w, r, h.logger)
	if !ok {
		return
	}

	var body CreateCompositeRequest
	if !decodeJSON(w, r, &body, h.logger) {
		return
	}

	c, err := h.compositeService.CreateManual(r.Context(), &services.ManualRequest{
		MaterialID: materialID,
		Origin:     models.CompositeOrigin(body.Origin),
		Components: body.Components,
		Notes:      body.Notes,
	})
	if err != nil {
		writeServiceError(w, err, "create composite", h.logger, zap.String("material_id", materialID.String()))
		return
	}
	writeData(w, http.StatusCreated, c, h.logger)
}

// List handles GET /api/materials/{mid}/composites?status=&limit=&offset=
func (h *CompositeHandler) List(w http.ResponseWriter, r *http.Request) {
	materialID, ok := ParseMaterialID(w, r, h.logger)
	if !ok {
		return
	}
	page, ok := parsePagination(w, r, h.logger)
	if !ok {
		return
	}

	filters := models.CompositeFilters{Limit: page.Limit, Offset: page.Offset}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, valid := models.ParseCompositeStatus(raw)
		if !valid {
			writeError(w, http.StatusBadRequest, "invalid_status", "Unknown composite status: "+raw, h.logger)
			return
		}
		filters.Status = &status
	}

	composites, err := h.compositeService.List(r.Context(), materialID, filters)
	if err != nil {
		writeServiceError(w, err, "list composites", h.logger, zap.String("material_id", materialID.String()))
		return
	}
	writeData(w, http.StatusOK, CompositeListResponse{Composites: composites, Total: len(composites)}, h.logger)
}

// History handles GET /api/materials/{mid}/composites/history
func (h *CompositeHandler) History(w http.ResponseWriter, r *http.Request) {
	materialID, ok := ParseMaterialID(w, r, h.logger)
	if !ok {
		return
	}

	entries, err := h.compositeService.History(r.Context(), materialID)
	if err != nil {
		writeServiceError(w, err, "get composite history", h.logger, zap.String("material_id", materialID.String()))
		return
	}
	writeData(w, http.StatusOK, CompositeHistoryResponse{Versions: entries, Total: len(entries)}, h.logger)
}

// Current handles GET /api/materials/{mid}/composites/current
func (h *CompositeHandler) Current(w http.ResponseWriter, r *http.Request) {
	materialID, ok := ParseMaterialID(w, r, h.logger)
	if !ok {
		return
	}

	c, err := h.compositeService.CurrentApproved(r.Context(), materialID)
	if err != nil {
		writeServiceError(w, err, "get current composite", h.logger, zap.String("material_id", materialID.String()))
		return
	}
	writeData(w, http.StatusOK, c, h.logger)
}

// Get handles GET /api/composites/{cid}
func (h *CompositeHandler) Get(w http.ResponseWriter, r *http.Request) {
	compositeID, ok := ParseCompositeID(w, r, h.logger)
	if !ok {
		return
	}

	c, err := h.compositeService.Get(r.Context(), compositeID)
	if err != nil {
		writeServiceError(w, err, "get composite", h.logger, zap.String("composite_id", compositeID.String()))
		return
	}
	writeData(w, http.StatusOK, c, h.logger)
}

// Delete handles DELETE /api/composites/{cid}
func (h *CompositeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	compositeID, ok := ParseCompositeID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.compositeService.Delete(r.Context(), compositeID); err != nil {
		writeServiceError(w, err, "delete composite", h.logger, zap.String("composite_id", compositeID.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Compare handles GET /api/composites/compare?old=&new=
func (h *CompositeHandler) Compare(w http.ResponseWriter, r *http.Request) {
	oldID, ok := parseQueryUUID(w, r, "old", h.logger)
	if !ok {
		return
	}
	newID, ok := parseQueryUUID(w, r, "new", h.logger)
	if !ok {
		return
	}

	comparison, err := h.compositeService.Compare(r.Context(), oldID, newID)
	if err != nil {
		writeServiceError(w, err, "compare composites", h.logger,
			zap.String("old_id", oldID.String()),
			zap.String("new_id", newID.String()))
		return
	}
	writeData(w, http.StatusOK, comparison, h.logger)
}
