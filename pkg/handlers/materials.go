package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/services"
)

// MaterialListResponse for GET /api/materials
type MaterialListResponse struct {
	Materials []*models.Material `json:"materials"`
	Total     int                `json:"total"`
}

// MaterialHandler handles raw material HTTP requests.
type MaterialHandler struct {
	materialService services.MaterialService
	logger          *zap.Logger
}

// NewMaterialHandler creates a new material handler.
func NewMaterialHandler(materialService services.MaterialService, logger *zap.Logger) *MaterialHandler {
	return &MaterialHandler{
		materialService: materialService,
		logger:          logger,
	}
}

// RegisterRoutes registers the material handler's routes on the given mux.
func (h *MaterialHandler) RegisterRoutes(mux *http.ServeMux, withConn ConnectionMiddleware) {
	mux.HandleFunc("POST /api/materials", withConn(h.Create))
	mux.HandleFunc("GET /api/materials", withConn(h.List))
	mux.HandleFunc("GET /api/materials/{mid}", withConn(h.Get))
	mux.HandleFunc("GET /api/materials/lookup", withConn(h.Lookup))
}

// Create handles POST /api/materials
func (h *MaterialHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateMaterialRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	m, err := h.materialService.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err, "create material", h.logger, zap.String("reference_code", req.ReferenceCode))
		return
	}
	writeData(w, http.StatusCreated, m, h.logger)
}

// List handles GET /api/materials?active=true&limit=&offset=
func (h *MaterialHandler) List(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePagination(w, r, h.logger)
	if !ok {
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	materials, err := h.materialService.List(r.Context(), activeOnly, page.Limit, page.Offset)
	if err != nil {
		writeServiceError(w, err, "list materials", h.logger)
		return
	}
	writeData(w, http.StatusOK, MaterialListResponse{Materials: materials, Total: len(materials)}, h.logger)
}

// Get handles GET /api/materials/{mid}
func (h *MaterialHandler) Get(w http.ResponseWriter, r *http.Request) {
	materialID, ok := ParseMaterialID(w, r, h.logger)
	if !ok {
		return
	}

	m, err := h.materialService.Get(r.Context(), materialID)
	if err != nil {
		writeServiceError(w, err, "get material", h.logger, zap.String("material_id", materialID.String()))
		return
	}
	writeData(w, http.StatusOK, m, h.logger)
}

// Lookup handles GET /api/materials/lookup?reference_code=
func (h *MaterialHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("reference_code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing_reference_code", "Query parameter reference_code is required", h.logger)
		return
	}

	m, err := h.materialService.GetByReferenceCode(r.Context(), code)
	if err != nil {
		writeServiceError(w, err, "get material", h.logger, zap.String("reference_code", code))
		return
	}
	writeData(w, http.StatusOK, m, h.logger)
}
