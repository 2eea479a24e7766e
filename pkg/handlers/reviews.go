package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/services"
)

// CleanupResponse for POST /api/reviews/cleanup
type CleanupResponse struct {
	RetentionDays int `json:"retention_days"`
	Deleted       int `json:"deleted"`
}

// ReviewHandler triggers periodic reviews and draft cleanup on demand.
type ReviewHandler struct {
	reviewService        services.ReviewService
	defaultRetentionDays int
	logger               *zap.Logger
}

// NewReviewHandler creates a new review handler. defaultRetentionDays is used
// when a cleanup request does not name its own retention.
func NewReviewHandler(reviewService services.ReviewService, defaultRetentionDays int, logger *zap.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviewService:        reviewService,
		defaultRetentionDays: defaultRetentionDays,
		logger:               logger,
	}
}

// RegisterRoutes registers the review handler's routes on the given mux.
// Reviews acquire their own connections, so only the single-material review
// is wrapped with the connection middleware.
func (h *ReviewHandler) RegisterRoutes(mux *http.ServeMux, withConn ConnectionMiddleware) {
	mux.HandleFunc("POST /api/reviews/materials/{mid}", withConn(h.ReviewMaterial))
	mux.HandleFunc("POST /api/reviews/run", h.RunDue)
	mux.HandleFunc("POST /api/reviews/cleanup", h.Cleanup)
}

// ReviewMaterial handles POST /api/reviews/materials/{mid}
func (h *ReviewHandler) ReviewMaterial(w http.ResponseWriter, r *http.Request) {
	materialID, ok := ParseMaterialID(w, r, h.logger)
	if !ok {
		return
	}

	outcome, err := h.reviewService.ReviewMaterial(r.Context(), materialID)
	if err != nil {
		writeServiceError(w, err, "review material", h.logger, zap.String("material_id", materialID.String()))
		return
	}
	writeData(w, http.StatusOK, outcome, h.logger)
}

// RunDue handles POST /api/reviews/run
func (h *ReviewHandler) RunDue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reviewService.ReviewDue(r.Context())
	if err != nil {
		writeServiceError(w, err, "run reviews", h.logger)
		return
	}
	writeData(w, http.StatusOK, summary, h.logger)
}

// Cleanup handles POST /api/reviews/cleanup?retention_days=
func (h *ReviewHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	days := h.defaultRetentionDays
	if raw := r.URL.Query().Get("retention_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_retention_days", "retention_days must be an integer", h.logger)
			return
		}
		days = n
	}

	deleted, err := h.reviewService.CleanupStaleDrafts(r.Context(), days)
	if err != nil {
		writeServiceError(w, err, "clean up drafts", h.logger, zap.Int("retention_days", days))
		return
	}
	writeData(w, http.StatusOK, CleanupResponse{RetentionDays: days, Deleted: deleted}, h.logger)
}
