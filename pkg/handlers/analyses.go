package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/extraction"
	"github.com/ekaya-inc/ekaya-composites/pkg/models"
	"github.com/ekaya-inc/ekaya-composites/pkg/services"
)

const uploadField = "file"

// AnalysisListResponse for GET /api/materials/{mid}/analyses
type AnalysisListResponse struct {
	Analyses []*models.Analysis `json:"analyses"`
	Total    int                `json:"total"`
}

// AnalysisHandler handles analysis uploads and queries.
type AnalysisHandler struct {
	analysisService services.AnalysisService
	inspectOptions  extraction.Options
	maxUploadBytes  int64
	logger          *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler. inspectOptions configures
// the dry-run inspection endpoint and should match the ingest configuration.
func NewAnalysisHandler(
	analysisService services.AnalysisService,
	inspectOptions extraction.Options,
	maxUploadBytes int64,
	logger *zap.Logger,
) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: analysisService,
		inspectOptions:  inspectOptions,
		maxUploadBytes:  maxUploadBytes,
		logger:          logger,
	}
}

// RegisterRoutes registers the analysis handler's routes on the given mux.
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux, withConn ConnectionMiddleware) {
	mux.HandleFunc("POST /api/materials/{mid}/analyses", withConn(h.Upload))
	mux.HandleFunc("GET /api/materials/{mid}/analyses", withConn(h.List))
	mux.HandleFunc("GET /api/analyses/{aid}", withConn(h.Get))
	mux.HandleFunc("DELETE /api/analyses/{aid}", withConn(h.Delete))
	mux.HandleFunc("POST /api/analyses/inspect", h.Inspect)
}

// Upload handles POST /api/materials/{mid}/analyses (multipart/form-data).
// Form fields: file (required), batch_number, supplier, lab_technician,
// analysis_date (YYYY-MM-DD), weight, notes.
func (h *AnalysisHandler) Upload(w http.ResponseWriter, r *http.Request) {
	materialID, ok := ParseMaterialID(w, r, h.logger)
	if !ok {
		return
	}

	file, header, ok := h.openUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	req := &services.IngestRequest{
		MaterialID:    materialID,
		Filename:      header.Filename,
		BatchNumber:   formValue(r, "batch_number"),
		Supplier:      formValue(r, "supplier"),
		LabTechnician: formValue(r, "lab_technician"),
		Notes:         formValue(r, "notes"),
	}
	if raw := formValue(r, "analysis_date"); raw != nil {
		date, err := time.Parse(time.DateOnly, *raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_analysis_date", "analysis_date must be YYYY-MM-DD", h.logger)
			return
		}
		req.AnalysisDate = &date
	}
	if raw := formValue(r, "weight"); raw != nil {
		weight, err := strconv.ParseFloat(*raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_weight", "weight must be a number", h.logger)
			return
		}
		req.Weight = &weight
	}

	result, err := h.analysisService.Ingest(r.Context(), req, file)
	if err != nil {
		writeServiceError(w, err, "ingest analysis", h.logger,
			zap.String("material_id", materialID.String()),
			zap.String("filename", header.Filename))
		return
	}
	writeData(w, http.StatusCreated, result, h.logger)
}

// Inspect handles POST /api/analyses/inspect. It reports how a file would be
// read without storing anything.
func (h *AnalysisHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	file, _, ok := h.openUpload(w, r)
	if !ok {
		return
	}
	defer file.Close()

	inspection, err := extraction.Inspect(file, h.inspectOptions)
	if err != nil {
		writeServiceError(w, err, "inspect file", h.logger)
		return
	}
	writeData(w, http.StatusOK, inspection, h.logger)
}

// List handles GET /api/materials/{mid}/analyses
func (h *AnalysisHandler) List(w http.ResponseWriter, r *http.Request) {
	materialID, ok := ParseMaterialID(w, r, h.logger)
	if !ok {
		return
	}

	analyses, err := h.analysisService.ListByMaterial(r.Context(), materialID)
	if err != nil {
		writeServiceError(w, err, "list analyses", h.logger, zap.String("material_id", materialID.String()))
		return
	}
	writeData(w, http.StatusOK, AnalysisListResponse{Analyses: analyses, Total: len(analyses)}, h.logger)
}

// Get handles GET /api/analyses/{aid}
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	analysisID, ok := ParseAnalysisID(w, r, h.logger)
	if !ok {
		return
	}

	a, err := h.analysisService.Get(r.Context(), analysisID)
	if err != nil {
		writeServiceError(w, err, "get analysis", h.logger, zap.String("analysis_id", analysisID.String()))
		return
	}
	writeData(w, http.StatusOK, a, h.logger)
}

// Delete handles DELETE /api/analyses/{aid}
func (h *AnalysisHandler) Delete(w http.ResponseWriter, r *http.Request) {
	analysisID, ok := ParseAnalysisID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.analysisService.Delete(r.Context(), analysisID); err != nil {
		writeServiceError(w, err, "delete analysis", h.logger, zap.String("analysis_id", analysisID.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// openUpload limits the request size and returns the uploaded file part.
func (h *AnalysisHandler) openUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large",
				"Upload exceeds "+strconv.FormatInt(h.maxUploadBytes, 10)+" bytes", h.logger)
			return nil, nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid_upload", "Expected a multipart/form-data upload", h.logger)
		return nil, nil, false
	}

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "Form field \"file\" is required", h.logger)
		return nil, nil, false
	}
	return file, header, true
}

// formValue returns the trimmed form value, or nil when it is absent or blank.
func formValue(r *http.Request, name string) *string {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return nil
	}
	return &v
}
