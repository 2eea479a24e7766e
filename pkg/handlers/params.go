package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseMaterialID extracts and validates the material ID from the request path.
// Returns uuid.Nil and false after writing an error response when invalid.
// Expects path parameter: mid
func ParseMaterialID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "mid", "invalid_material_id", "Invalid material ID format", logger)
}

// ParseCompositeID extracts and validates the composite ID from the request path.
// Expects path parameter: cid
func ParseCompositeID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "cid", "invalid_composite_id", "Invalid composite ID format", logger)
}

// ParseAnalysisID extracts and validates the analysis ID from the request path.
// Expects path parameter: aid
func ParseAnalysisID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "aid", "invalid_analysis_id", "Invalid analysis ID format", logger)
}

func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(pathParam))
	if err != nil {
		writeError(w, http.StatusBadRequest, errorCode, errorMessage, logger)
		return uuid.Nil, false
	}
	return id, true
}

// parseQueryUUID parses a required UUID query parameter.
func parseQueryUUID(w http.ResponseWriter, r *http.Request, name string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.URL.Query().Get(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, "Query parameter "+name+" must be a UUID", logger)
		return uuid.Nil, false
	}
	return id, true
}

// Pagination holds the limit and offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// parsePagination reads limit and offset. Missing values are zero, which the
// repositories turn into their defaults.
func parsePagination(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (Pagination, bool) {
	var p Pagination
	for name, dst := range map[string]*int{"limit": &p.Limit, "offset": &p.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer", logger)
			return Pagination{}, false
		}
		*dst = n
	}
	return p, true
}
