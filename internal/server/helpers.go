package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/risquanter/riskcast/internal/models"
	"github.com/risquanter/riskcast/internal/services/engine"
)

// ErrorResponse is the standard error format for REST API responses.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Details []models.FieldError `json:"details,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message})
}

// WriteServiceError maps a service-layer error onto an HTTP status:
// backpressure to 429, validation failures to 400 with per-field details,
// missing entities to 404, everything else to 500.
func WriteServiceError(w http.ResponseWriter, err error) {
	var verrs *models.ValidationErrors
	switch {
	case errors.Is(err, engine.ErrBusy):
		w.Header().Set("Retry-After", "5")
		WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &verrs):
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: verrs.Errors})
	case strings.Contains(err.Error(), "not found"):
		WriteError(w, http.StatusNotFound, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteError(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// PathParam extracts a path parameter from the URL path.
// For a pattern like /api/trees/{id}/simulate, calling
// PathParam(r, "/api/trees/", "/simulate") extracts the {id} part.
func PathParam(r *http.Request, prefix, suffix string) string {
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := path[len(prefix):]
	if suffix != "" {
		idx := strings.Index(rest, suffix)
		if idx < 0 {
			return rest
		}
		return rest[:idx]
	}
	// No suffix — return up to the next /
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[:idx]
	}
	return rest
}
