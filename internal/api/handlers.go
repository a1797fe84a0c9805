package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/FocuswithJustin/hwpxreport/core/errors"
	"github.com/FocuswithJustin/hwpxreport/internal/logging"
)

// Version is reported by the root and health endpoints.
var Version = "0.1.0"

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Templates int    `json:"templates"`
}

// Error codes produced by the HTTP layer itself rather than the domain.
const (
	codeNotFound         = "NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeInvalidRequest   = "INVALID_REQUEST"
	codeUnsupportedMedia = "UNSUPPORTED_MEDIA_TYPE"
)

var endpoints = []string{
	"GET /health",
	"POST /v1/jobs",
	"GET /v1/jobs/:id",
	"GET /v1/jobs/:id/download",
	"GET /v1/templates",
	"POST /v1/templates",
	"GET /v1/templates/:id",
	"DELETE /v1/templates/:id",
	"GET /v1/styles",
	"GET /v1/guide",
	"GET /v1/prompt",
	"POST /v1/prompt",
	"POST /v1/markup",
	"POST /v1/markup/source",
	"WS /v1/events",
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, codeNotFound, "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"name":      "HWPX Report API",
		"version":   Version,
		"endpoints": endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "Only GET is allowed")
		return
	}

	tpls, err := s.templates.List(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}

	respond(w, http.StatusOK, HealthInfo{
		Status:    "healthy",
		Version:   Version,
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
		Templates: len(tpls),
	})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindValidation, errors.KindTemplate, errors.KindParse:
		return http.StatusBadRequest
	case errors.KindTemplateNotFound, errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindExpired:
		return http.StatusGone
	case errors.KindNotReady, errors.KindConflict:
		return http.StatusConflict
	case errors.KindEngine, errors.KindEngineTimeout:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondErr writes a domain error. The message never includes storage paths.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := errors.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"code", string(kind),
			"error", err)
	}
	respondError(w, status, string(kind), errors.PublicMessage(err))
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	respondMeta(w, status, data, &APIMeta{})
}

func respondMeta(w http.ResponseWriter, status int, data interface{}, meta *APIMeta) {
	meta.Timestamp = time.Now().UTC().Format(time.RFC3339)
	response := APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	response := APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: &APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}
