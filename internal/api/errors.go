package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/newsdesk/internal/auth"
	"github.com/nerrad567/newsdesk/internal/content"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeServiceError maps an auth or content error onto a status code.
// Only the public message of an auth error reaches the client; anything
// unrecognised is logged and reported as an internal error.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrAccountInactive),
		errors.Is(err, auth.ErrSessionNotFound),
		errors.Is(err, auth.ErrSessionExpired):
		writeUnauthorized(w, auth.PublicMessage(err))
	case errors.Is(err, auth.ErrPermissionDenied):
		writeForbidden(w, auth.PublicMessage(err))
	case errors.Is(err, auth.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, ErrCodeConflict, auth.PublicMessage(err))
	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, auth.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, auth.PublicMessage(err))
	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, auth.PublicMessage(err))
	case errors.Is(err, auth.ErrLoginCancelled):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, auth.PublicMessage(err))
	case errors.Is(err, content.ErrNotFound), errors.Is(err, content.ErrUnknownKind):
		writeNotFound(w, err.Error())
	case errors.Is(err, content.ErrNotShareable), errors.Is(err, content.ErrTitleRequired):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, "internal error")
	}
}
