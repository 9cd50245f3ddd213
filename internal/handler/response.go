package handler

// RESPONSE HELPERS:
// Every response body is JSON. Errors always have the same shape so the
// dashboard can show them without knowing which endpoint failed:
//
//	{"ok": false, "error": "channel_not_found", "message": "slack chat.postMessage failed: channel_not_found"}
//
// For Slack rejections "error" is Slack's own code. For everything else it
// is one of our kinds (validation_error, unauthorized, ...).

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/slackdash/internal/apperror"
)

// maxBodyBytes bounds request bodies. A max-length message is 40k
// characters, which is at most 160KB of UTF-8.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`           // machine-readable code
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input field, for validation errors
}

// OKResponse is the body of endpoints that only report success.
type OKResponse struct {
	OK bool `json:"ok"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and writes it.
//
// ERROR MAPPING:
//
//	ErrValidation, ErrInvalidSchedule → 400
//	ErrRemote                         → 400, error = Slack's code
//	ErrUnauthorized                   → 401
//	ErrForbidden                      → 403
//	ErrNotFound                       → 404
//	ErrConflict                       → 409
//	ErrTransport, anything else       → 500, generic message
//
// Transport failures and unknown errors are logged here because their
// details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := errorResponse(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, resp)
}

func errorResponse(err error) (int, ErrorResponse) {
	internal := ErrorResponse{
		Error:   "internal_error",
		Message: "Internal Server Error",
	}

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || errors.Is(err, apperror.ErrTransport) {
		return http.StatusInternalServerError, internal
	}

	resp := ErrorResponse{Message: appErr.Message, Field: appErr.Field}
	switch {
	case errors.Is(err, apperror.ErrValidation):
		resp.Error = "validation_error"
		return http.StatusBadRequest, resp
	case errors.Is(err, apperror.ErrInvalidSchedule):
		resp.Error = "invalid_schedule_time"
		return http.StatusBadRequest, resp
	case errors.Is(err, apperror.ErrRemote):
		resp.Error = appErr.Code
		return http.StatusBadRequest, resp
	case errors.Is(err, apperror.ErrUnauthorized):
		resp.Error = "unauthorized"
		return http.StatusUnauthorized, resp
	case errors.Is(err, apperror.ErrForbidden):
		resp.Error = "forbidden"
		return http.StatusForbidden, resp
	case errors.Is(err, apperror.ErrNotFound):
		resp.Error = "not_found"
		return http.StatusNotFound, resp
	case errors.Is(err, apperror.ErrConflict):
		resp.Error = "conflict"
		return http.StatusConflict, resp
	}
	return http.StatusInternalServerError, internal
}

// decodeJSON reads a JSON request body into v. Unknown fields are allowed
// so older dashboards keep working.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("body", "request body too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		default:
			return apperror.ValidationFailed("body", "invalid JSON body")
		}
	}
	return nil
}
