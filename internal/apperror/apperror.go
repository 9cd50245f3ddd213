// Package apperror defines the error kinds shared by every layer.
//
// Services return these, handlers translate them to HTTP status codes
// (see handler.writeError). Callers test the kind with errors.Is against the
// sentinels and read the human message with errors.As into *AppError.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRemote means Slack answered but said ok:false.
	ErrRemote = errors.New("remote error")
	// ErrTransport means we never got a usable answer from Slack
	// (network failure, non-200 status, undecodable body).
	ErrTransport = errors.New("transport error")
	// ErrInvalidSchedule means a schedule time is not strictly in the future.
	ErrInvalidSchedule = errors.New("invalid schedule time")
)

type AppError struct {
	Err     error  // sentinel kind, possibly joined with a cause
	Message string // human-readable error message
	Field   string // optional: field causing the error
	Code    string // optional: machine code forwarded to clients (Slack's error string)
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized means there is no usable session for the caller.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Remote wraps a Slack ok:false answer. code is Slack's own error string
// (e.g. "channel_not_found", "invalid_code") and is what clients see.
func Remote(op, code string) *AppError {
	return &AppError{
		Err:     ErrRemote,
		Message: fmt.Sprintf("slack %s failed: %s", op, code),
		Code:    code,
	}
}

// Transport wraps a failure to reach Slack. The cause stays in the chain for
// logs; handlers only ever show a generic message for this kind.
func Transport(op string, cause error) *AppError {
	return &AppError{
		Err:     errors.Join(ErrTransport, cause),
		Message: fmt.Sprintf("slack %s: request failed", op),
	}
}

// InvalidScheduleTime rejects a post time that is not after now.
func InvalidScheduleTime(at time.Time) *AppError {
	return &AppError{
		Err:     ErrInvalidSchedule,
		Message: fmt.Sprintf("schedule time %s must be in the future", at.UTC().Format(time.RFC3339)),
		Field:   "post_at",
	}
}

// CodeOf returns the Slack error code carried by err, or "" when err is not
// a remote error.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
