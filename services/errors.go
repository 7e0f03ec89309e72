package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/rhetorio/backend/repository"
)

// ErrorKind is the stable machine-readable error classification surfaced to
// clients alongside a human-readable message.
type ErrorKind string

const (
	KindValidation            ErrorKind = "validation_error"
	KindNotFound              ErrorKind = "not_found"
	KindUnauthorized          ErrorKind = "unauthorized"
	KindForbidden             ErrorKind = "forbidden"
	KindInvalidTransition     ErrorKind = "invalid_transition"
	KindSessionExpired        ErrorKind = "session_expired"
	KindConflict              ErrorKind = "conflict"
	KindGenerationUnavailable ErrorKind = "generation_unavailable"
	KindInternal              ErrorKind = "internal_error"
)

// AppError pairs a classification with a client-safe message. The wrapped
// cause stays in logs and never reaches the client.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Status maps the error kind to an HTTP status code.
func (e *AppError) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidTransition, KindSessionExpired:
		return http.StatusConflict
	case KindConflict:
		return http.StatusConflict
	case KindGenerationUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Kind: KindNotFound, Message: message}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message}
}

// NewInvalidTransitionError names the attempted event and the current state.
func NewInvalidTransitionError(event, status string) *AppError {
	return &AppError{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot %s a session in status %q", event, status),
	}
}

func NewSessionExpiredError() *AppError {
	return &AppError{Kind: KindSessionExpired, Message: "session time limit has elapsed"}
}

func NewConflictError(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

func NewGenerationUnavailableError(err error) *AppError {
	return &AppError{Kind: KindGenerationUnavailable, Message: "AI generation service is unavailable", Err: err}
}

func NewInternalError(err error) *AppError {
	return &AppError{Kind: KindInternal, Message: "an internal error occurred", Err: err}
}

// classifyError translates repository sentinels and unknown errors into the
// client-facing taxonomy.
func classifyError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return NewNotFoundError("resource not found")
	case errors.Is(err, repository.ErrContentLength):
		return NewValidationError(err.Error())
	case errors.Is(err, repository.ErrDuplicateReaction):
		return NewConflictError("you already reacted to this message")
	default:
		return NewInternalError(err)
	}
}

type errorBody struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

// WriteData writes a {success: true, data} envelope.
func WriteData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

// WriteError logs the full error and writes a {success: false, error} envelope.
// Unclassified errors reach the client as a generic message in production;
// structured detail stays in the logs.
func WriteError(w http.ResponseWriter, err error, logArgs ...any) {
	appErr := classifyError(err)

	args := append([]any{"kind", appErr.Kind, "error", err}, logArgs...)
	slog.Error("Request failed", args...)

	message := appErr.Message
	if appErr.Kind == KindInternal && os.Getenv("ENVIRONMENT") == "production" {
		message = "an internal error occurred"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status())
	json.NewEncoder(w).Encode(envelope{Success: false, Error: &errorBody{Kind: appErr.Kind, Message: message}})
}
