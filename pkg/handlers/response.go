package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-blueprint/pkg/agents"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-blueprint/pkg/logging"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// StatusForError maps a service error to an HTTP status and error code.
// Validation and ordering failures are client errors, lost updates are
// conflicts, and agent failures and anything unrecognised are server errors.
func StatusForError(err error) (int, string) {
	var (
		validation   *apperrors.ValidationError
		precondition *apperrors.PreconditionError
		notReady     *apperrors.NotReadyError
		agentErr     *agents.AgentError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "validation_error"
	case errors.As(err, &precondition):
		return http.StatusBadRequest, "precondition_failed"
	case errors.As(err, &notReady):
		return http.StatusBadRequest, "not_ready"
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusBadRequest, "invalid_credentials"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.As(err, &agentErr):
		return http.StatusInternalServerError, "agent_" + string(agentErr.Cause)
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// WriteServiceError writes err using StatusForError. resource names the
// entity in not-found and conflict messages. Internal causes are logged,
// never returned to the client.
func WriteServiceError(w http.ResponseWriter, err error, resource string, logger *zap.Logger) {
	status, code := StatusForError(err)
	if writeErr := ErrorResponse(w, status, code, errorMessage(err, resource)); writeErr != nil {
		logger.Error("Failed to write error response", zap.Error(writeErr))
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("error_code", code),
			zap.String("error", logging.SanitizeError(err)))
	}
}

func errorMessage(err error, resource string) string {
	var (
		validation   *apperrors.ValidationError
		precondition *apperrors.PreconditionError
		notReady     *apperrors.NotReadyError
		agentErr     *agents.AgentError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &precondition):
		return capitalize(precondition.Missing) + "."
	case errors.As(err, &notReady):
		return "Blueprint is not ready. Please run all agents first."
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return "Invalid credentials."
	case errors.Is(err, apperrors.ErrNotFound):
		return capitalize(resource) + " not found."
	case errors.Is(err, apperrors.ErrConflict):
		return fmt.Sprintf("%s was modified by another request. Please retry.", capitalize(resource))
	case errors.As(err, &agentErr):
		return fmt.Sprintf("The %s agent failed: %s.", agentErr.Stage, agentErr.Cause)
	default:
		return "Internal server error."
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
