package requests

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/arbiter/internal/evidence"
	"github.com/JaimeStill/arbiter/internal/executor"
	"github.com/JaimeStill/arbiter/internal/workflow"
)

var (
	ErrInvalidBody  = errors.New("invalid request body")
	ErrBodyTooLarge = errors.New("request body too large")
	ErrInvalidID    = errors.New("invalid request id")
)

// MapHTTPStatus maps workflow and collaborator errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidBody),
		errors.Is(err, ErrInvalidID),
		errors.Is(err, workflow.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrLeaseHeld):
		return http.StatusLocked
	case errors.Is(err, evidence.ErrSchemaViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, executor.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, executor.ErrExecution):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
