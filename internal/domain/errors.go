package domain

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound            = errors.New("page not found")
	ErrAlreadyPersonalized = errors.New("page already personalized")
	ErrValidation          = errors.New("validation failed")
	ErrProtected           = errors.New("page is protected")
	ErrInvalidPin          = errors.New("invalid pin")
	ErrTooManyAttempts     = errors.New("too many pin attempts")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrCollaborator        = errors.New("processing failed")
	ErrCodeSpaceExhausted  = errors.New("unable to allocate a unique code")
)

// ErrorKind names the class of err for API clients, with its HTTP status.
func ErrorKind(err error) (string, int) {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, ErrAlreadyPersonalized):
		return "already_personalized", http.StatusBadRequest
	case errors.Is(err, ErrValidation):
		return "validation", http.StatusBadRequest
	case errors.Is(err, ErrProtected):
		return "protected", http.StatusForbidden
	case errors.Is(err, ErrInvalidPin):
		return "invalid_pin", http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized", http.StatusUnauthorized
	case errors.Is(err, ErrTooManyAttempts):
		return "too_many_attempts", http.StatusTooManyRequests
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable", http.StatusInternalServerError
	case errors.Is(err, ErrCollaborator):
		return "collaborator_failure", http.StatusInternalServerError
	default:
		return "internal", http.StatusInternalServerError
	}
}
