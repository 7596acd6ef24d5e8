// Package errs holds the error taxonomy shared by the chat core and its HTTP surface.
package errs

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput covers empty usernames, empty messages and missing passwords.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized covers bad admin passwords and missing, unknown or expired tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStorageFailure marks any failure of the persistence collaborator.
	ErrStorageFailure = errors.New("storage failure")
)

// HTTPStatus maps an error from the taxonomy to a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
