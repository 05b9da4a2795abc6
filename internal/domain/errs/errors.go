// Package errs holds the sentinel errors shared across the dashboard service.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input data is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned when access is not authorized
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBackendUnavailable is returned when the backend could not be reached or failed internally.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBackendRejected is returned when the backend refused a request, e.g. a constraint violation.
	ErrBackendRejected = errors.New("backend rejected request")

	// ErrSubscriptionDropped is returned when a push channel was closed by the remote side.
	ErrSubscriptionDropped = errors.New("subscription dropped")

	// ErrClosed is returned when an operation is attempted on a released component.
	ErrClosed = errors.New("closed")
)

// Unavailable classifies err as ErrBackendUnavailable unless it already carries a backend error class.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrBackendRejected) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
