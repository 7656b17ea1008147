package adapter

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when no usable delegated credential exists.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNotFound is returned when a remote object or folder is absent.
	ErrNotFound = errors.New("resource not found")

	// ErrPermission is returned when the remote store denies access.
	ErrPermission = errors.New("permission denied")

	// ErrQuota is returned when the remote store's rate or storage quota is exhausted.
	ErrQuota = errors.New("quota exceeded")

	// ErrMalformedInput is returned before any remote call when required identifiers are missing.
	ErrMalformedInput = errors.New("malformed input")
)

// RemoteError carries the remote store's own diagnostic for a failed call.
// Operators need the verbatim message to fix sharing and quota problems.
type RemoteError struct {
	Op         string
	StatusCode int
	Reason     string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *RemoteError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: HTTP %d (%s): %s", e.Op, e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Malformed returns an ErrMalformedInput naming the missing field.
func Malformed(field string) error {
	return fmt.Errorf("%w: %s is required", ErrMalformedInput, field)
}
