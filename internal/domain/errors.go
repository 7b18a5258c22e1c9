package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrContextRequired is returned when a caller context was not supplied.
	ErrContextRequired = errors.New("caller context is required")

	// ErrInvalidArgument covers missing refs, non-positive ids and nil payloads.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRemoteOperation marks transport failures that survived retries.
	ErrRemoteOperation = errors.New("remote operation failed")

	// ErrNotFound is returned by handles when a row does not exist.
	ErrNotFound = errors.New("record not found")
)

// RemoteOperationError wraps the final transport error of a list operation.
// StatusCode is set when the transport reported an HTTP status.
type RemoteOperationError struct {
	Op         string
	Collection CollectionRef
	StatusCode int
	Err        error
}

func (e *RemoteOperationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %q: status %d: %v", e.Op, e.Collection, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Collection, e.Err)
}

// Unwrap exposes the transport error.
func (e *RemoteOperationError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrRemoteOperation.
func (e *RemoteOperationError) Is(target error) bool {
	return target == ErrRemoteOperation
}

// NormalizationWarning describes a field dropped during normalization.
// It is logged, never returned.
type NormalizationWarning struct {
	Field  string
	Reason string
	Value  any
}

func (w NormalizationWarning) String() string {
	return fmt.Sprintf("field %s dropped: %s", w.Field, w.Reason)
}
