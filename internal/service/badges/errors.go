package badges

import (
	"errors"
	"fmt"
)

// Errors surfaced by the badge engine. ErrMetricUnavailable and
// ErrConcurrentAwardConflict are absorbed internally and never returned to callers.
var (
	ErrSubjectNotFound         = errors.New("subject not found")
	ErrInvalidSubjectType      = errors.New("invalid subject type")
	ErrMetricUnavailable       = errors.New("metric unavailable")
	ErrConcurrentAwardConflict = errors.New("award already activated by a concurrent evaluation")
	ErrNoActiveAward           = errors.New("no active award")
	ErrAwardNotFound           = errors.New("award not found")
)

// StorageError wraps a persistence or connectivity failure. Callers may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the operation may succeed if repeated.
func (e *StorageError) Retryable() bool {
	return true
}

// NewStorageError wraps err, or returns nil when err is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
