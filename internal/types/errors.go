package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a decision references a fingerprint the
// store has never seen. Surfaced to the caller, not retried.
var ErrNotFound = errors.New("proposal not found")

// StoreIOError wraps a failed durable write. Fatal to the run: the
// pipeline must abort rather than proceed with an unconfirmed decision.
type StoreIOError struct {
	Op  string // store operation that failed (e.g. "upsert_seen", "decide")
	Err error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// NewStoreIOError wraps err as a fatal store I/O failure.
func NewStoreIOError(op string, err error) *StoreIOError {
	return &StoreIOError{Op: op, Err: err}
}

// IsStoreIOError reports whether err is (or wraps) a StoreIOError.
func IsStoreIOError(err error) bool {
	var ioErr *StoreIOError
	return errors.As(err, &ioErr)
}
