package lock

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStoreUnavailable means the lock backend could not be reached. Callers
	// must treat it as a hard failure and never proceed without the lock.
	ErrStoreUnavailable = errors.New("lock store unavailable")
	ErrInvalidRequest   = errors.New("invalid lock request")
)

// ContentionError is returned when the key is held by another holder after
// every retry was spent.
type ContentionError struct {
	Key        string
	Holder     string
	RetryAfter time.Duration
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("lock %s held by %s, retry after %s", e.Key, e.Holder, e.RetryAfter)
}

type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.op, e.err)
}

func (e *storeError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.err}
}

func unavailable(op string, err error) error {
	return &storeError{op: op, err: err}
}
