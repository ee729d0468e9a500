package errors

import (
	"errors"
	"fmt"

	"roombook/pkg/model"
)

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrUnavailable means an active booking already occupies part of the
	// requested interval.
	ErrUnavailable = errors.New("room is not available for the requested dates")

	ErrInvalidInterval = errors.New("invalid booking interval")

	ErrInvalidTransition = errors.New("invalid booking status transition")

	// ErrStatusChanged is returned by a compare-and-set status write whose
	// expected status no longer matches the stored one.
	ErrStatusChanged = errors.New("booking status changed concurrently")

	ErrCancelWindowClosed = errors.New("cancellation window has closed")

	ErrModifyWindowClosed = errors.New("modification window has closed")

	ErrNotOwner = errors.New("booking belongs to another user")
)

type InvalidIntervalError struct {
	Reason string
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidInterval, e.Reason)
}

func (e *InvalidIntervalError) Is(target error) bool {
	return target == ErrInvalidInterval
}

type InvalidTransitionError struct {
	From model.BookingStatus
	To   model.BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change booking status from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ExternalSyncError reports a failed side effect towards a collaborator. It is
// logged and never undoes the transition that triggered it.
type ExternalSyncError struct {
	Target    string
	BookingID string
	Err       error
}

func (e *ExternalSyncError) Error() string {
	return fmt.Sprintf("sync %s for booking %s: %v", e.Target, e.BookingID, e.Err)
}

func (e *ExternalSyncError) Unwrap() error {
	return e.Err
}
