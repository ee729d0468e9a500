package repository

import (
	"context"
	"time"

	"roombook/pkg/model"
)

// BookingRepository is the availability store. Implementations must reject a
// second active booking overlapping an existing one on the same room, even
// when the caller skipped the lock.
type BookingRepository interface {
	// FindOverlapping returns bookings on iv's room in one of statuses whose
	// stay intersects iv. excludeID drops one booking from the result.
	FindOverlapping(ctx context.Context, iv model.Interval, statuses []model.BookingStatus, excludeID string) ([]*model.Booking, error)
	// Persist inserts a new booking. It returns ErrUnavailable when an
	// active overlapping booking exists.
	Persist(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	// UpdateStatus applies change only while the stored status equals from
	// and returns the updated booking. A mismatch yields ErrStatusChanged.
	UpdateStatus(ctx context.Context, id string, from model.BookingStatus, change model.StatusChange) (*model.Booking, error)
	// UpdateDetails rewrites dates, guests and price under the same
	// compare-and-set rule as UpdateStatus.
	UpdateDetails(ctx context.Context, id string, from model.BookingStatus, change model.DetailsChange) (*model.Booking, error)
	// FindExpiredPending returns pending bookings without auto-confirm
	// created before cutoff.
	FindExpiredPending(ctx context.Context, cutoff time.Time) ([]*model.Booking, error)
	// FindPendingAutoConfirm returns pending bookings waiting on auto-confirm.
	FindPendingAutoConfirm(ctx context.Context) ([]*model.Booking, error)
	Find(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, error)
	Count(ctx context.Context, filter model.BookingFilter) (int64, error)
	// Stats aggregates every booking and the monthly series since the given time.
	Stats(ctx context.Context, since time.Time) (*model.BookingStats, error)
	Ping(ctx context.Context) error
}

// withTimeout bounds ctx by timeout without extending an earlier deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func statusStrings(statuses []model.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
