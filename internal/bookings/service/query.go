package service

import (
	"context"
	"sync"

	"roombook/internal/lock"
	"roombook/internal/queue"
	"roombook/pkg/config"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"
)

func (s *bookingService) GetByID(ctx context.Context, actor Actor, id string) (*model.Booking, error) {
	return s.load(ctx, actor, id)
}

func (s *bookingService) ListForUser(ctx context.Context, userID int64, limit int, offset int64) ([]*model.Booking, int64, error) {
	if userID <= 0 {
		return nil, 0, apperrors.Unauthorized("User identity is required")
	}
	return s.find(ctx, model.BookingFilter{UserID: &userID}, limit, offset)
}

func (s *bookingService) List(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, apperrors.InvalidInput("Unknown booking status: " + string(*filter.Status))
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, apperrors.InvalidInput("'to' must not be before 'from'")
	}
	return s.find(ctx, filter, limit, offset)
}

// Pending lists bookings still awaiting confirmation that were created within
// the pending list window.
func (s *bookingService) Pending(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	status := model.StatusPending
	since := s.clock.Now().Add(-s.cfg.PendingListWindow)
	return s.find(ctx, model.BookingFilter{Status: &status, CreatedAfter: &since}, limit, offset)
}

// Stats covers every booking plus the monthly series of the last year.
func (s *bookingService) Stats(ctx context.Context) (*model.BookingStats, error) {
	stats, err := s.repo.Stats(ctx, s.clock.Now().AddDate(-1, 0, 0))
	if err != nil {
		return nil, s.mapError(err, "Failed to compute booking statistics")
	}
	return stats, nil
}

func (s *bookingService) NotifyGuest(ctx context.Context, actor Actor, id string, req *model.NotifyRequest) error {
	if err := s.validator.ValidateNotify(req); err != nil {
		return s.validationError("Invalid notification", err)
	}

	b, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.notifier.Notice(ctx, b, *req); err != nil {
		s.log.Error("Failed to send guest notification", "id", id, "error", err)
		return apperrors.Unavailable("Notification service")
	}
	s.log.Info("Guest notified", "id", id, "actor", actor.Name(), "type", req.Type)
	return nil
}

// LockStatus reports who holds the lock on an interval and how many requests
// wait behind it.
func (s *bookingService) LockStatus(ctx context.Context, roomID int64, checkIn, checkOut string) (*LockStatus, error) {
	if roomID <= 0 {
		return nil, apperrors.InvalidInput("roomId must be a positive integer")
	}
	in, errIn := model.ParseDate(checkIn)
	out, errOut := model.ParseDate(checkOut)
	if errIn != nil || errOut != nil {
		return nil, apperrors.InvalidInput("checkIn and checkOut must be dates (YYYY-MM-DD)")
	}
	iv := model.Interval{RoomID: roomID, CheckIn: in, CheckOut: out}

	st, err := s.locks.Status(ctx, lock.Key(iv))
	if err != nil {
		return nil, s.mapError(err, "Failed to read lock status")
	}

	res := &LockStatus{Status: st}
	if s.queue != nil {
		n, err := s.queue.Length(ctx, iv)
		if err != nil {
			s.log.Warn("Failed to read queue length", "queue", queue.Key(iv), "error", err)
		}
		res.QueueLength = n
	}
	return res, nil
}

// find runs the page query and the count side by side.
func (s *bookingService) find(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.Count(ctx, filter)
		if err != nil {
			errCount = s.mapError(err, "Failed to count bookings")
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		bookings, err = s.repo.Find(ctx, filter, limit, offset)
		if err != nil {
			errFind = s.mapError(err, "Failed to retrieve bookings")
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}
