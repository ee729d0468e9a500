package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "roombook/internal/bookings/errors"
	"roombook/internal/lock"
	"roombook/internal/notify"
	"roombook/internal/queue"
	"roombook/pkg/client"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"
	"roombook/pkg/sanitizer"

	"github.com/google/uuid"
)

// Create books a room for userID. The availability check and the insert run
// under the interval's lock; a contended request either fails with a retry
// hint or, when req.Wait is set, joins the interval's queue.
func (s *bookingService) Create(ctx context.Context, userID int64, req *model.BookingRequest) (*CreateResult, error) {
	if userID <= 0 {
		return nil, apperrors.Unauthorized("User identity is required")
	}

	s.sanitize(req)
	if err := s.validator.ValidateRequest(req); err != nil {
		s.log.Warn("Booking validation failed", "user_id", userID, "room_id", req.RoomID, "error", err)
		return nil, s.validationError("Booking validation failed", err)
	}

	iv, err := s.interval(req.RoomID, req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, s.mapError(err, "Invalid booking interval")
	}

	// Resolve the guest before taking the lock so an unknown user never
	// contends for the room.
	trust, err := s.trustLevel(ctx, userID)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	booking, err := s.createLocked(ctx, userID, req, iv, trust, requestID)

	var contention *lock.ContentionError
	if errors.As(err, &contention) && req.Wait && s.queue != nil {
		return s.enqueue(ctx, userID, req, iv, requestID)
	}
	if err != nil {
		s.log.Info("Booking not created",
			"request_id", requestID,
			"user_id", userID,
			"interval", iv.String(),
			"error", err,
		)
		return nil, s.mapError(err, "Failed to create booking")
	}

	s.afterCreate(ctx, booking)
	return &CreateResult{Booking: booking}, nil
}

// createLocked runs the availability check and insert while holding the
// interval's lock. Each request is its own holder so that parallel requests
// from one user still exclude each other.
func (s *bookingService) createLocked(ctx context.Context, userID int64, req *model.BookingRequest, iv model.Interval, trust model.TrustLevel, requestID string) (*model.Booking, error) {
	var booking *model.Booking
	err := s.locks.WithLock(ctx, lock.Key(iv), "req:"+requestID, s.cfg.LockTTL, func(ctx context.Context) error {
		var err error
		booking, err = s.book(ctx, userID, req, iv, trust)
		return err
	})
	return booking, err
}

func (s *bookingService) book(ctx context.Context, userID int64, req *model.BookingRequest, iv model.Interval, trust model.TrustLevel) (*model.Booking, error) {
	room, err := s.room(ctx, iv.RoomID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindOverlapping(ctx, iv, model.ActiveStatuses, "")
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	if len(existing) > 0 {
		return nil, bookingserrors.ErrUnavailable
	}

	now := s.clock.Now()
	status, payment := initialStatus(req, trust)

	booking := &model.Booking{
		ID:              uuid.NewString(),
		UserID:          userID,
		RoomID:          iv.RoomID,
		CheckIn:         iv.CheckIn,
		CheckOut:        iv.CheckOut,
		Guests:          req.Guests,
		SpecialRequests: req.SpecialRequests,
		Status:          status,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   payment,
		TotalPrice:      float64(room.Price) * float64(iv.Nights()),
		AutoConfirm:     req.AutoConfirm,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusUpdatedAt: &now,
		StatusUpdatedBy: model.ActorSystem,
	}

	if err := s.repo.Persist(ctx, booking); err != nil {
		return nil, err
	}

	s.log.Info("Booking created successfully",
		"id", booking.ID,
		"user_id", userID,
		"room_id", booking.RoomID,
		"check_in", model.FormatDate(booking.CheckIn),
		"check_out", model.FormatDate(booking.CheckOut),
		"status", booking.Status,
		"total_price", booking.TotalPrice,
	)
	return booking, nil
}

// initialStatus applies the creation policy: cash, an explicit auto-confirm or
// a high-trust guest skip the pending state.
func initialStatus(req *model.BookingRequest, trust model.TrustLevel) (model.BookingStatus, model.PaymentStatus) {
	if req.PaymentMethod == model.PaymentCash || req.AutoConfirm || trust == model.TrustHigh {
		return model.StatusConfirmed, model.PaymentPaid
	}
	return model.StatusPending, model.PaymentPending
}

func (s *bookingService) enqueue(ctx context.Context, userID int64, req *model.BookingRequest, iv model.Interval, requestID string) (*CreateResult, error) {
	entry := queue.Entry{
		RequestID:   requestID,
		RequesterID: userID,
		Request:     req,
		Interval:    iv,
	}

	res, position, err := s.queue.Submit(ctx, entry, s.cfg.QueueWaitTimeout)
	switch {
	case errors.Is(err, queue.ErrResultTimeout):
		return &CreateResult{Queued: true, RequestID: requestID, Position: position}, nil
	case err != nil:
		if ctx.Err() != nil {
			return nil, apperrors.Timeout("Request cancelled while waiting in queue")
		}
		s.log.Error("Failed to queue booking request", "request_id", requestID, "error", err)
		return nil, apperrors.Unavailable("Booking queue")
	}

	if err := res.Err(); err != nil {
		return nil, err
	}
	// Side effects already ran in the queue worker.
	return &CreateResult{Booking: res.Booking}, nil
}

// processQueued is the queue's processor. A ContentionError is returned as-is
// so the queue can requeue the entry; other failures become AppErrors for the
// waiting caller.
func (s *bookingService) processQueued(ctx context.Context, entry queue.Entry) (*model.Booking, error) {
	if entry.Request == nil {
		return nil, apperrors.InvalidInput("Queued request has no payload")
	}

	trust, err := s.trustLevel(ctx, entry.RequesterID)
	if err != nil {
		return nil, err
	}
	booking, err := s.createLocked(ctx, entry.RequesterID, entry.Request, entry.Interval, trust, entry.RequestID)
	if err != nil {
		var contention *lock.ContentionError
		if errors.As(err, &contention) {
			return nil, err
		}
		return nil, s.mapError(err, "Failed to create queued booking")
	}

	s.afterCreate(ctx, booking)
	return booking, nil
}

// afterCreate runs the side effects of a new booking. The creation policy
// confirms every auto-confirm request outright, so the timer branch only
// fires for bookings rescheduled by RestoreAutoConfirms.
func (s *bookingService) afterCreate(ctx context.Context, b *model.Booking) {
	ctx = context.WithoutCancel(ctx)

	if b.Status == model.StatusPending && b.AutoConfirm {
		s.autoConfirm.Schedule(b.ID, s.cfg.AutoConfirmDelay)
	}
	s.syncRoom(ctx, b)
	s.announce(ctx, b, notify.EventCreated)
}

func (s *bookingService) room(ctx context.Context, id int64) (*model.Room, error) {
	room, err := s.rooms.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return nil, apperrors.NotFound(fmt.Sprintf("Room %d", id))
		}
		s.log.Error("Room lookup failed", "room_id", id, "error", err)
		return nil, apperrors.Unavailable("Room service")
	}
	return room, nil
}

// trustLevel looks the guest up in the user directory. An unknown user is
// rejected; when the directory cannot answer the guest is treated as low
// trust and simply starts out pending.
func (s *bookingService) trustLevel(ctx context.Context, userID int64) (model.TrustLevel, error) {
	if s.users == nil {
		return model.TrustLow, nil
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return "", apperrors.NotFound("User")
		}
		s.log.Warn("User lookup failed, assuming low trust", "user_id", userID, "error", err)
		return model.TrustLow, nil
	}
	return user.TrustLevel, nil
}

// interval parses and checks a requested stay.
func (s *bookingService) interval(roomID int64, checkIn, checkOut string) (model.Interval, error) {
	in, err := model.ParseDate(checkIn)
	if err != nil {
		return model.Interval{}, &bookingserrors.InvalidIntervalError{Reason: "check-in date is invalid"}
	}
	out, err := model.ParseDate(checkOut)
	if err != nil {
		return model.Interval{}, &bookingserrors.InvalidIntervalError{Reason: "check-out date is invalid"}
	}

	iv := model.Interval{RoomID: roomID, CheckIn: in, CheckOut: out}
	return iv, s.checkInterval(iv)
}

func (s *bookingService) checkInterval(iv model.Interval) error {
	today := s.clock.Now().UTC().Truncate(24 * time.Hour)
	switch {
	case !iv.Valid():
		return &bookingserrors.InvalidIntervalError{Reason: "check-out must be after check-in"}
	case iv.CheckIn.Before(today):
		return &bookingserrors.InvalidIntervalError{Reason: "check-in cannot be in the past"}
	case s.cfg.MaxStayNights > 0 && iv.Nights() > s.cfg.MaxStayNights:
		return &bookingserrors.InvalidIntervalError{Reason: fmt.Sprintf("stay cannot exceed %d nights", s.cfg.MaxStayNights)}
	}
	return nil
}

func (s *bookingService) sanitize(req *model.BookingRequest) {
	req.SpecialRequests = sanitizer.SanitizeText(req.SpecialRequests)
	if req.PaymentMethod == "" {
		req.PaymentMethod = model.PaymentCash
	}
}
