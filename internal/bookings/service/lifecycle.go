package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "roombook/internal/bookings/errors"
	"roombook/internal/lock"
	"roombook/internal/notify"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"
	"roombook/pkg/sanitizer"
)

const (
	noteAutoConfirmed = "Auto-confirmed after delay"
	noteConfirmed     = "Manually confirmed by admin"
	noteCancelled     = "Booking cancelled"
	noteAdminCancel   = "Cancelled by admin"
	noteCompleted     = "Check-out completed"
	noteExpired       = "Expired - no confirmation within time limit"

	// backgroundTimeout bounds work started by timers rather than requests.
	backgroundTimeout = 30 * time.Second
)

// transitions lists the allowed status moves. cancelled and completed are
// terminal.
var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.StatusPending:   {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusCancelled, model.StatusCompleted},
}

func canTransition(from, to model.BookingStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *bookingService) Cancel(ctx context.Context, actor Actor, id string, reason string) (*model.Booking, error) {
	b, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if !canTransition(b.Status, model.StatusCancelled) {
		return nil, s.mapError(&bookingserrors.InvalidTransitionError{From: b.Status, To: model.StatusCancelled}, "")
	}
	if !actor.Admin && !s.clock.Now().Before(b.CheckIn.Add(-s.cfg.CancelWindow)) {
		return nil, s.mapError(bookingserrors.ErrCancelWindowClosed, "")
	}

	note := sanitizer.SanitizeNote(reason)
	if note == "" {
		note = noteCancelled
		if actor.Admin {
			note = noteAdminCancel
		}
	}

	updated, err := s.transition(ctx, b, model.StatusCancelled, "", actor.Name(), note)
	if err != nil {
		return nil, s.mapError(err, "Failed to cancel booking")
	}
	return updated, nil
}

func (s *bookingService) Confirm(ctx context.Context, actor Actor, id string, note string) (*model.Booking, error) {
	b, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if note = sanitizer.SanitizeNote(note); note == "" {
		note = noteConfirmed
	}

	updated, err := s.transition(ctx, b, model.StatusConfirmed, model.PaymentPaid, actor.Name(), note)
	if err != nil {
		return nil, s.mapError(err, "Failed to confirm booking")
	}
	return updated, nil
}

func (s *bookingService) Complete(ctx context.Context, actor Actor, id string) (*model.Booking, error) {
	return s.complete(ctx, actor, id, noteCompleted)
}

func (s *bookingService) complete(ctx context.Context, actor Actor, id, note string) (*model.Booking, error) {
	b, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, b, model.StatusCompleted, "", actor.Name(), note)
	if err != nil {
		return nil, s.mapError(err, "Failed to complete booking")
	}
	return updated, nil
}

// UpdateStatus is the admin entry point for arbitrary moves. It routes to the
// dedicated operation so every guard still applies.
func (s *bookingService) UpdateStatus(ctx context.Context, actor Actor, id string, req *model.StatusUpdateRequest) (*model.Booking, error) {
	if err := s.validator.ValidateStatusUpdate(req); err != nil {
		return nil, s.validationError("Invalid status update", err)
	}

	switch req.Status {
	case model.StatusConfirmed:
		return s.Confirm(ctx, actor, id, req.Note)
	case model.StatusCancelled:
		return s.Cancel(ctx, actor, id, req.Note)
	case model.StatusCompleted:
		note := sanitizer.SanitizeNote(req.Note)
		if note == "" {
			note = noteCompleted
		}
		return s.complete(ctx, actor, id, note)
	}

	b, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return nil, s.mapError(&bookingserrors.InvalidTransitionError{From: b.Status, To: req.Status}, "")
}

// transition writes b's new status with a compare-and-set on its current one,
// then runs the side effects. Side effects never undo the write.
func (s *bookingService) transition(ctx context.Context, b *model.Booking, to model.BookingStatus, payment model.PaymentStatus, actor, note string) (*model.Booking, error) {
	if !canTransition(b.Status, to) {
		return nil, &bookingserrors.InvalidTransitionError{From: b.Status, To: to}
	}

	updated, err := s.repo.UpdateStatus(ctx, b.ID, b.Status, model.StatusChange{
		To:            to,
		PaymentStatus: payment,
		Actor:         actor,
		Note:          note,
		At:            s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	if b.Status == model.StatusPending {
		s.autoConfirm.Cancel(b.ID)
	}

	s.log.Info("Booking status changed",
		"id", b.ID,
		"from", b.Status,
		"to", to,
		"actor", actor,
	)

	ctx = context.WithoutCancel(ctx)
	s.syncRoom(ctx, updated)
	s.announce(ctx, updated, notify.EventFor(to))
	return updated, nil
}

// Modify changes dates, guest count or requests. New dates are locked and
// rechecked like a create, ignoring the booking itself, and the price is
// recomputed.
func (s *bookingService) Modify(ctx context.Context, actor Actor, id string, mod *model.BookingModification) (*model.Booking, error) {
	if mod == nil {
		return nil, apperrors.InvalidInput("Modification payload is required")
	}
	if err := s.validator.ValidateModification(mod); err != nil {
		return nil, s.validationError("Invalid booking modification", err)
	}

	b, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !b.Status.IsActive() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Cannot modify a %s booking", b.Status))
	}
	if !s.clock.Now().Before(b.CheckIn.Add(-s.cfg.ModifyWindow)) {
		return nil, s.mapError(bookingserrors.ErrModifyWindowClosed, "")
	}

	checkIn, checkOut := model.FormatDate(b.CheckIn), model.FormatDate(b.CheckOut)
	if mod.CheckIn != nil {
		checkIn = *mod.CheckIn
	}
	if mod.CheckOut != nil {
		checkOut = *mod.CheckOut
	}
	iv, err := s.interval(b.RoomID, checkIn, checkOut)
	if err != nil {
		return nil, s.mapError(err, "Invalid booking interval")
	}

	change := model.DetailsChange{
		CheckIn:         iv.CheckIn,
		CheckOut:        iv.CheckOut,
		Guests:          b.Guests,
		SpecialRequests: b.SpecialRequests,
		TotalPrice:      b.TotalPrice,
	}
	if mod.Guests != nil {
		change.Guests = *mod.Guests
	}
	if mod.SpecialRequests != nil {
		change.SpecialRequests = sanitizer.SanitizeText(*mod.SpecialRequests)
	}

	var updated *model.Booking
	if iv.CheckIn.Equal(b.CheckIn) && iv.CheckOut.Equal(b.CheckOut) {
		change.At = s.clock.Now()
		updated, err = s.repo.UpdateDetails(ctx, b.ID, b.Status, change)
	} else {
		err = s.locks.WithLock(ctx, lock.Key(iv), "mod:"+b.ID, s.cfg.LockTTL, func(ctx context.Context) error {
			room, err := s.room(ctx, b.RoomID)
			if err != nil {
				return err
			}
			clash, err := s.repo.FindOverlapping(ctx, iv, model.ActiveStatuses, b.ID)
			if err != nil {
				return fmt.Errorf("check availability: %w", err)
			}
			if len(clash) > 0 {
				return bookingserrors.ErrUnavailable
			}

			change.TotalPrice = float64(room.Price) * float64(iv.Nights())
			change.At = s.clock.Now()
			updated, err = s.repo.UpdateDetails(ctx, b.ID, b.Status, change)
			return err
		})
	}
	if err != nil {
		return nil, s.mapError(err, "Failed to modify booking")
	}

	s.log.Info("Booking modified",
		"id", b.ID,
		"check_in", model.FormatDate(updated.CheckIn),
		"check_out", model.FormatDate(updated.CheckOut),
		"total_price", updated.TotalPrice,
	)
	s.announce(context.WithoutCancel(ctx), updated, notify.EventModified)
	return updated, nil
}

// fireAutoConfirm runs when an auto-confirm timer elapses. Anything that moved
// the booking out of pending in the meantime wins.
func (s *bookingService) fireAutoConfirm(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.log.Warn("Auto-confirm skipped, booking unreadable", "id", id, "error", err)
		return
	}
	if b.Status != model.StatusPending {
		s.log.Debug("Auto-confirm skipped", "id", id, "status", b.Status)
		return
	}

	if _, err := s.transition(ctx, b, model.StatusConfirmed, model.PaymentPaid, model.ActorSystem, noteAutoConfirmed); err != nil {
		if errors.Is(err, bookingserrors.ErrStatusChanged) {
			return
		}
		s.log.Error("Auto-confirm failed", "id", id, "error", err)
	}
}

func (s *bookingService) RestoreAutoConfirms(ctx context.Context) (int, error) {
	pending, err := s.repo.FindPendingAutoConfirm(ctx)
	if err != nil {
		return 0, s.mapError(err, "Failed to load pending auto-confirm bookings")
	}

	now := s.clock.Now()
	for _, b := range pending {
		s.autoConfirm.Schedule(b.ID, b.CreatedAt.Add(s.cfg.AutoConfirmDelay).Sub(now))
	}
	if len(pending) > 0 {
		s.log.Info("Auto-confirm timers restored", "count", len(pending))
	}
	return len(pending), nil
}

// ExpirePending cancels pending bookings that nobody confirmed in time. A
// booking another instance already moved is skipped.
func (s *bookingService) ExpirePending(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.cfg.PendingExpiry)
	stale, err := s.repo.FindExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, s.mapError(err, "Failed to load expired bookings")
	}

	expired := 0
	for _, b := range stale {
		if _, err := s.transition(ctx, b, model.StatusCancelled, "", model.ActorSystem, noteExpired); err != nil {
			if !errors.Is(err, bookingserrors.ErrStatusChanged) {
				s.log.Error("Failed to expire booking", "id", b.ID, "error", err)
			}
			continue
		}
		expired++
	}
	if expired > 0 {
		s.log.Info("Expired pending bookings", "count", expired, "cutoff", cutoff)
	}
	return expired, nil
}

func (s *bookingService) syncRoom(ctx context.Context, b *model.Booking) {
	status, ok := model.RoomStatusAfter(b.Status)
	if !ok {
		return
	}
	if err := s.rooms.SetStatus(ctx, b.RoomID, status); err != nil {
		s.log.Warn("Room status sync failed", "error", &bookingserrors.ExternalSyncError{Target: "room-status", BookingID: b.ID, Err: err})
	}
}

func (s *bookingService) announce(ctx context.Context, b *model.Booking, event notify.Event) {
	if err := s.notifier.Notify(ctx, b, event); err != nil {
		s.log.Warn("Booking notification failed", "error", &bookingserrors.ExternalSyncError{Target: "notification", BookingID: b.ID, Err: err})
	}
}
