package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	bookingserrors "roombook/internal/bookings/errors"
	"roombook/internal/notify"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/logger"
	"roombook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancel_WindowBoundary(t *testing.T) {
	tests := []struct {
		name      string
		actor     Actor
		untilIn   time.Duration
		wantErr   bool
		wantNote  string
		wantActor string
	}{
		{"user one minute inside the window", User(guestID), 23*time.Hour + 59*time.Minute, true, "", ""},
		{"user exactly at the window", User(guestID), 24 * time.Hour, true, "", ""},
		{"user one minute before the window", User(guestID), 24*time.Hour + time.Minute, false, "Booking cancelled", "user:42"},
		{"admin inside the window", Admin(1), 23*time.Hour + 59*time.Minute, false, "Cancelled by admin", "admin:1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			b := e.seed(model.Booking{
				Status:   model.StatusConfirmed,
				CheckIn:  start.Add(tt.untilIn),
				CheckOut: start.Add(tt.untilIn + 48*time.Hour),
			})

			updated, err := e.svc.Cancel(context.Background(), tt.actor, b.ID, "")
			if tt.wantErr {
				appErr := requireAppError(t, err, apperrors.CodeInvalidInput, http.StatusBadRequest)
				assert.Contains(t, appErr.Message, "24 hours before check-in")
				assert.Equal(t, model.StatusConfirmed, e.repo.Get(b.ID).Status)
				assert.Empty(t, e.sent.Events(b.ID))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, model.StatusCancelled, updated.Status)
			assert.Equal(t, tt.wantNote, updated.AdminNote)
			assert.Equal(t, tt.wantActor, updated.StatusUpdatedBy)
			assert.Equal(t, []roomUpdate{{RoomID: roomID, Status: model.RoomAvailable}}, e.rooms.Updates())
			assert.Equal(t, []notify.Event{notify.EventCancelled}, e.sent.Events(b.ID))
		})
	}
}

func TestCancel_KeepsReason(t *testing.T) {
	e := newEnv(t)
	b := e.seed(model.Booking{Status: model.StatusPending, CheckIn: day("2026-10-25"), CheckOut: day("2026-10-27")})

	updated, err := e.svc.Cancel(context.Background(), User(guestID), b.ID, "  plans   changed ")
	require.NoError(t, err)
	assert.Equal(t, "plans changed", updated.AdminNote)
}

func TestCancel_TerminalStatesAreRejected(t *testing.T) {
	for _, status := range []model.BookingStatus{model.StatusCancelled, model.StatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			e := newEnv(t)
			b := e.seed(model.Booking{Status: status, CheckIn: day("2026-10-25"), CheckOut: day("2026-10-27")})

			// Admins bypass the time guard, never the terminal-state guard.
			_, err := e.svc.Cancel(context.Background(), Admin(1), b.ID, "")
			requireAppError(t, err, apperrors.CodeInvalidInput, http.StatusBadRequest)
			assert.Equal(t, status, e.repo.Get(b.ID).Status)
		})
	}
}

func TestCancel_OtherUsersBookingIsNotFound(t *testing.T) {
	e := newEnv(t)
	b := e.seed(model.Booking{Status: model.StatusConfirmed, CheckIn: day("2026-10-25"), CheckOut: day("2026-10-27")})

	_, err := e.svc.Cancel(context.Background(), User(otherID), b.ID, "")
	requireAppError(t, err, apperrors.CodeNotFound, http.StatusNotFound)

	_, err = e.svc.Cancel(context.Background(), User(guestID), "missing", "")
	requireAppError(t, err, apperrors.CodeNotFound, http.StatusNotFound)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    model.BookingStatus
		to      model.BookingStatus
		wantErr string
		room    model.RoomStatus
	}{
		{"pending to confirmed", model.StatusPending, model.StatusConfirmed, "", model.RoomOccupied},
		{"pending to cancelled", model.StatusPending, model.StatusCancelled, "", model.RoomAvailable},
		{"confirmed to completed", model.StatusConfirmed, model.StatusCompleted, "", model.RoomAvailable},
		{"confirmed to cancelled", model.StatusConfirmed, model.StatusCancelled, "", model.RoomAvailable},
		{"pending to completed", model.StatusPending, model.StatusCompleted, "cannot change booking status from pending to completed", ""},
		{"completed to confirmed", model.StatusCompleted, model.StatusConfirmed, "cannot change booking status from completed to confirmed", ""},
		{"cancelled to confirmed", model.StatusCancelled, model.StatusConfirmed, "cannot change booking status from cancelled to confirmed", ""},
		{"confirmed back to pending", model.StatusConfirmed, model.StatusPending, "cannot change booking status from confirmed to pending", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			b := e.seed(model.Booking{Status: tt.from, CheckIn: day("2026-10-17"), CheckOut: day("2026-10-19")})

			updated, err := e.svc.UpdateStatus(context.Background(), Admin(1), b.ID, &model.StatusUpdateRequest{Status: tt.to})
			if tt.wantErr != "" {
				appErr := requireAppError(t, err, apperrors.CodeInvalidInput, http.StatusBadRequest)
				assert.Equal(t, tt.wantErr, appErr.Message)
				assert.Equal(t, tt.from, e.repo.Get(b.ID).Status)
				assert.Empty(t, e.rooms.Updates())
				assert.Empty(t, e.sent.Events(b.ID))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.to, updated.Status)
			assert.Equal(t, "admin:1", updated.StatusUpdatedBy)
			assert.Equal(t, []roomUpdate{{RoomID: roomID, Status: tt.room}}, e.rooms.Updates())
			assert.Equal(t, []notify.Event{notify.EventFor(tt.to)}, e.sent.Events(b.ID))
		})
	}
}

func TestConfirm_MarksPaid(t *testing.T) {
	e := newEnv(t)
	b := e.seed(model.Booking{Status: model.StatusPending, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")})

	updated, err := e.svc.Confirm(context.Background(), Admin(1), b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, updated.PaymentStatus)
	assert.Equal(t, "Manually confirmed by admin", updated.AdminNote)
	require.NotNil(t, updated.StatusUpdatedAt)
	assert.Equal(t, start, *updated.StatusUpdatedAt)
}

func TestComplete_UsesCheckoutNote(t *testing.T) {
	e := newEnv(t)
	b := e.seed(model.Booking{Status: model.StatusConfirmed, CheckIn: day("2026-10-14"), CheckOut: day("2026-10-16")})

	updated, err := e.svc.Complete(context.Background(), Admin(1), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, updated.Status)
	assert.Equal(t, "Check-out completed", updated.AdminNote)
}

func TestTransition_StaleStatusLosesCompareAndSet(t *testing.T) {
	e := newEnv(t)
	b := e.seed(model.Booking{Status: model.StatusPending, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")})

	// Another writer confirms between our read and our write.
	_, err := e.repo.UpdateStatus(context.Background(), b.ID, model.StatusPending, model.StatusChange{
		To: model.StatusConfirmed, Actor: "admin:2", At: start,
	})
	require.NoError(t, err)

	_, err = e.svc.transition(context.Background(), b, model.StatusCancelled, "", "user:42", "")
	require.ErrorIs(t, err, bookingserrors.ErrStatusChanged)
	requireAppError(t, e.svc.mapError(err, ""), apperrors.CodeConflict, http.StatusConflict)

	stored := e.repo.Get(b.ID)
	assert.Equal(t, model.StatusConfirmed, stored.Status)
	assert.Equal(t, "admin:2", stored.StatusUpdatedBy)
	assert.Empty(t, e.sent.Events(b.ID))
}

func TestTransition_SideEffectFailuresKeepTheTransition(t *testing.T) {
	e := newEnv(t)
	e.rooms.setErr = errors.New("room service down")
	e.sent.FailWith(errors.New("broker down"))
	b := e.seed(model.Booking{Status: model.StatusPending, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")})

	updated, err := e.svc.Confirm(context.Background(), Admin(1), b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, updated.Status)
	assert.Equal(t, model.StatusConfirmed, e.repo.Get(b.ID).Status)
}

func TestAutoConfirm_FiresAfterDelay(t *testing.T) {
	e := newEnv(t)
	b := e.seed(model.Booking{Status: model.StatusPending, AutoConfirm: true, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")})

	n, err := e.svc.RestoreAutoConfirms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, e.svc.autoConfirm.Pending())

	e.clock.Advance(4 * time.Minute)
	assert.Equal(t, model.StatusPending, e.repo.Get(b.ID).Status)

	e.clock.Advance(time.Minute)
	stored := e.repo.Get(b.ID)
	assert.Equal(t, model.StatusConfirmed, stored.Status)
	assert.Equal(t, model.PaymentPaid, stored.PaymentStatus)
	assert.Equal(t, model.ActorSystem, stored.StatusUpdatedBy)
	assert.Equal(t, "Auto-confirmed after delay", stored.AdminNote)
	assert.Equal(t, []roomUpdate{{RoomID: roomID, Status: model.RoomOccupied}}, e.rooms.Updates())
	assert.Equal(t, []notify.Event{notify.EventConfirmed}, e.sent.Events(b.ID))
	assert.Zero(t, e.svc.autoConfirm.Pending())
}

func TestAutoConfirm_OverdueTimerFiresOnRestore(t *testing.T) {
	e := newEnv(t)
	b := e.seed(model.Booking{
		Status:      model.StatusPending,
		AutoConfirm: true,
		CheckIn:     day("2026-10-20"),
		CheckOut:    day("2026-10-22"),
		CreatedAt:   start.Add(-10 * time.Minute),
	})

	_, err := e.svc.RestoreAutoConfirms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, e.repo.Get(b.ID).Status)
}

func TestAutoConfirm_NoOpAfterCancel(t *testing.T) {
	e := newEnv(t)
	b := e.seed(model.Booking{Status: model.StatusPending, AutoConfirm: true, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")})

	_, err := e.svc.RestoreAutoConfirms(context.Background())
	require.NoError(t, err)

	_, err = e.svc.Cancel(context.Background(), User(guestID), b.ID, "")
	require.NoError(t, err)
	assert.Zero(t, e.svc.autoConfirm.Pending())

	e.clock.Advance(10 * time.Minute)
	stored := e.repo.Get(b.ID)
	assert.Equal(t, model.StatusCancelled, stored.Status)
	assert.Equal(t, "user:42", stored.StatusUpdatedBy)
	assert.Equal(t, []notify.Event{notify.EventCancelled}, e.sent.Events(b.ID))
}

func TestAutoConfirm_NoOpWhenStatusMovedElsewhere(t *testing.T) {
	e := newEnv(t)
	b := e.seed(model.Booking{Status: model.StatusPending, AutoConfirm: true, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")})

	_, err := e.svc.RestoreAutoConfirms(context.Background())
	require.NoError(t, err)

	// Another instance cancels; this instance's timer is still armed.
	_, err = e.repo.UpdateStatus(context.Background(), b.ID, model.StatusPending, model.StatusChange{
		To: model.StatusCancelled, Actor: "admin:9", At: start,
	})
	require.NoError(t, err)

	e.clock.Advance(5 * time.Minute)
	stored := e.repo.Get(b.ID)
	assert.Equal(t, model.StatusCancelled, stored.Status)
	assert.Equal(t, "admin:9", stored.StatusUpdatedBy)
	assert.Empty(t, e.sent.Events(b.ID))
	assert.Empty(t, e.rooms.Updates())
}

func TestAutoConfirm_StopDropsTimers(t *testing.T) {
	e := newEnv(t)
	b := e.seed(model.Booking{Status: model.StatusPending, AutoConfirm: true, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")})

	_, err := e.svc.RestoreAutoConfirms(context.Background())
	require.NoError(t, err)

	e.svc.Close()
	e.clock.Advance(time.Hour)
	assert.Equal(t, model.StatusPending, e.repo.Get(b.ID).Status)
}

func TestExpirePending(t *testing.T) {
	e := newEnv(t)
	stale := e.seed(model.Booking{Status: model.StatusPending, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22"), CreatedAt: start.Add(-2 * time.Hour)})
	auto := e.seed(model.Booking{Status: model.StatusPending, AutoConfirm: true, CheckIn: day("2026-10-23"), CheckOut: day("2026-10-24"), CreatedAt: start.Add(-2 * time.Hour)})
	fresh := e.seed(model.Booking{Status: model.StatusPending, CheckIn: day("2026-10-25"), CheckOut: day("2026-10-26"), CreatedAt: start.Add(-10 * time.Minute)})
	confirmed := e.seed(model.Booking{Status: model.StatusConfirmed, CheckIn: day("2026-10-27"), CheckOut: day("2026-10-28"), CreatedAt: start.Add(-3 * time.Hour)})

	n, err := e.svc.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expired := e.repo.Get(stale.ID)
	assert.Equal(t, model.StatusCancelled, expired.Status)
	assert.Equal(t, model.ActorSystem, expired.StatusUpdatedBy)
	assert.Equal(t, "Expired - no confirmation within time limit", expired.AdminNote)
	assert.Equal(t, []roomUpdate{{RoomID: roomID, Status: model.RoomAvailable}}, e.rooms.Updates())
	assert.Equal(t, []notify.Event{notify.EventCancelled}, e.sent.Events(stale.ID))

	assert.Equal(t, model.StatusPending, e.repo.Get(auto.ID).Status)
	assert.Equal(t, model.StatusPending, e.repo.Get(fresh.ID).Status)
	assert.Equal(t, model.StatusConfirmed, e.repo.Get(confirmed.ID).Status)

	// A second sweep finds nothing left to do.
	n, err = e.svc.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpirePending_StoreDown(t *testing.T) {
	e := newEnv(t)
	e.repo.FailWith(errors.New("connection reset"))

	_, err := e.svc.ExpirePending(context.Background())
	requireAppError(t, err, apperrors.CodeInternal, http.StatusInternalServerError)
}

func TestSweeper_ExpiresOnEveryTick(t *testing.T) {
	e := newEnv(t)
	stale := e.seed(model.Booking{Status: model.StatusPending, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22"), CreatedAt: start.Add(-2 * time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewSweeper(e.svc, e.clock, time.Minute, logger.Discard()).Run(ctx)
	}()

	e.clock.BlockUntil(1)
	assert.Equal(t, model.StatusPending, e.repo.Get(stale.ID).Status)

	e.clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return e.repo.Get(stale.ID).Status == model.StatusCancelled
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestModify(t *testing.T) {
	seedBooking := func(e *env) *model.Booking {
		return e.seed(model.Booking{
			Status:     model.StatusConfirmed,
			CheckIn:    day("2026-10-26"),
			CheckOut:   day("2026-10-28"),
			TotalPrice: 2 * roomPrice,
		})
	}
	str := func(s string) *string { return &s }

	t.Run("new dates reprice the stay", func(t *testing.T) {
		e := newEnv(t)
		b := seedBooking(e)

		updated, err := e.svc.Modify(context.Background(), User(guestID), b.ID, &model.BookingModification{CheckOut: str("2026-10-29")})
		require.NoError(t, err)
		assert.Equal(t, day("2026-10-29"), updated.CheckOut)
		assert.Equal(t, float64(3*roomPrice), updated.TotalPrice)
		assert.Equal(t, []notify.Event{notify.EventModified}, e.sent.Events(b.ID))
		assert.Equal(t, 1, e.backend.Calls())
	})

	t.Run("shrinking onto its own dates does not clash with itself", func(t *testing.T) {
		e := newEnv(t)
		b := seedBooking(e)

		updated, err := e.svc.Modify(context.Background(), User(guestID), b.ID, &model.BookingModification{CheckIn: str("2026-10-27")})
		require.NoError(t, err)
		assert.Equal(t, float64(roomPrice), updated.TotalPrice)
	})

	t.Run("guests only skips the lock", func(t *testing.T) {
		e := newEnv(t)
		b := seedBooking(e)
		guests := 4

		updated, err := e.svc.Modify(context.Background(), User(guestID), b.ID, &model.BookingModification{Guests: &guests})
		require.NoError(t, err)
		assert.Equal(t, 4, updated.Guests)
		assert.Equal(t, float64(2*roomPrice), updated.TotalPrice)
		assert.Zero(t, e.backend.Calls())
	})

	t.Run("overlap with another booking", func(t *testing.T) {
		e := newEnv(t)
		b := seedBooking(e)
		e.seed(model.Booking{UserID: otherID, Status: model.StatusPending, CheckIn: day("2026-10-29"), CheckOut: day("2026-10-31")})

		_, err := e.svc.Modify(context.Background(), User(guestID), b.ID, &model.BookingModification{CheckOut: str("2026-10-30")})
		requireAppError(t, err, apperrors.CodeConflict, http.StatusConflict)
		assert.Equal(t, day("2026-10-28"), e.repo.Get(b.ID).CheckOut)
	})

	t.Run("inside the modification window", func(t *testing.T) {
		e := newEnv(t)
		b := e.seed(model.Booking{Status: model.StatusConfirmed, CheckIn: day("2026-10-17"), CheckOut: day("2026-10-19")})
		guests := 3

		_, err := e.svc.Modify(context.Background(), User(guestID), b.ID, &model.BookingModification{Guests: &guests})
		appErr := requireAppError(t, err, apperrors.CodeInvalidInput, http.StatusBadRequest)
		assert.Contains(t, appErr.Message, "48 hours before check-in")
	})

	t.Run("cancelled booking", func(t *testing.T) {
		e := newEnv(t)
		b := e.seed(model.Booking{Status: model.StatusCancelled, CheckIn: day("2026-10-26"), CheckOut: day("2026-10-28")})
		guests := 3

		_, err := e.svc.Modify(context.Background(), User(guestID), b.ID, &model.BookingModification{Guests: &guests})
		requireAppError(t, err, apperrors.CodeInvalidInput, http.StatusBadRequest)
	})

	t.Run("invalid new interval", func(t *testing.T) {
		e := newEnv(t)
		b := seedBooking(e)

		_, err := e.svc.Modify(context.Background(), User(guestID), b.ID, &model.BookingModification{CheckOut: str("2026-10-25")})
		requireAppError(t, err, apperrors.CodeInvalidInput, http.StatusBadRequest)
	})
}
