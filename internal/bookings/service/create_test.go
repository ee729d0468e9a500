package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"roombook/internal/lock"
	"roombook/internal/notify"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(userRoom int64, checkIn, checkOut string) *model.BookingRequest {
	// Card keeps a low-trust guest pending.
	return &model.BookingRequest{
		RoomID:        userRoom,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		Guests:        2,
		PaymentMethod: model.PaymentCard,
	}
}

func TestCreate_InitialStatusPolicy(t *testing.T) {
	tests := []struct {
		name        string
		userID      int64
		method      model.PaymentMethod
		autoConfirm bool
		wantStatus  model.BookingStatus
		wantPayment model.PaymentStatus
	}{
		{"cash by default confirms", guestID, "", false, model.StatusConfirmed, model.PaymentPaid},
		{"card stays pending", guestID, model.PaymentCard, false, model.StatusPending, model.PaymentPending},
		{"transfer stays pending", guestID, model.PaymentTransfer, false, model.StatusPending, model.PaymentPending},
		{"cash confirms", guestID, model.PaymentCash, false, model.StatusConfirmed, model.PaymentPaid},
		{"auto-confirm confirms", guestID, model.PaymentCard, true, model.StatusConfirmed, model.PaymentPaid},
		{"high trust confirms", trustedID, model.PaymentCard, false, model.StatusConfirmed, model.PaymentPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			req := request(roomID, "2026-10-20", "2026-10-22")
			req.PaymentMethod = tt.method
			req.AutoConfirm = tt.autoConfirm

			res, err := e.svc.Create(context.Background(), tt.userID, req)
			require.NoError(t, err)
			require.False(t, res.Queued)

			b := res.Booking
			require.NotNil(t, b)
			assert.NotEmpty(t, b.ID)
			assert.Equal(t, tt.wantStatus, b.Status)
			assert.Equal(t, tt.wantPayment, b.PaymentStatus)
			assert.Equal(t, float64(2*roomPrice), b.TotalPrice)
			assert.Equal(t, model.ActorSystem, b.StatusUpdatedBy)
			assert.Equal(t, start, b.CreatedAt)

			stored := e.repo.Get(b.ID)
			require.NotNil(t, stored)
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.Equal(t, []notify.Event{notify.EventCreated}, e.sent.Events(b.ID))

			if tt.wantStatus == model.StatusConfirmed {
				assert.Equal(t, []roomUpdate{{RoomID: roomID, Status: model.RoomOccupied}}, e.rooms.Updates())
			} else {
				assert.Empty(t, e.rooms.Updates())
			}
			// Nothing created through the API is pending with auto-confirm set.
			assert.Zero(t, e.svc.autoConfirm.Pending())
		})
	}
}

func TestCreate_ConcurrentRequestsYieldOneBooking(t *testing.T) {
	e := newEnv(t)

	const n = 20
	for i := 0; i < n; i++ {
		e.users.Add(int64(100 + i))
	}
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			_, err := e.svc.Create(context.Background(), user, request(roomID, "2026-10-20", "2026-10-23"))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}(int64(100 + i))
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, e.repo.Persists())
	for _, err := range failures {
		appErr := apperrors.AsAppError(err)
		require.NotNil(t, appErr, "unexpected error %v", err)
		assert.Equal(t, http.StatusConflict, appErr.StatusCode())
		assert.Contains(t, []string{apperrors.CodeConflict, apperrors.CodeContention}, appErr.Code)
	}
}

func TestCreate_OverlappingBookingIsConflict(t *testing.T) {
	e := newEnv(t)
	e.seed(model.Booking{Status: model.StatusConfirmed, CheckIn: day("2026-10-21"), CheckOut: day("2026-10-24")})

	_, err := e.svc.Create(context.Background(), guestID, request(roomID, "2026-10-20", "2026-10-22"))
	requireAppError(t, err, apperrors.CodeConflict, http.StatusConflict)

	// Back-to-back stays share a boundary day and do not overlap.
	res, err := e.svc.Create(context.Background(), guestID, request(roomID, "2026-10-24", "2026-10-26"))
	require.NoError(t, err)
	assert.NotNil(t, res.Booking)
}

func TestCreate_CancelledBookingFreesInterval(t *testing.T) {
	e := newEnv(t)
	e.seed(model.Booking{Status: model.StatusCancelled, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")})

	res, err := e.svc.Create(context.Background(), guestID, request(roomID, "2026-10-20", "2026-10-22"))
	require.NoError(t, err)
	assert.NotNil(t, res.Booking)
}

func TestCreate_ContendedLockReturnsRetryHint(t *testing.T) {
	e := newEnv(t)
	iv := model.Interval{RoomID: roomID, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")}
	_, err := e.locks.Acquire(context.Background(), lock.Key(iv), "req:other", 30*time.Second)
	require.NoError(t, err)

	_, err = e.svc.Create(context.Background(), guestID, request(roomID, "2026-10-20", "2026-10-22"))
	appErr := requireAppError(t, err, apperrors.CodeContention, http.StatusConflict)

	retryAfter, ok := appErr.RetryAfter()
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, retryAfter)
	assert.Zero(t, e.repo.Persists())
}

func TestCreate_InvalidIntervals(t *testing.T) {
	tests := []struct {
		name     string
		checkIn  string
		checkOut string
		want     string
	}{
		{"check-out before check-in", "2026-10-22", "2026-10-20", "check-out must be after check-in"},
		{"zero nights", "2026-10-20", "2026-10-20", "check-out must be after check-in"},
		{"check-in in the past", "2026-10-15", "2026-10-18", "check-in cannot be in the past"},
		{"stay too long", "2026-10-20", "2026-12-20", "stay cannot exceed 30 nights"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			_, err := e.svc.Create(context.Background(), guestID, request(roomID, tt.checkIn, tt.checkOut))
			appErr := requireAppError(t, err, apperrors.CodeInvalidInput, http.StatusBadRequest)
			assert.Equal(t, tt.want, appErr.Message)
			assert.Zero(t, e.backend.Calls(), "no lock may be taken for an invalid interval")
		})
	}
}

func TestCreate_CheckInTodayIsAllowed(t *testing.T) {
	e := newEnv(t)
	res, err := e.svc.Create(context.Background(), guestID, request(roomID, "2026-10-16", "2026-10-17"))
	require.NoError(t, err)
	assert.Equal(t, float64(roomPrice), res.Booking.TotalPrice)
}

func TestCreate_ValidationFailure(t *testing.T) {
	e := newEnv(t)
	req := request(0, "2026-10-20", "not-a-date")
	req.Guests = 0

	_, err := e.svc.Create(context.Background(), guestID, req)
	appErr := requireAppError(t, err, apperrors.CodeValidation, http.StatusUnprocessableEntity)
	assert.NotEmpty(t, appErr.Details)
}

func TestCreate_RequiresUser(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Create(context.Background(), 0, request(roomID, "2026-10-20", "2026-10-22"))
	requireAppError(t, err, apperrors.CodeUnauthorized, http.StatusUnauthorized)
}

func TestCreate_LockStoreDownFailsClosed(t *testing.T) {
	e := newEnv(t)
	e.backend.FailWith(errors.New("connection refused"))

	_, err := e.svc.Create(context.Background(), guestID, request(roomID, "2026-10-20", "2026-10-22"))
	requireAppError(t, err, apperrors.CodeUnavailable, http.StatusServiceUnavailable)
	assert.Zero(t, e.repo.Persists())
}

func TestCreate_RoomLookupFailures(t *testing.T) {
	t.Run("unknown room", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.svc.Create(context.Background(), guestID, request(999, "2026-10-20", "2026-10-22"))
		requireAppError(t, err, apperrors.CodeNotFound, http.StatusNotFound)
	})

	t.Run("room service down", func(t *testing.T) {
		e := newEnv(t)
		e.rooms.getErr = errors.New("dial tcp: connection refused")
		_, err := e.svc.Create(context.Background(), guestID, request(roomID, "2026-10-20", "2026-10-22"))
		requireAppError(t, err, apperrors.CodeUnavailable, http.StatusServiceUnavailable)
	})
}

func TestCreate_UserLookup(t *testing.T) {
	t.Run("unknown user is rejected before locking", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.svc.Create(context.Background(), 99, request(roomID, "2026-10-20", "2026-10-22"))
		requireAppError(t, err, apperrors.CodeNotFound, http.StatusNotFound)
		assert.Zero(t, e.repo.Persists())

		locked, err := e.locks.IsLocked(context.Background(), lock.Key(model.Interval{
			RoomID: roomID, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22"),
		}))
		require.NoError(t, err)
		assert.False(t, locked)
	})

	t.Run("user service down falls back to low trust", func(t *testing.T) {
		e := newEnv(t)
		e.users.FailWith(errors.New("dial tcp: connection refused"))
		res, err := e.svc.Create(context.Background(), trustedID, request(roomID, "2026-10-20", "2026-10-22"))
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, res.Booking.Status)
		assert.Equal(t, model.PaymentPending, res.Booking.PaymentStatus)
	})
}

func TestCreate_SideEffectFailuresDoNotFailTheBooking(t *testing.T) {
	e := newEnv(t)
	e.rooms.setErr = errors.New("room service down")
	e.sent.FailWith(errors.New("broker down"))

	req := request(roomID, "2026-10-20", "2026-10-22")
	req.PaymentMethod = model.PaymentCash
	res, err := e.svc.Create(context.Background(), guestID, req)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, e.repo.Get(res.Booking.ID).Status)
}

func TestCreate_QueuedRequestSucceedsOnceLockFrees(t *testing.T) {
	e := newEnv(t, withQueue(2*time.Second, 200*time.Millisecond))
	iv := model.Interval{RoomID: roomID, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")}
	grant, err := e.locks.Acquire(context.Background(), lock.Key(iv), "req:other", 30*time.Second)
	require.NoError(t, err)

	type outcome struct {
		res *CreateResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		req := request(roomID, "2026-10-20", "2026-10-22")
		req.Wait = true
		res, err := e.svc.Create(context.Background(), guestID, req)
		done <- outcome{res, err}
	}()

	time.Sleep(30 * time.Millisecond)
	_, err = e.locks.Release(context.Background(), grant.Key, grant.Token)
	require.NoError(t, err)

	select {
	case out := <-done:
		require.NoError(t, out.err)
		require.NotNil(t, out.res.Booking)
		assert.False(t, out.res.Queued)
		assert.Equal(t, guestID, out.res.Booking.UserID)
		assert.Equal(t, 1, e.repo.Persists())
		assert.Equal(t, []notify.Event{notify.EventCreated}, e.sent.Events(out.res.Booking.ID))
	case <-time.After(3 * time.Second):
		t.Fatal("queued create did not complete")
	}
}

func TestCreate_QueuedRequestReturnsPositionOnTimeout(t *testing.T) {
	e := newEnv(t, withQueue(50*time.Millisecond, 200*time.Millisecond))
	iv := model.Interval{RoomID: roomID, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")}
	_, err := e.locks.Acquire(context.Background(), lock.Key(iv), "req:other", 30*time.Second)
	require.NoError(t, err)

	req := request(roomID, "2026-10-20", "2026-10-22")
	req.Wait = true
	res, err := e.svc.Create(context.Background(), guestID, req)
	require.NoError(t, err)

	assert.True(t, res.Queued)
	assert.Nil(t, res.Booking)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, int64(1), res.Position)
}

func TestCreate_WithoutWaitDoesNotQueue(t *testing.T) {
	e := newEnv(t, withQueue(time.Second, 200*time.Millisecond))
	iv := model.Interval{RoomID: roomID, CheckIn: day("2026-10-20"), CheckOut: day("2026-10-22")}
	_, err := e.locks.Acquire(context.Background(), lock.Key(iv), "req:other", 30*time.Second)
	require.NoError(t, err)

	_, err = e.svc.Create(context.Background(), guestID, request(roomID, "2026-10-20", "2026-10-22"))
	requireAppError(t, err, apperrors.CodeContention, http.StatusConflict)

	n, err := e.queue.Length(context.Background(), iv)
	require.NoError(t, err)
	assert.Zero(t, n)
}
