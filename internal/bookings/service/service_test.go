package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roombook/internal/bookings/repository/repositorytest"
	"roombook/internal/bookings/validator"
	"roombook/internal/lock"
	"roombook/internal/lock/locktest"
	"roombook/internal/notify/notifytest"
	"roombook/internal/queue"
	"roombook/internal/queue/queuetest"
	"roombook/pkg/client"
	"roombook/pkg/clock"
	"roombook/pkg/config"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/logger"
	"roombook/pkg/model"

	"github.com/stretchr/testify/require"
)

// ────────────────────────────────────────────────
// Fakes for the room and user services
// ────────────────────────────────────────────────

type roomUpdate struct {
	RoomID int64
	Status model.RoomStatus
}

type fakeRooms struct {
	mu      sync.Mutex
	rooms   map[int64]*model.Room
	getErr  error
	setErr  error
	updates []roomUpdate
}

func newFakeRooms(rooms ...*model.Room) *fakeRooms {
	f := &fakeRooms{rooms: make(map[int64]*model.Room)}
	for _, r := range rooms {
		f.rooms[r.ID] = r
	}
	return f
}

func (f *fakeRooms) GetRoom(_ context.Context, id int64) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	r, ok := f.rooms[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (f *fakeRooms) SetStatus(_ context.Context, id int64, status model.RoomStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.updates = append(f.updates, roomUpdate{RoomID: id, Status: status})
	return nil
}

func (f *fakeRooms) Updates() []roomUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]roomUpdate(nil), f.updates...)
}

type fakeUsers struct {
	mu     sync.Mutex
	levels map[int64]model.TrustLevel
	err    error
}

func newFakeUsers(levels map[int64]model.TrustLevel) *fakeUsers {
	return &fakeUsers{levels: levels}
}

// Add registers a low-trust guest.
func (f *fakeUsers) Add(ids ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.levels[id] = model.TrustLow
	}
}

func (f *fakeUsers) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeUsers) GetUser(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	level, ok := f.levels[id]
	if !ok {
		return nil, client.ErrNotFound
	}
	return &model.User{ID: id, TrustLevel: level}, nil
}

// ────────────────────────────────────────────────
// Test environment
// ────────────────────────────────────────────────

var start = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

const (
	roomID    = int64(7)
	roomPrice = 120
	guestID   = int64(42)
	otherID   = int64(43)
	trustedID = int64(44)
)

type env struct {
	svc     *bookingService
	repo    *repositorytest.Memory
	backend *locktest.Memory
	locks   *lock.Manager
	queue   *queue.Queue
	clock   *clock.Fake
	rooms   *fakeRooms
	users   *fakeUsers
	sent    *notifytest.Recorder
	cfg     *config.Config
}

type envOption func(*env)

// withQueue wires a real queue over the in-memory store. The queue runs on
// the wall clock so its waits elapse without driving the fake one.
func withQueue(wait, leaseTTL time.Duration) envOption {
	return func(e *env) {
		e.cfg.QueueWaitTimeout = wait
		e.queue = queue.New(queuetest.NewMemory(), logger.Discard(), queue.Options{
			TTL:      time.Minute,
			LeaseTTL: leaseTTL,
		})
	}
}

func testConfig() *config.Config {
	return &config.Config{
		LockTTL:           30 * time.Second,
		QueueWaitTimeout:  time.Second,
		AutoConfirmDelay:  5 * time.Minute,
		PendingExpiry:     time.Hour,
		SweepInterval:     time.Minute,
		CancelWindow:      24 * time.Hour,
		ModifyWindow:      48 * time.Hour,
		PendingListWindow: 24 * time.Hour,
		MaxStayNights:     30,
		Log:               logger.Discard(),
	}
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	fake := clock.NewFake(start)
	backend := locktest.NewMemory(fake)
	e := &env{
		repo:    repositorytest.NewMemory(),
		backend: backend,
		clock:   fake,
		rooms:   newFakeRooms(&model.Room{ID: roomID, RoomNumber: "101", Price: roomPrice, Status: model.RoomAvailable}),
		users:   newFakeUsers(map[int64]model.TrustLevel{guestID: model.TrustLow, otherID: model.TrustMedium, trustedID: model.TrustHigh}),
		sent:    notifytest.NewRecorder(),
		cfg:     testConfig(),
	}
	// Lock retries run on the wall clock with millisecond backoff; lock
	// expiry follows the fake clock through the backend.
	e.locks = lock.NewManager(backend, logger.Discard(), lock.Options{
		Policy: lock.RetryPolicy{
			MaxAttempts:       2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        2 * time.Millisecond,
			BackoffMultiplier: 2,
		},
		Jitter: func() float64 { return 0 },
	})

	for _, opt := range opts {
		opt(e)
	}

	svc := NewBookingService(Deps{
		Repo:      e.repo,
		Validator: validator.NewBookingValidator(logger.Discard()),
		Locks:     e.locks,
		Queue:     e.queue,
		Rooms:     e.rooms,
		Users:     e.users,
		Notifier:  e.sent,
		Clock:     fake,
	}, e.cfg)
	e.svc = svc.(*bookingService)

	t.Cleanup(func() {
		if e.queue != nil {
			e.queue.Close()
		}
		svc.Close()
	})
	return e
}

// seed stores a booking for guestID on roomID with sensible defaults.
func (e *env) seed(b model.Booking) *model.Booking {
	if b.UserID == 0 {
		b.UserID = guestID
	}
	if b.RoomID == 0 {
		b.RoomID = roomID
	}
	if b.Guests == 0 {
		b.Guests = 2
	}
	if b.PaymentMethod == "" {
		b.PaymentMethod = model.PaymentCard
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = model.PaymentPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = start
	}
	b.UpdatedAt = b.CreatedAt
	e.repo.Seed(&b)
	return e.repo.Get(b.ID)
}

func day(s string) time.Time {
	t, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func requireAppError(t *testing.T, err error, code string, status int) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected an AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code, appErr.Message)
	require.Equal(t, status, appErr.StatusCode())
	return appErr
}
