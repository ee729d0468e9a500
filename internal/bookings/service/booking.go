package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	bookingserrors "roombook/internal/bookings/errors"
	"roombook/internal/bookings/repository"
	"roombook/internal/bookings/validator"
	"roombook/internal/lock"
	"roombook/internal/notify"
	"roombook/internal/queue"
	"roombook/pkg/clock"
	"roombook/pkg/config"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/logger"
	"roombook/pkg/model"
)

type BookingService interface {
	Create(ctx context.Context, userID int64, req *model.BookingRequest) (*CreateResult, error)
	GetByID(ctx context.Context, actor Actor, id string) (*model.Booking, error)
	ListForUser(ctx context.Context, userID int64, limit int, offset int64) ([]*model.Booking, int64, error)
	Cancel(ctx context.Context, actor Actor, id string, reason string) (*model.Booking, error)
	Modify(ctx context.Context, actor Actor, id string, mod *model.BookingModification) (*model.Booking, error)
	Confirm(ctx context.Context, actor Actor, id string, note string) (*model.Booking, error)
	Complete(ctx context.Context, actor Actor, id string) (*model.Booking, error)
	UpdateStatus(ctx context.Context, actor Actor, id string, req *model.StatusUpdateRequest) (*model.Booking, error)
	LockStatus(ctx context.Context, roomID int64, checkIn, checkOut string) (*LockStatus, error)

	List(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, int64, error)
	Pending(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	Stats(ctx context.Context) (*model.BookingStats, error)
	NotifyGuest(ctx context.Context, actor Actor, id string, req *model.NotifyRequest) error

	// ExpirePending cancels stale pending bookings and reports how many it
	// cancelled.
	ExpirePending(ctx context.Context) (int, error)
	// RestoreAutoConfirms re-arms auto-confirm timers lost in a restart.
	RestoreAutoConfirms(ctx context.Context) (int, error)
	Close()
}

// RoomDirectory is the room service as seen by bookings.
type RoomDirectory interface {
	GetRoom(ctx context.Context, id int64) (*model.Room, error)
	SetStatus(ctx context.Context, id int64, status model.RoomStatus) error
}

type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

// Actor is whoever triggered an operation. Admins bypass ownership and the
// cancellation window.
type Actor struct {
	ID    int64
	Admin bool
}

func User(id int64) Actor  { return Actor{ID: id} }
func Admin(id int64) Actor { return Actor{ID: id, Admin: true} }

// Name is what gets recorded in StatusUpdatedBy.
func (a Actor) Name() string {
	if a.Admin {
		return "admin:" + strconv.FormatInt(a.ID, 10)
	}
	return "user:" + strconv.FormatInt(a.ID, 10)
}

// CreateResult is either a booking or, when the request was queued and the
// wait elapsed, the handle to poll for it.
type CreateResult struct {
	Booking   *model.Booking `json:"booking,omitempty"`
	Queued    bool           `json:"queued"`
	RequestID string         `json:"requestId,omitempty"`
	Position  int64          `json:"queuePosition,omitempty"`
}

type LockStatus struct {
	*lock.Status
	QueueLength int64 `json:"queueLength"`
}

// Deps are the collaborators of the booking service. Queue is optional; without
// it contended creates fail fast.
type Deps struct {
	Repo      repository.BookingRepository
	Validator *validator.BookingValidator
	Locks     *lock.Manager
	Queue     *queue.Queue
	Rooms     RoomDirectory
	Users     UserDirectory
	Notifier  notify.Notifier
	Clock     clock.Clock
}

type bookingService struct {
	repo        repository.BookingRepository
	validator   *validator.BookingValidator
	locks       *lock.Manager
	queue       *queue.Queue
	rooms       RoomDirectory
	users       UserDirectory
	notifier    notify.Notifier
	clock       clock.Clock
	autoConfirm *autoConfirmer
	cfg         *config.Config
	log         *logger.Logger
}

func NewBookingService(deps Deps, cfg *config.Config) BookingService {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier(cfg.Log)
	}

	s := &bookingService{
		repo:      deps.Repo,
		validator: deps.Validator,
		locks:     deps.Locks,
		queue:     deps.Queue,
		rooms:     deps.Rooms,
		users:     deps.Users,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		cfg:       cfg,
		log:       cfg.Log.Component("bookings"),
	}
	s.autoConfirm = newAutoConfirmer(deps.Clock, s.fireAutoConfirm, s.log)

	if s.queue != nil {
		s.queue.Handle(s.processQueued)
	}
	return s
}

// Close stops pending auto-confirm timers. Bookings stay pending and are
// picked up again by RestoreAutoConfirms.
func (s *bookingService) Close() {
	s.autoConfirm.Stop()
}

func (s *bookingService) load(ctx context.Context, actor Actor, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError(err, "Failed to retrieve booking")
	}
	if !actor.Admin && b.UserID != actor.ID {
		// Someone else's booking is indistinguishable from a missing one.
		return nil, s.mapError(bookingserrors.ErrNotOwner, "")
	}
	return b, nil
}

// mapError turns domain failures into AppErrors. Anything unrecognised is an
// internal error carrying msg.
func (s *bookingService) mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}

	var (
		contention *lock.ContentionError
		interval   *bookingserrors.InvalidIntervalError
		transition *bookingserrors.InvalidTransitionError
	)
	switch {
	case errors.As(err, &contention):
		return apperrors.Contention("Room is being booked by another request, please retry", contention.RetryAfter)
	case errors.Is(err, lock.ErrStoreUnavailable):
		return apperrors.Unavailable("Booking lock service")
	case errors.Is(err, bookingserrors.ErrUnavailable):
		return apperrors.Conflict("Room is not available for the requested dates")
	case errors.As(err, &interval):
		return apperrors.InvalidInput(interval.Reason)
	case errors.As(err, &transition):
		return apperrors.InvalidInput(transition.Error())
	case errors.Is(err, bookingserrors.ErrCancelWindowClosed):
		return apperrors.InvalidInput(fmt.Sprintf("Bookings can only be cancelled at least %s before check-in", hours(s.cfg.CancelWindow)))
	case errors.Is(err, bookingserrors.ErrModifyWindowClosed):
		return apperrors.InvalidInput(fmt.Sprintf("Bookings can only be modified at least %s before check-in", hours(s.cfg.ModifyWindow)))
	case errors.Is(err, bookingserrors.ErrStatusChanged):
		return apperrors.Conflict("Booking was updated concurrently, please retry")
	case errors.Is(err, bookingserrors.ErrNotFound), errors.Is(err, bookingserrors.ErrNotOwner):
		return apperrors.NotFound("Booking")
	case errors.Is(err, bookingserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid booking ID format")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("Booking operation timed out")
	}

	s.log.Error(msg, "error", err)
	return apperrors.Internal(msg, err)
}

func (s *bookingService) validationError(msg string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation(msg, verrs.Details())
	}
	return apperrors.Validation(msg, map[string]any{"error": err.Error()})
}

func hours(d time.Duration) string {
	return fmt.Sprintf("%d hours", int(d.Hours()))
}
