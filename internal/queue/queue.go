package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"roombook/internal/lock"
	"roombook/pkg/clock"
	"roombook/pkg/config"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/logger"
	"roombook/pkg/model"

	"github.com/google/uuid"
)

const (
	KeyPrefix           = "booking_queue:"
	LeasePrefix         = "booking_queue_worker:"
	ResultChannelPrefix = "booking_result:"

	// ResultUnavailable is sent to requests purged after another request on
	// the same interval succeeded.
	ResultUnavailable = "ROOM_UNAVAILABLE"

	maxRequeues = 5
)

var (
	ErrResultTimeout = errors.New("timed out waiting for queued result")
	ErrNoProcessor   = errors.New("queue has no processor")
	ErrClosed        = errors.New("queue closed")
)

func Key(iv model.Interval) string { return KeyPrefix + iv.String() }

func LeaseKey(iv model.Interval) string { return LeasePrefix + iv.String() }

func ResultChannel(requesterID int64) string {
	return ResultChannelPrefix + strconv.FormatInt(requesterID, 10)
}

// Entry is one create request parked behind a contended lock.
type Entry struct {
	RequestID   string                `json:"requestId"`
	RequesterID int64                 `json:"requesterId"`
	Request     *model.BookingRequest `json:"request"`
	Interval    model.Interval        `json:"interval"`
	EnqueuedAt  time.Time             `json:"enqueuedAt"`
	Requeues    int                   `json:"requeues,omitempty"`
}

// Result is published on the requester's channel once the entry is processed.
type Result struct {
	RequestID string         `json:"requestId"`
	Success   bool           `json:"success"`
	Booking   *model.Booking `json:"booking,omitempty"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// Err rebuilds the failure as an AppError for the HTTP layer.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	switch r.Code {
	case ResultUnavailable, apperrors.CodeConflict:
		return apperrors.Conflict(r.Message)
	case apperrors.CodeContention:
		return apperrors.Contention(r.Message, time.Second)
	case apperrors.CodeNotFound:
		return apperrors.NotFound(r.Message)
	case apperrors.CodeInvalidInput, apperrors.CodeValidation:
		return apperrors.InvalidInput(r.Message)
	case apperrors.CodeUnavailable:
		return apperrors.New(apperrors.CodeUnavailable, r.Message, http.StatusServiceUnavailable)
	default:
		return apperrors.Internal(r.Message, nil)
	}
}

// Processor performs a queued create. It runs under the queue's own context,
// never the original caller's.
type Processor func(ctx context.Context, entry Entry) (*model.Booking, error)

type Options struct {
	TTL      time.Duration
	LeaseTTL time.Duration
	Clock    clock.Clock
	// InstanceID names this process as a lease owner.
	InstanceID string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{TTL: cfg.QueueTTL, LeaseTTL: cfg.QueueLeaseTTL}
}

// Queue parks create requests that lost the lock race and drains them one at
// a time per interval. A drain runs only while its queue is non-empty and
// only on the instance holding the interval's lease.
type Queue struct {
	store      Store
	log        *logger.Logger
	clock      clock.Clock
	ttl        time.Duration
	leaseTTL   time.Duration
	instanceID string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	process Processor
	workers map[string]struct{}
	closed  bool
}

func New(store Store, log *logger.Logger, opts Options) *Queue {
	if opts.TTL <= 0 {
		opts.TTL = config.DefaultQueueTTL
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = config.DefaultQueueLeaseTTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		store:      store,
		log:        log.Component("queue"),
		clock:      opts.Clock,
		ttl:        opts.TTL,
		leaseTTL:   opts.LeaseTTL,
		instanceID: opts.InstanceID,
		ctx:        ctx,
		cancel:     cancel,
		workers:    make(map[string]struct{}),
	}
}

// Handle registers the function that drains entries.
func (q *Queue) Handle(p Processor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.process = p
}

// Submit enqueues entry and waits up to wait for its result. On timeout it
// returns ErrResultTimeout with the entry's position; processing continues
// regardless.
func (q *Queue) Submit(ctx context.Context, entry Entry, wait time.Duration) (*Result, int64, error) {
	if entry.RequestID == "" {
		entry.RequestID = uuid.NewString()
	}

	sub, err := q.store.Subscribe(ctx, ResultChannel(entry.RequesterID))
	if err != nil {
		return nil, 0, fmt.Errorf("subscribe to results: %w", err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			q.log.Warn("Failed to close result subscription", "request_id", entry.RequestID, "error", err)
		}
	}()

	position, err := q.Enqueue(ctx, entry)
	if err != nil {
		return nil, 0, err
	}

	timeout := q.clock.After(wait)
	for {
		select {
		case raw, ok := <-sub.Messages():
			if !ok {
				return nil, position, fmt.Errorf("result subscription closed")
			}
			var res Result
			if err := json.Unmarshal(raw, &res); err != nil {
				q.log.Warn("Dropping malformed queue result", "error", err)
				continue
			}
			// Other requests from the same requester share the channel.
			if res.RequestID != entry.RequestID {
				continue
			}
			return &res, position, nil
		case <-timeout:
			return nil, position, ErrResultTimeout
		case <-ctx.Done():
			return nil, position, ctx.Err()
		}
	}
}

// Enqueue pushes entry and makes sure a drain is running for its interval.
// It returns the entry's 1-based position in line.
func (q *Queue) Enqueue(ctx context.Context, entry Entry) (int64, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	if entry.RequestID == "" {
		entry.RequestID = uuid.NewString()
	}
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = q.clock.Now()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("encode queue entry: %w", err)
	}

	position, err := q.store.Push(ctx, Key(entry.Interval), raw, q.ttl)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}

	q.log.Info("Booking request queued",
		"request_id", entry.RequestID,
		"requester_id", entry.RequesterID,
		"interval", entry.Interval.String(),
		"position", position,
	)
	q.Kick(entry.Interval)
	return position, nil
}

// Length is the number of requests waiting on iv.
func (q *Queue) Length(ctx context.Context, iv model.Interval) (int64, error) {
	return q.store.Len(ctx, Key(iv))
}

// Kick starts a drain for iv unless one is already running in this process.
func (q *Queue) Kick(iv model.Interval) {
	k := iv.String()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if _, running := q.workers[k]; running {
		q.mu.Unlock()
		return
	}
	q.workers[k] = struct{}{}
	q.wg.Add(1)
	q.mu.Unlock()

	go q.drain(iv)
}

// Close stops accepting kicks and waits for running drains to return.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) drain(iv model.Interval) {
	defer q.wg.Done()

	emptied := q.drainOnce(iv)

	q.mu.Lock()
	delete(q.workers, iv.String())
	q.mu.Unlock()

	// An enqueue that landed after the last pop saw this worker still
	// registered, or saw the lease still held by it, and started nothing.
	// Once both are gone the entry is ours to pick up.
	if !emptied {
		return
	}
	n, err := q.store.Len(context.WithoutCancel(q.ctx), Key(iv))
	if err != nil {
		q.log.Warn("Failed to recheck queue length", "interval", iv.String(), "error", err)
		return
	}
	if n > 0 {
		q.Kick(iv)
	}
}

// drainOnce processes entries under the lease. It reports whether it stopped
// because the queue ran empty.
func (q *Queue) drainOnce(iv model.Interval) bool {
	ctx := q.ctx
	leaseKey := LeaseKey(iv)
	queueKey := Key(iv)
	log := q.log.With("interval", iv.String())

	owned, err := q.store.AcquireLease(ctx, leaseKey, q.instanceID, q.leaseTTL)
	if err != nil {
		log.Error("Failed to acquire drain lease", "error", err)
		return false
	}
	if !owned {
		log.Debug("Drain lease held elsewhere")
		return false
	}

	defer func() {
		if err := q.store.ReleaseLease(context.WithoutCancel(ctx), leaseKey, q.instanceID); err != nil {
			log.Warn("Failed to release drain lease", "error", err)
		}
	}()

	for {
		if ctx.Err() != nil {
			return false
		}
		if renewed, err := q.store.RenewLease(ctx, leaseKey, q.instanceID, q.leaseTTL); err != nil || !renewed {
			log.Warn("Lost drain lease", "error", err)
			return false
		}

		raw, err := q.store.Pop(ctx, queueKey)
		if err != nil {
			log.Error("Failed to pop queue entry", "error", err)
			return false
		}
		if raw == nil {
			return true
		}

		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			log.Error("Dropping malformed queue entry", "error", err)
			continue
		}

		if q.handle(ctx, queueKey, raw, entry) {
			q.purge(ctx, queueKey, entry.RequestID)
		}
	}
}

// handle processes one entry and reports whether it produced a booking.
func (q *Queue) handle(ctx context.Context, queueKey string, raw []byte, entry Entry) bool {
	q.mu.Lock()
	process := q.process
	q.mu.Unlock()

	if process == nil {
		q.publish(ctx, entry, failure(entry.RequestID, ErrNoProcessor))
		return false
	}

	booking, err := process(ctx, entry)

	var contention *lock.ContentionError
	if errors.As(err, &contention) && entry.Requeues < maxRequeues {
		// A direct request holds the lock; put the entry back at the head and
		// wait out the holder.
		entry.Requeues++
		if requeued, mErr := json.Marshal(entry); mErr == nil {
			raw = requeued
		}
		if pErr := q.store.PushFront(ctx, queueKey, raw); pErr == nil {
			wait := contention.RetryAfter
			if wait > q.leaseTTL/2 {
				wait = q.leaseTTL / 2
			}
			select {
			case <-ctx.Done():
			case <-q.clock.After(wait):
			}
			return false
		}
	}

	if err != nil {
		q.publish(ctx, entry, failure(entry.RequestID, err))
		return false
	}

	q.publish(ctx, entry, &Result{RequestID: entry.RequestID, Success: true, Booking: booking})
	return true
}

// purge drops everyone still waiting on the interval once it has been booked.
func (q *Queue) purge(ctx context.Context, queueKey, winner string) {
	rest, err := q.store.Purge(ctx, queueKey)
	if err != nil {
		q.log.Error("Failed to purge queue", "queue", queueKey, "error", err)
		return
	}

	for _, raw := range rest {
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		q.publish(ctx, entry, &Result{
			RequestID: entry.RequestID,
			Code:      ResultUnavailable,
			Message:   "Room is no longer available for the requested dates",
		})
	}
	if len(rest) > 0 {
		q.log.Info("Queue purged after successful booking", "queue", queueKey, "winner", winner, "dropped", len(rest))
	}
}

func (q *Queue) publish(ctx context.Context, entry Entry, res *Result) {
	payload, err := json.Marshal(res)
	if err != nil {
		q.log.Error("Failed to encode queue result", "request_id", entry.RequestID, "error", err)
		return
	}
	if err := q.store.Publish(context.WithoutCancel(ctx), ResultChannel(entry.RequesterID), payload); err != nil {
		q.log.Error("Failed to publish queue result", "request_id", entry.RequestID, "error", err)
	}
}

func failure(requestID string, err error) *Result {
	res := &Result{RequestID: requestID}

	var contention *lock.ContentionError
	if errors.As(err, &contention) {
		res.Code = apperrors.CodeContention
		res.Message = "Room is being booked by another request"
		return res
	}
	if appErr := apperrors.AsAppError(err); appErr != nil {
		res.Code = appErr.Code
		res.Message = appErr.Message
		return res
	}
	res.Code = apperrors.CodeInternal
	res.Message = "Failed to process booking request"
	return res
}
