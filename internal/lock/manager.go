package lock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"roombook/pkg/clock"
	"roombook/pkg/logger"

	"github.com/google/uuid"
)

const (
	DefaultOperationTimeout = 2 * time.Second
	tokenSeparator          = "/"
)

// Grant is a held lock. Token is what Release needs.
type Grant struct {
	Key       string    `json:"key"`
	Holder    string    `json:"holder"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	Reentered bool      `json:"reentered"`
}

type Status struct {
	Key       string        `json:"key"`
	Locked    bool          `json:"locked"`
	Holder    string        `json:"holder,omitempty"`
	ExpiresIn time.Duration `json:"-"`
	// TTLSeconds mirrors ExpiresIn for JSON clients.
	TTLSeconds float64 `json:"ttlSeconds,omitempty"`
}

type Options struct {
	Policy           RetryPolicy
	Clock            clock.Clock
	OperationTimeout time.Duration
	// Jitter returns a value in [0, 1). Defaults to math/rand/v2.
	Jitter func() float64
	// NewToken builds a token for holder. Defaults to holder/uuid.
	NewToken func(holder string) string
}

// Manager grants mutual exclusion over keys held in a shared Backend. It is
// the only component allowed to take or drop a booking lock.
type Manager struct {
	backend   Backend
	policy    RetryPolicy
	clock     clock.Clock
	opTimeout time.Duration
	jitter    func() float64
	newToken  func(string) string
	log       *logger.Logger
}

func NewManager(backend Backend, log *logger.Logger, opts Options) *Manager {
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = DefaultRetryPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}
	if opts.Jitter == nil {
		opts.Jitter = rand.Float64
	}
	if opts.NewToken == nil {
		opts.NewToken = func(holder string) string {
			return holder + tokenSeparator + uuid.NewString()
		}
	}
	return &Manager{
		backend:   backend,
		policy:    opts.Policy,
		clock:     opts.Clock,
		opTimeout: opts.OperationTimeout,
		jitter:    opts.Jitter,
		newToken:  opts.NewToken,
		log:       log.Component("lock"),
	}
}

// Acquire takes key for holder, retrying with backoff while another holder
// has it. A holder that already owns key gets its TTL extended. When every
// attempt is denied the result is a *ContentionError carrying the remaining
// TTL of the current holder.
func (m *Manager) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (*Grant, error) {
	if err := validate(key, holder, ttl); err != nil {
		return nil, err
	}

	token := m.newToken(holder)
	var last Attempt
	for attempt := 1; attempt <= m.policy.MaxAttempts; attempt++ {
		res, err := m.tryAcquire(ctx, key, holder, token, ttl)
		if err != nil {
			return nil, err
		}

		if res.Outcome != Denied {
			grant := &Grant{
				Key:       key,
				Holder:    holder,
				Token:     res.Token,
				ExpiresAt: m.clock.Now().Add(ttl),
				Reentered: res.Outcome == Extended,
			}
			m.log.Debug("Lock acquired", "key", key, "holder", holder, "attempt", attempt, "outcome", res.Outcome.String())
			return grant, nil
		}

		last = res
		if attempt == m.policy.MaxAttempts {
			break
		}

		wait := m.policy.Backoff(attempt, m.jitter())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.clock.After(wait):
		}
	}

	retryAfter := last.TTL
	if retryAfter <= 0 {
		retryAfter = ttl
	}
	m.log.Info("Lock contended",
		"key", key,
		"holder", holder,
		"current_holder", HolderOf(last.Token),
		"retry_after", retryAfter,
	)
	return nil, &ContentionError{Key: key, Holder: HolderOf(last.Token), RetryAfter: retryAfter}
}

// Release drops key only if token still owns it. It reports false when the
// lock expired or was taken over in the meantime.
func (m *Manager) Release(ctx context.Context, key, token string) (bool, error) {
	if key == "" || token == "" {
		return false, fmt.Errorf("%w: key and token are required", ErrInvalidRequest)
	}

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	released, err := m.backend.Release(opCtx, key, token)
	if err != nil {
		return false, m.classify(ctx, "release", err)
	}
	if !released {
		m.log.Warn("Lock release skipped, token no longer owns key", "key", key, "holder", HolderOf(token))
	}
	return released, nil
}

func (m *Manager) Status(ctx context.Context, key string) (*Status, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidRequest)
	}

	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	token, ttl, err := m.backend.Inspect(opCtx, key)
	if err != nil {
		return nil, m.classify(ctx, "inspect", err)
	}
	if token == "" {
		return &Status{Key: key}, nil
	}
	return &Status{
		Key:        key,
		Locked:     true,
		Holder:     HolderOf(token),
		ExpiresIn:  ttl,
		TTLSeconds: ttl.Seconds(),
	}, nil
}

func (m *Manager) IsLocked(ctx context.Context, key string) (bool, error) {
	st, err := m.Status(ctx, key)
	if err != nil {
		return false, err
	}
	return st.Locked, nil
}

// WithLock runs fn while holding key. fn gets a context detached from the
// caller's cancellation and bounded by the lock TTL, so an abandoned request
// still finishes its critical section and the lock is always released.
func (m *Manager) WithLock(ctx context.Context, key, holder string, ttl time.Duration, fn func(ctx context.Context) error) error {
	grant, err := m.Acquire(ctx, key, holder, ttl)
	if err != nil {
		return err
	}

	lockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ttl)
	defer cancel()

	defer func() {
		// A reentrant grant belongs to the outer caller, which releases it.
		if grant.Reentered {
			return
		}
		if _, err := m.Release(lockCtx, grant.Key, grant.Token); err != nil {
			m.log.Error("Failed to release lock", "key", grant.Key, "holder", holder, "error", err)
		}
	}()

	return fn(lockCtx)
}

func (m *Manager) tryAcquire(ctx context.Context, key, holder, token string, ttl time.Duration) (Attempt, error) {
	opCtx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	res, err := m.backend.TryAcquire(opCtx, key, holder, token, ttl)
	if err != nil {
		return Attempt{}, m.classify(ctx, "acquire", err)
	}
	return res, nil
}

// classify keeps the caller's own cancellation distinct from store failures.
func (m *Manager) classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	m.log.Error("Lock store call failed", "op", op, "error", err)
	return unavailable(op, err)
}

// HolderOf extracts the holder part of a token.
func HolderOf(token string) string {
	holder, _, _ := strings.Cut(token, tokenSeparator)
	return holder
}

func validate(key, holder string, ttl time.Duration) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: key is required", ErrInvalidRequest)
	case holder == "":
		return fmt.Errorf("%w: holder is required", ErrInvalidRequest)
	case strings.Contains(holder, tokenSeparator):
		return fmt.Errorf("%w: holder must not contain %q", ErrInvalidRequest, tokenSeparator)
	case ttl <= 0:
		return fmt.Errorf("%w: ttl must be positive", ErrInvalidRequest)
	}
	return nil
}
