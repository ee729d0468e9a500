package lock

import (
	"context"
	"time"
)

type Outcome int

const (
	Denied Outcome = iota
	Acquired
	Extended
)

func (o Outcome) String() string {
	switch o {
	case Acquired:
		return "acquired"
	case Extended:
		return "extended"
	default:
		return "denied"
	}
}

// Attempt is the result of a single atomic acquire call.
type Attempt struct {
	Outcome Outcome
	// Token is the live token: the new one on Acquired, the existing one on
	// Extended or Denied.
	Token string
	// TTL left on the holder's record when Denied.
	TTL time.Duration
}

// Backend is the shared store behind the Manager. Each method must be atomic
// on the store side; the Manager adds retries and validation on top.
type Backend interface {
	// TryAcquire sets key to token when the key is free, extends the TTL
	// when the live token belongs to holder, and reports Denied otherwise.
	TryAcquire(ctx context.Context, key, holder, token string, ttl time.Duration) (Attempt, error)
	// Release deletes key only when its value equals token.
	Release(ctx context.Context, key, token string) (bool, error)
	// Inspect returns the live token and remaining TTL, or "" when free.
	Inspect(ctx context.Context, key string) (string, time.Duration, error)
}
