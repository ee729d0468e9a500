package lock

import (
	"time"

	"roombook/pkg/config"
)

type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	JitterFactor      float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       config.DefaultLockRetryAttempts,
		InitialBackoff:    config.DefaultLockRetryInitialBackoff,
		MaxBackoff:        config.DefaultLockRetryMaxBackoff,
		BackoffMultiplier: config.DefaultLockRetryMultiplier,
		JitterFactor:      config.DefaultLockRetryJitter,
	}
}

func RetryPolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       cfg.LockRetryAttempts,
		InitialBackoff:    cfg.LockRetryInitialBackoff,
		MaxBackoff:        cfg.LockRetryMaxBackoff,
		BackoffMultiplier: cfg.LockRetryMultiplier,
		JitterFactor:      cfg.LockRetryJitter,
	}
}

// Backoff returns the wait before attempt+1. r must be in [0, 1); it spreads
// the jitter symmetrically around the exponential base.
func (p RetryPolicy) Backoff(attempt int, r float64) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.BackoffMultiplier
	}
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	if p.JitterFactor > 0 {
		backoff += (r*2 - 1) * p.JitterFactor * backoff
	}

	if backoff < 0 {
		return 0
	}
	return time.Duration(backoff)
}
