package queue

import (
	"context"
	"time"
)

// Store is the shared backend for queued requests, drain leases and result
// delivery. Lists are pushed on the left and popped on the right.
type Store interface {
	// Push appends raw to the tail of the queue and refreshes its TTL. It
	// returns the queue length after the push.
	Push(ctx context.Context, queueKey string, raw []byte, ttl time.Duration) (int64, error)
	// PushFront puts raw back at the head so it is popped next.
	PushFront(ctx context.Context, queueKey string, raw []byte) error
	// Pop removes the head entry. It returns nil, nil on an empty queue.
	Pop(ctx context.Context, queueKey string) ([]byte, error)
	// Purge deletes the queue and returns whatever was still in it.
	Purge(ctx context.Context, queueKey string) ([][]byte, error)
	Len(ctx context.Context, queueKey string) (int64, error)

	AcquireLease(ctx context.Context, leaseKey, owner string, ttl time.Duration) (bool, error)
	RenewLease(ctx context.Context, leaseKey, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, leaseKey, owner string) error

	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns once the subscription is active, so nothing published
	// afterwards can be missed.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
