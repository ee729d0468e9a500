// Package queuetest provides an in-process queue.Store for tests.
package queuetest

import (
	"context"
	"sync"
	"time"

	"roombook/internal/queue"
)

// Memory keeps lists, leases and subscribers in maps. Lease and list TTLs are
// recorded but never enforced.
type Memory struct {
	mu     sync.Mutex
	lists  map[string][][]byte
	leases map[string]string
	subs   map[string][]*subscription
	ttls   map[string]time.Duration
}

func NewMemory() *Memory {
	return &Memory{
		lists:  make(map[string][][]byte),
		leases: make(map[string]string),
		subs:   make(map[string][]*subscription),
		ttls:   make(map[string]time.Duration),
	}
}

// TTL returns the last TTL set on key.
func (m *Memory) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

// Holder returns the current owner of a lease.
func (m *Memory) Holder(leaseKey string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leases[leaseKey]
}

// Push adds to the head, popping takes from the tail: the same orientation as
// LPUSH/RPOP.
func (m *Memory) Push(_ context.Context, queueKey string, raw []byte, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[queueKey] = append([][]byte{raw}, m.lists[queueKey]...)
	m.ttls[queueKey] = ttl
	return int64(len(m.lists[queueKey])), nil
}

func (m *Memory) PushFront(_ context.Context, queueKey string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[queueKey] = append(m.lists[queueKey], raw)
	return nil
}

func (m *Memory) Pop(_ context.Context, queueKey string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[queueKey]
	if len(l) == 0 {
		return nil, nil
	}
	raw := l[len(l)-1]
	m.lists[queueKey] = l[:len(l)-1]
	return raw, nil
}

func (m *Memory) Purge(_ context.Context, queueKey string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[queueKey]
	delete(m.lists, queueKey)

	out := make([][]byte, 0, len(l))
	for i := len(l) - 1; i >= 0; i-- {
		out = append(out, l[i])
	}
	return out, nil
}

func (m *Memory) Len(_ context.Context, queueKey string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.lists[queueKey])), nil
}

func (m *Memory) AcquireLease(_ context.Context, leaseKey, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.leases[leaseKey]; held {
		return false, nil
	}
	m.leases[leaseKey] = owner
	m.ttls[leaseKey] = ttl
	return true, nil
}

func (m *Memory) RenewLease(_ context.Context, leaseKey, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leases[leaseKey] != owner {
		return false, nil
	}
	m.ttls[leaseKey] = ttl
	return true, nil
}

func (m *Memory) ReleaseLease(_ context.Context, leaseKey, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leases[leaseKey] == owner {
		delete(m.leases, leaseKey)
	}
	return nil
}

func (m *Memory) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs[channel] {
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, channel string) (queue.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &subscription{m: m, channel: channel, ch: make(chan []byte, 64)}
	m.subs[channel] = append(m.subs[channel], s)
	return s, nil
}

type subscription struct {
	m       *Memory
	channel string
	ch      chan []byte
	once    sync.Once
}

func (s *subscription) Messages() <-chan []byte { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.m.mu.Lock()
		defer s.m.mu.Unlock()
		subs := s.m.subs[s.channel]
		for i, other := range subs {
			if other == s {
				s.m.subs[s.channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(s.ch)
	})
	return nil
}
