// Package locktest provides an in-process lock.Backend for tests.
package locktest

import (
	"context"
	"strings"
	"sync"
	"time"

	"roombook/internal/lock"
	"roombook/pkg/clock"
)

type record struct {
	token     string
	expiresAt time.Time
}

// Memory mirrors the Redis scripts on a map, with expiry driven by a clock.
type Memory struct {
	mu      sync.Mutex
	clock   clock.Clock
	records map[string]record
	err     error
	calls   int
}

func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.Real()
	}
	return &Memory{clock: c, records: make(map[string]record)}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls counts TryAcquire invocations.
func (m *Memory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Token returns the live token for key.
func (m *Memory) Token(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.liveLocked(key)
	if !ok {
		return ""
	}
	return r.token
}

func (m *Memory) TryAcquire(_ context.Context, key, holder, token string, ttl time.Duration) (lock.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return lock.Attempt{}, m.err
	}

	now := m.clock.Now()
	r, ok := m.liveLocked(key)
	if !ok {
		m.records[key] = record{token: token, expiresAt: now.Add(ttl)}
		return lock.Attempt{Outcome: lock.Acquired, Token: token}, nil
	}
	if owner, _, _ := strings.Cut(r.token, "/"); owner == holder {
		r.expiresAt = now.Add(ttl)
		m.records[key] = r
		return lock.Attempt{Outcome: lock.Extended, Token: r.token}, nil
	}
	return lock.Attempt{Outcome: lock.Denied, Token: r.token, TTL: r.expiresAt.Sub(now)}, nil
}

func (m *Memory) Release(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}

	r, ok := m.liveLocked(key)
	if !ok || r.token != token {
		return false, nil
	}
	delete(m.records, key)
	return true, nil
}

func (m *Memory) Inspect(_ context.Context, key string) (string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", 0, m.err
	}

	r, ok := m.liveLocked(key)
	if !ok {
		return "", 0, nil
	}
	return r.token, r.expiresAt.Sub(m.clock.Now()), nil
}

func (m *Memory) liveLocked(key string) (record, bool) {
	r, ok := m.records[key]
	if !ok {
		return record{}, false
	}
	if !m.clock.Now().Before(r.expiresAt) {
		delete(m.records, key)
		return record{}, false
	}
	return r, true
}
