// Package repositorytest provides an in-memory BookingRepository for tests.
package repositorytest

import (
	"context"
	"sort"
	"sync"
	"time"

	bookingserrors "roombook/internal/bookings/errors"
	"roombook/pkg/model"

	"github.com/google/uuid"
)

// Memory enforces the same overlap rule as the database constraint.
type Memory struct {
	mu       sync.Mutex
	bookings map[string]*model.Booking
	err      error
	persists int
}

func NewMemory() *Memory {
	return &Memory{bookings: make(map[string]*model.Booking)}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Seed stores b as-is, bypassing the overlap check.
func (m *Memory) Seed(b *model.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	c := *b
	m.bookings[b.ID] = &c
}

// Get returns a copy of the stored booking, or nil.
func (m *Memory) Get(id string) *model.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil
	}
	c := *b
	return &c
}

// Persists counts successful inserts.
func (m *Memory) Persists() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persists
}

func (m *Memory) FindOverlapping(_ context.Context, iv model.Interval, statuses []model.BookingStatus, excludeID string) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.overlappingLocked(iv, statuses, excludeID), nil
}

func (m *Memory) overlappingLocked(iv model.Interval, statuses []model.BookingStatus, excludeID string) []*model.Booking {
	var out []*model.Booking
	for _, b := range m.sortedLocked() {
		if b.ID == excludeID || !hasStatus(statuses, b.Status) {
			continue
		}
		if b.Interval().Overlaps(iv) {
			c := *b
			out = append(out, &c)
		}
	}
	return out
}

func (m *Memory) Persist(_ context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if b.Status.IsActive() && len(m.overlappingLocked(b.Interval(), model.ActiveStatuses, "")) > 0 {
		return bookingserrors.ErrUnavailable
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	c := *b
	m.bookings[b.ID] = &c
	m.persists++
	return nil
}

func (m *Memory) FindByID(_ context.Context, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	c := *b
	return &c, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, from model.BookingStatus, change model.StatusChange) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	if b.Status != from {
		return nil, bookingserrors.ErrStatusChanged
	}
	change.Apply(b)
	c := *b
	return &c, nil
}

func (m *Memory) UpdateDetails(_ context.Context, id string, from model.BookingStatus, change model.DetailsChange) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	b, ok := m.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	if b.Status != from {
		return nil, bookingserrors.ErrStatusChanged
	}
	iv := model.Interval{RoomID: b.RoomID, CheckIn: change.CheckIn, CheckOut: change.CheckOut}
	if len(m.overlappingLocked(iv, model.ActiveStatuses, id)) > 0 {
		return nil, bookingserrors.ErrUnavailable
	}
	change.Apply(b)
	c := *b
	return &c, nil
}

func (m *Memory) FindExpiredPending(_ context.Context, cutoff time.Time) ([]*model.Booking, error) {
	return m.collect(func(b *model.Booking) bool {
		return b.Status == model.StatusPending && !b.AutoConfirm && b.CreatedAt.Before(cutoff)
	})
}

func (m *Memory) FindPendingAutoConfirm(_ context.Context) ([]*model.Booking, error) {
	return m.collect(func(b *model.Booking) bool {
		return b.Status == model.StatusPending && b.AutoConfirm
	})
}

func (m *Memory) Find(_ context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, error) {
	all, err := m.collect(func(b *model.Booking) bool { return matches(filter, b) })
	if err != nil {
		return nil, err
	}
	if offset >= int64(len(all)) {
		return []*model.Booking{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *Memory) Count(_ context.Context, filter model.BookingFilter) (int64, error) {
	all, err := m.collect(func(b *model.Booking) bool { return matches(filter, b) })
	return int64(len(all)), err
}

func (m *Memory) Stats(_ context.Context, since time.Time) (*model.BookingStats, error) {
	all, err := m.collect(func(*model.Booking) bool { return true })
	if err != nil {
		return nil, err
	}

	stats := &model.BookingStats{ByStatus: make(map[model.BookingStatus]int64)}
	months := map[string]*model.MonthlyStat{}
	var order []string
	for _, b := range all {
		stats.Total++
		stats.ByStatus[b.Status]++
		if b.CreatedAt.Before(since) {
			continue
		}
		key := b.CreatedAt.UTC().Format("2006-01")
		ms, ok := months[key]
		if !ok {
			ms = &model.MonthlyStat{Month: key}
			months[key] = ms
			order = append(order, key)
		}
		ms.Count++
		if b.Status == model.StatusConfirmed || b.Status == model.StatusCompleted {
			ms.Revenue += b.TotalPrice
		}
	}
	sort.Strings(order)
	for _, k := range order {
		stats.Monthly = append(stats.Monthly, *months[k])
	}
	return stats, nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Memory) collect(keep func(*model.Booking) bool) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*model.Booking
	for _, b := range m.sortedLocked() {
		if keep(b) {
			c := *b
			out = append(out, &c)
		}
	}
	return out, nil
}

// sortedLocked orders newest first, matching the database listings.
func (m *Memory) sortedLocked() []*model.Booking {
	out := make([]*model.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func matches(f model.BookingFilter, b *model.Booking) bool {
	switch {
	case f.UserID != nil && b.UserID != *f.UserID:
		return false
	case f.RoomID != nil && b.RoomID != *f.RoomID:
		return false
	case f.Status != nil && b.Status != *f.Status:
		return false
	case f.From != nil && b.CheckIn.Before(*f.From):
		return false
	case f.To != nil && b.CheckIn.After(*f.To):
		return false
	case f.CreatedAfter != nil && b.CreatedAt.Before(*f.CreatedAfter):
		return false
	}
	return true
}

func hasStatus(statuses []model.BookingStatus, s model.BookingStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
