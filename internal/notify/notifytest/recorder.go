// Package notifytest provides an in-memory notify.Notifier.
package notifytest

import (
	"context"
	"sync"

	"roombook/internal/notify"
	"roombook/pkg/model"
)

type Sent struct {
	BookingID string
	Event     notify.Event
	Status    model.BookingStatus
	Message   string
}

type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	err  error
}

var _ notify.Notifier = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes every later call fail with err after recording it.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Notify(_ context.Context, b *model.Booking, event notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{BookingID: b.ID, Event: event, Status: b.Status})
	return r.err
}

func (r *Recorder) Notice(_ context.Context, b *model.Booking, req model.NotifyRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{BookingID: b.ID, Event: notify.EventNotice, Status: b.Status, Message: req.Message})
	return r.err
}

func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// Events lists the events recorded for one booking, oldest first.
func (r *Recorder) Events(bookingID string) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, s := range r.sent {
		if s.BookingID == bookingID {
			out = append(out, s.Event)
		}
	}
	return out
}
