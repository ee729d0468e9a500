package notify

import (
	"time"

	"roombook/pkg/model"
)

type Event string

const (
	EventCreated   Event = "booking.created"
	EventConfirmed Event = "booking.confirmed"
	EventCancelled Event = "booking.cancelled"
	EventCompleted Event = "booking.completed"
	EventModified  Event = "booking.modified"
	// EventNotice is a free-form message from staff to the guest.
	EventNotice Event = "booking.notice"
)

// SchemaVersion is bumped whenever Envelope changes incompatibly.
const SchemaVersion = "1"

// EventFor maps a status a booking just entered to the event announcing it.
func EventFor(status model.BookingStatus) Event {
	switch status {
	case model.StatusConfirmed:
		return EventConfirmed
	case model.StatusCancelled:
		return EventCancelled
	case model.StatusCompleted:
		return EventCompleted
	default:
		return EventCreated
	}
}

// Envelope is the payload published for every booking event.
type Envelope struct {
	Event         Event               `json:"event"`
	BookingID     string              `json:"bookingId"`
	UserID        int64               `json:"userId"`
	RoomID        int64               `json:"roomId"`
	Status        model.BookingStatus `json:"status"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus"`
	CheckIn       time.Time           `json:"checkIn"`
	CheckOut      time.Time           `json:"checkOut"`
	TotalPrice    float64             `json:"totalPrice"`
	Actor         string              `json:"actor,omitempty"`
	Note          string              `json:"note,omitempty"`
	Message       string              `json:"message,omitempty"`
	NoticeType    string              `json:"noticeType,omitempty"`
	OccurredAt    time.Time           `json:"occurredAt"`
}

func NewEnvelope(b *model.Booking, event Event, at time.Time) Envelope {
	return Envelope{
		Event:         event,
		BookingID:     b.ID,
		UserID:        b.UserID,
		RoomID:        b.RoomID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		CheckIn:       b.CheckIn,
		CheckOut:      b.CheckOut,
		TotalPrice:    b.TotalPrice,
		Actor:         b.StatusUpdatedBy,
		Note:          b.AdminNote,
		OccurredAt:    at.UTC(),
	}
}

// NoticeEnvelope wraps a staff message about b.
func NoticeEnvelope(b *model.Booking, req model.NotifyRequest, at time.Time) Envelope {
	env := NewEnvelope(b, EventNotice, at)
	env.Message = req.Message
	env.NoticeType = req.Type
	if env.NoticeType == "" {
		env.NoticeType = "info"
	}
	return env
}
