package model

import (
	"fmt"
	"math"
	"time"
)

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// ActiveStatuses are the statuses that occupy a room interval.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed}

func (s BookingStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// Actors recorded in StatusUpdatedBy when no human triggered the change.
const (
	ActorSystem = "system"
)

type Booking struct {
	ID              string        `json:"id" bson:"_id"`
	UserID          int64         `json:"userId" bson:"user_id"`
	RoomID          int64         `json:"roomId" bson:"room_id"`
	CheckIn         time.Time     `json:"checkIn" bson:"check_in"`
	CheckOut        time.Time     `json:"checkOut" bson:"check_out"`
	Guests          int           `json:"numberOfGuests" bson:"guests"`
	SpecialRequests string        `json:"specialRequests,omitempty" bson:"special_requests,omitempty"`
	Status          BookingStatus `json:"status" bson:"status"`
	PaymentMethod   PaymentMethod `json:"paymentMethod" bson:"payment_method"`
	PaymentStatus   PaymentStatus `json:"paymentStatus" bson:"payment_status"`
	TotalPrice      float64       `json:"totalPrice" bson:"total_price"`
	AutoConfirm     bool          `json:"autoConfirm" bson:"auto_confirm"`
	CreatedAt       time.Time     `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" bson:"updated_at"`
	StatusUpdatedAt *time.Time    `json:"statusUpdatedAt,omitempty" bson:"status_updated_at,omitempty"`
	StatusUpdatedBy string        `json:"statusUpdatedBy,omitempty" bson:"status_updated_by,omitempty"`
	AdminNote       string        `json:"adminNote,omitempty" bson:"admin_note,omitempty"`
}

func (b *Booking) Interval() Interval {
	return Interval{RoomID: b.RoomID, CheckIn: b.CheckIn, CheckOut: b.CheckOut}
}

// StatusChange is a compare-and-set status write: it applies only while the
// booking is still in the expected status.
type StatusChange struct {
	To            BookingStatus
	PaymentStatus PaymentStatus
	Actor         string
	Note          string
	At            time.Time
}

// Apply mutates b the way a repository persists the change.
func (c StatusChange) Apply(b *Booking) {
	at := c.At
	b.Status = c.To
	if c.PaymentStatus != "" {
		b.PaymentStatus = c.PaymentStatus
	}
	b.StatusUpdatedAt = &at
	b.StatusUpdatedBy = c.Actor
	if c.Note != "" {
		b.AdminNote = c.Note
	}
	b.UpdatedAt = at
}

// DetailsChange rewrites the modifiable fields of a booking.
type DetailsChange struct {
	CheckIn         time.Time
	CheckOut        time.Time
	Guests          int
	SpecialRequests string
	TotalPrice      float64
	At              time.Time
}

func (c DetailsChange) Apply(b *Booking) {
	b.CheckIn = c.CheckIn
	b.CheckOut = c.CheckOut
	b.Guests = c.Guests
	b.SpecialRequests = c.SpecialRequests
	b.TotalPrice = c.TotalPrice
	b.UpdatedAt = c.At
}

// Interval is a half-open [CheckIn, CheckOut) stay on one room.
type Interval struct {
	RoomID   int64
	CheckIn  time.Time
	CheckOut time.Time
}

func (i Interval) Valid() bool {
	return i.CheckIn.Before(i.CheckOut)
}

// Overlaps reports whether two intervals on the same room intersect.
// Back-to-back stays (one checks out as the other checks in) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.RoomID == o.RoomID && i.CheckIn.Before(o.CheckOut) && o.CheckIn.Before(i.CheckOut)
}

// Nights is the number of started 24h periods in the stay.
func (i Interval) Nights() int {
	if !i.Valid() {
		return 0
	}
	return int(math.Ceil(i.CheckOut.Sub(i.CheckIn).Hours() / 24))
}

func (i Interval) String() string {
	return fmt.Sprintf("%d:%s:%s", i.RoomID, FormatDate(i.CheckIn), FormatDate(i.CheckOut))
}

const dateLayout = "2006-01-02"

// ParseDate accepts a calendar date (interpreted as UTC midnight) or an RFC3339 instant.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatDate renders UTC midnights as YYYY-MM-DD and anything else as RFC3339.
func FormatDate(t time.Time) string {
	t = t.UTC()
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}

// BookingRequest is the create payload.
type BookingRequest struct {
	RoomID          int64         `json:"roomId" validate:"required,gt=0"`
	CheckIn         string        `json:"checkIn" validate:"required,booking_date"`
	CheckOut        string        `json:"checkOut" validate:"required,booking_date"`
	Guests          int           `json:"numberOfGuests" validate:"required,min=1,max=20"`
	PaymentMethod   PaymentMethod `json:"paymentMethod" validate:"omitempty,oneof=cash card transfer"`
	AutoConfirm     bool          `json:"autoConfirm"`
	SpecialRequests string        `json:"specialRequests" validate:"max=1000"`
	// Wait asks the service to queue the request on contention instead of
	// failing fast.
	Wait bool `json:"wait"`
}

// BookingModification is the modify payload. Nil fields keep their current value.
type BookingModification struct {
	CheckIn         *string `json:"checkIn,omitempty" validate:"omitempty,booking_date"`
	CheckOut        *string `json:"checkOut,omitempty" validate:"omitempty,booking_date"`
	Guests          *int    `json:"numberOfGuests,omitempty" validate:"omitempty,min=1,max=20"`
	SpecialRequests *string `json:"specialRequests,omitempty" validate:"omitempty,max=1000"`
}

// StatusUpdateRequest is the admin status payload.
type StatusUpdateRequest struct {
	Status BookingStatus `json:"status" validate:"required,oneof=pending confirmed cancelled completed"`
	Note   string        `json:"note" validate:"max=500"`
}

// NotifyRequest is the admin free-form notification payload.
type NotifyRequest struct {
	Message string `json:"message" validate:"required,min=1,max=1000"`
	Type    string `json:"type" validate:"omitempty,oneof=info warning reminder"`
}

type BookingFilter struct {
	UserID *int64
	RoomID *int64
	Status *BookingStatus
	// From and To bound CheckIn.
	From *time.Time
	To   *time.Time
	// CreatedAfter bounds CreatedAt.
	CreatedAfter *time.Time
}

type BookingStats struct {
	Total    int64                   `json:"total"`
	ByStatus map[BookingStatus]int64 `json:"byStatus"`
	Monthly  []MonthlyStat           `json:"monthly"`
}

type MonthlyStat struct {
	Month   string  `json:"month"`
	Count   int64   `json:"count"`
	Revenue float64 `json:"revenue"`
}
