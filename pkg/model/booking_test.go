package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestInterval_Overlaps(t *testing.T) {
	base := Interval{RoomID: 1, CheckIn: day("2026-11-10"), CheckOut: day("2026-11-13")}

	tests := []struct {
		name  string
		other Interval
		want  bool
	}{
		{"identical", base, true},
		{"inside", Interval{RoomID: 1, CheckIn: day("2026-11-11"), CheckOut: day("2026-11-12")}, true},
		{"straddles start", Interval{RoomID: 1, CheckIn: day("2026-11-08"), CheckOut: day("2026-11-11")}, true},
		{"straddles end", Interval{RoomID: 1, CheckIn: day("2026-11-12"), CheckOut: day("2026-11-20")}, true},
		{"back to back before", Interval{RoomID: 1, CheckIn: day("2026-11-07"), CheckOut: day("2026-11-10")}, false},
		{"back to back after", Interval{RoomID: 1, CheckIn: day("2026-11-13"), CheckOut: day("2026-11-15")}, false},
		{"other room", Interval{RoomID: 2, CheckIn: day("2026-11-10"), CheckOut: day("2026-11-13")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(base), "overlap must be symmetric")
		})
	}
}

func TestInterval_Nights(t *testing.T) {
	assert.Equal(t, 3, Interval{CheckIn: day("2026-11-10"), CheckOut: day("2026-11-13")}.Nights())
	assert.Equal(t, 1, Interval{
		CheckIn:  day("2026-11-10T15:00:00Z"),
		CheckOut: day("2026-11-11T11:00:00Z"),
	}.Nights())
	assert.Equal(t, 0, Interval{CheckIn: day("2026-11-13"), CheckOut: day("2026-11-10")}.Nights())
}

func TestParseAndFormatDate(t *testing.T) {
	d, err := ParseDate("2026-11-10")
	require.NoError(t, err)
	assert.Equal(t, "2026-11-10", FormatDate(d))

	ts, err := ParseDate("2026-11-10T14:30:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, "2026-11-10T12:30:00Z", FormatDate(ts))

	_, err = ParseDate("10/11/2026")
	assert.Error(t, err)
}

func TestStatusChange_Apply(t *testing.T) {
	at := day("2026-11-01T10:00:00Z")
	b := &Booking{Status: StatusPending, PaymentStatus: PaymentPending}

	StatusChange{To: StatusConfirmed, PaymentStatus: PaymentPaid, Actor: ActorSystem, Note: "Auto-confirmed after delay", At: at}.Apply(b)

	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, PaymentPaid, b.PaymentStatus)
	assert.Equal(t, ActorSystem, b.StatusUpdatedBy)
	assert.Equal(t, "Auto-confirmed after delay", b.AdminNote)
	require.NotNil(t, b.StatusUpdatedAt)
	assert.True(t, b.StatusUpdatedAt.Equal(at))
}

func TestRoomPrice_DecodesStringAndNumber(t *testing.T) {
	var fromString, fromNumber Room
	require.NoError(t, json.Unmarshal([]byte(`{"id":7,"price":"150.50","status":"available"}`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`{"id":7,"price":150.5,"status":"available"}`), &fromNumber))

	assert.Equal(t, Price(150.5), fromString.Price)
	assert.Equal(t, fromString.Price, fromNumber.Price)
	assert.Equal(t, RoomAvailable, fromString.Status)
}
