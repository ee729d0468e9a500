package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

type RoomStatus string

const (
	RoomAvailable   RoomStatus = "available"
	RoomOccupied    RoomStatus = "occupied"
	RoomMaintenance RoomStatus = "maintenance"
)

type Room struct {
	ID         int64      `json:"id"`
	RoomNumber string     `json:"roomNumber"`
	RoomType   string     `json:"roomType"`
	Price      Price      `json:"price"`
	Status     RoomStatus `json:"status"`
}

// Price decodes from a JSON number or a decimal string ("150.00"), since the
// room service serializes DECIMAL columns as strings.
type Price float64

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*p = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*p = Price(v)
	return nil
}

func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(p))
}

type TrustLevel string

const (
	TrustLow    TrustLevel = "low"
	TrustMedium TrustLevel = "medium"
	TrustHigh   TrustLevel = "high"
)

type User struct {
	ID         int64      `json:"id"`
	Email      string     `json:"email"`
	TrustLevel TrustLevel `json:"trustLevel"`
}

// RoomStatusAfter is the room status a booking entering s implies. The
// second result is false for statuses that leave the room untouched.
func RoomStatusAfter(s BookingStatus) (RoomStatus, bool) {
	switch s {
	case StatusConfirmed:
		return RoomOccupied, true
	case StatusCancelled, StatusCompleted:
		return RoomAvailable, true
	}
	return "", false
}
