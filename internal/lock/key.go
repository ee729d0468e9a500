package lock

import "roombook/pkg/model"

const KeyPrefix = "booking_lock:"

// Key is the unit of mutual exclusion: one room over one stay.
func Key(iv model.Interval) string {
	return KeyPrefix + iv.String()
}
