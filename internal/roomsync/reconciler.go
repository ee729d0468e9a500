// Package roomsync keeps room status in step with booking events. The
// bookings service already updates rooms inline, best-effort; this consumer
// replays the same mapping so a missed update is repaired.
package roomsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"roombook/internal/notify"
	"roombook/pkg/client"
	"roombook/pkg/kafka"
	"roombook/pkg/logger"
	"roombook/pkg/model"
)

type RoomStatusSetter interface {
	SetStatus(ctx context.Context, id int64, status model.RoomStatus) error
}

type Reconciler struct {
	rooms RoomStatusSetter
	log   *logger.Logger
}

func NewReconciler(rooms RoomStatusSetter, log *logger.Logger) *Reconciler {
	return &Reconciler{rooms: rooms, log: log.Component("roomsync")}
}

// Handle is a kafka.MessageHandler.
func (r *Reconciler) Handle(ctx context.Context, msg kafka.Message) error {
	var env notify.Envelope
	if err := msg.DecodeValue(&env); err != nil {
		return err
	}
	if env.RoomID <= 0 {
		return kafka.NewPermanentError("event has no room", fmt.Errorf("booking %q", env.BookingID))
	}

	target, ok := roomStatusFor(env)
	if !ok {
		return nil
	}

	if err := r.rooms.SetStatus(ctx, env.RoomID, target); err != nil {
		return classify(err)
	}

	r.log.Info("Room status reconciled",
		"room_id", env.RoomID,
		"booking_id", env.BookingID,
		"event", env.Event,
		"room_status", target,
	)
	return nil
}

func roomStatusFor(env notify.Envelope) (model.RoomStatus, bool) {
	switch env.Event {
	case notify.EventConfirmed, notify.EventCancelled, notify.EventCompleted:
		return model.RoomStatusAfter(env.Status)
	case notify.EventCreated:
		// A booking created straight into confirmed occupies the room.
		if env.Status == model.StatusConfirmed {
			return model.RoomOccupied, true
		}
	}
	return "", false
}

// classify makes a missing room or a rejected update permanent and leaves
// everything else to the consumer's retry.
func classify(err error) error {
	if errors.Is(err, client.ErrNotFound) {
		return kafka.NewPermanentError("room not found", err)
	}
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode < http.StatusInternalServerError {
		return kafka.NewPermanentError("room update rejected", err)
	}
	return kafka.NewTransientError("room service unavailable", err)
}
