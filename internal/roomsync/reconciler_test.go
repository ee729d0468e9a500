package roomsync

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"roombook/internal/notify"
	"roombook/pkg/client"
	"roombook/pkg/kafka"
	"roombook/pkg/logger"
	"roombook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	room   int64
	status model.RoomStatus
}

type fakeRooms struct {
	calls []call
	err   error
}

func (f *fakeRooms) SetStatus(_ context.Context, id int64, status model.RoomStatus) error {
	f.calls = append(f.calls, call{id, status})
	return f.err
}

func message(t *testing.T, env notify.Envelope) kafka.Message {
	t.Helper()
	msg, err := kafka.NewMessage().WithKey(env.BookingID).WithValue(env).Build()
	require.NoError(t, err)
	return msg
}

func TestReconciler_AppliesRoomStatus(t *testing.T) {
	tests := []struct {
		name  string
		event notify.Event
		state model.BookingStatus
		want  []call
	}{
		{"confirmed occupies", notify.EventConfirmed, model.StatusConfirmed, []call{{9, model.RoomOccupied}}},
		{"cancelled frees", notify.EventCancelled, model.StatusCancelled, []call{{9, model.RoomAvailable}}},
		{"completed frees", notify.EventCompleted, model.StatusCompleted, []call{{9, model.RoomAvailable}}},
		{"created confirmed occupies", notify.EventCreated, model.StatusConfirmed, []call{{9, model.RoomOccupied}}},
		{"created pending ignored", notify.EventCreated, model.StatusPending, nil},
		{"modified ignored", notify.EventModified, model.StatusConfirmed, nil},
		{"notice ignored", notify.EventNotice, model.StatusConfirmed, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms := &fakeRooms{}
			r := NewReconciler(rooms, logger.Discard())

			err := r.Handle(context.Background(), message(t, notify.Envelope{
				Event: tt.event, BookingID: "b-1", RoomID: 9, Status: tt.state,
			}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, rooms.calls)
		})
	}
}

func TestReconciler_ClassifiesFailures(t *testing.T) {
	env := notify.Envelope{Event: notify.EventConfirmed, BookingID: "b-1", RoomID: 9, Status: model.StatusConfirmed}

	tests := []struct {
		name string
		err  error
		want kafka.ErrorType
	}{
		{"missing room", client.ErrNotFound, kafka.ErrorTypePermanent},
		{"bad request", &client.StatusError{StatusCode: http.StatusBadRequest}, kafka.ErrorTypePermanent},
		{"server error", &client.StatusError{StatusCode: http.StatusBadGateway}, kafka.ErrorTypeTransient},
		{"network", errors.New("dial tcp: connection refused"), kafka.ErrorTypeTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReconciler(&fakeRooms{err: tt.err}, logger.Discard())
			err := r.Handle(context.Background(), message(t, env))
			require.Error(t, err)
			assert.Equal(t, tt.want, kafka.ClassifyError(err))
		})
	}
}

func TestReconciler_RejectsMalformedEvents(t *testing.T) {
	r := NewReconciler(&fakeRooms{}, logger.Discard())

	err := r.Handle(context.Background(), kafka.Message{Key: "b-1", Value: []byte("{")})
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))

	err = r.Handle(context.Background(), message(t, notify.Envelope{Event: notify.EventConfirmed, BookingID: "b-1"}))
	assert.Equal(t, kafka.ErrorTypePermanent, kafka.ClassifyError(err))
}
