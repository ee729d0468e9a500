package notify

import (
	"context"
	"fmt"

	"roombook/pkg/clock"
	"roombook/pkg/kafka"
	"roombook/pkg/logger"
	"roombook/pkg/model"
)

// Notifier announces booking events to the outside world. Callers treat
// failures as best-effort and never roll a booking back over them.
type Notifier interface {
	Notify(ctx context.Context, booking *model.Booking, event Event) error
	Notice(ctx context.Context, booking *model.Booking, req model.NotifyRequest) error
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaNotifier publishes one message per event, keyed by booking id so
// events for a booking stay ordered within a partition.
type KafkaNotifier struct {
	publisher Publisher
	source    string
	clock     clock.Clock
	log       *logger.Logger
}

func NewKafkaNotifier(publisher Publisher, source string, clk clock.Clock, log *logger.Logger) *KafkaNotifier {
	if clk == nil {
		clk = clock.Real()
	}
	return &KafkaNotifier{
		publisher: publisher,
		source:    source,
		clock:     clk,
		log:       log.Component("notify"),
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, b *model.Booking, event Event) error {
	return n.publish(ctx, NewEnvelope(b, event, n.clock.Now()))
}

func (n *KafkaNotifier) Notice(ctx context.Context, b *model.Booking, req model.NotifyRequest) error {
	return n.publish(ctx, NoticeEnvelope(b, req, n.clock.Now()))
}

func (n *KafkaNotifier) publish(ctx context.Context, env Envelope) error {
	msg, err := kafka.NewMessage().
		WithKey(env.BookingID).
		WithValue(env).
		WithEventType(string(env.Event)).
		WithSchemaVersion(SchemaVersion).
		WithSource(n.source).
		WithTimestamp(env.OccurredAt).
		Build()
	if err != nil {
		return fmt.Errorf("build %s message: %w", env.Event, err)
	}

	if err := n.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for booking %s: %w", env.Event, env.BookingID, err)
	}
	n.log.Debug("Booking event published", "event", env.Event, "booking_id", env.BookingID, "event_id", msg.GetEventID())
	return nil
}

// LogNotifier records events in the service log. It backs deployments that
// run without a broker.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.Component("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, b *model.Booking, event Event) error {
	n.log.Info("Booking notification",
		"event", event,
		"booking_id", b.ID,
		"user_id", b.UserID,
		"room_id", b.RoomID,
		"status", b.Status,
	)
	return nil
}

func (n *LogNotifier) Notice(_ context.Context, b *model.Booking, req model.NotifyRequest) error {
	n.log.Info("Notification sent to guest",
		"booking_id", b.ID,
		"user_id", b.UserID,
		"type", req.Type,
		"message", req.Message,
	)
	return nil
}
