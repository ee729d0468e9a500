package kafka_middleware

import (
	"context"
	"errors"
	"testing"

	"roombook/pkg/kafka"
	"roombook/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_CountsOutcomes(t *testing.T) {
	m := NewMetrics()
	publish := m.Producer()
	consume := LoggingConsumerMiddleware(logger.Discard())

	ok := func(context.Context, kafka.Message) error { return nil }
	boom := func(context.Context, kafka.Message) error { return errors.New("boom") }

	assert.NoError(t, publish(context.Background(), kafka.Message{}, ok))
	assert.Error(t, publish(context.Background(), kafka.Message{}, boom))

	counted := m.Consumer()
	assert.NoError(t, consume(context.Background(), kafka.Message{}, func(ctx context.Context, msg kafka.Message) error {
		return counted(ctx, msg, ok)
	}))
	assert.Error(t, counted(context.Background(), kafka.Message{}, boom))
	assert.Error(t, counted(context.Background(), kafka.Message{}, boom))

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Published)
	assert.Equal(t, int64(1), s.PublishFailed)
	assert.Equal(t, int64(1), s.Consumed)
	assert.Equal(t, int64(2), s.ConsumeFailed)
}

func TestMetrics_EmptySnapshot(t *testing.T) {
	s := NewMetrics().Snapshot()
	assert.Zero(t, s.AvgPublishDuration)
	assert.Zero(t, s.AvgConsumeDuration)
}
