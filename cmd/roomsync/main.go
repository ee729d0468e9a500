package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"roombook/internal/roomsync"
	"roombook/pkg/client"
	"roombook/pkg/config"
	"roombook/pkg/kafka"
	kafka_config "roombook/pkg/kafka/config"
	kafka_middleware "roombook/pkg/kafka/middleware"
)

const ServiceName = "roomsync"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting room status reconciler", "topic", cfg.BookingEventsTopic, "group_id", cfg.RoomSyncGroupID)

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	reconciler := roomsync.NewReconciler(client.NewRoomClient(cfg.RoomServiceURL, cfg.ExternalCallTimeout), cfg.Log)
	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.BookingEventsTopic, cfg.RoomSyncGroupID, cfg.BookingEventsDLQ, reconciler.Handle, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}

	metrics := kafka_middleware.NewMetrics()
	if kafkaCfg.EnableMiddleware {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
		consumer.Use(metrics.Consumer())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Kafka consumer stopped", "error", err)
	}

	if err := consumer.Close(); err != nil {
		cfg.Log.Warn("Failed to close Kafka consumer", "error", err)
	}
	cfg.Log.Info("Room status reconciler stopped", "metrics", metrics.Snapshot())
}
