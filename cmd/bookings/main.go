package main

import (
	"context"
	"time"

	"roombook/internal/bookings/handler"
	"roombook/internal/bookings/repository"
	"roombook/internal/bookings/service"
	"roombook/internal/bookings/validator"
	"roombook/internal/lock"
	"roombook/internal/notify"
	"roombook/internal/queue"
	"roombook/pkg/app"
	"roombook/pkg/client"
	"roombook/pkg/config"
	"roombook/pkg/kafka"
	kafka_config "roombook/pkg/kafka/config"
	kafka_middleware "roombook/pkg/kafka/middleware"
	"roombook/pkg/middleware"
)

const (
	ServiceName    = "bookings"
	restoreTimeout = 30 * time.Second
)

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetRedis()
	cfg.SetAvailabilityStore()

	cfg.Log.Info("Starting Bookings service", "driver", cfg.AvailabilityDriver)

	serverApp := app.NewApplication(cfg)

	repo := initRepository(cfg)
	locks := lock.NewManager(lock.NewRedisBackend(cfg.Client.Redis), cfg.Log, lock.Options{
		Policy: lock.RetryPolicyFromConfig(cfg),
	})
	waitQueue := queue.New(queue.NewRedisStore(cfg.Client.Redis), cfg.Log, queue.OptionsFromConfig(cfg))
	notifier := initNotifier(cfg, serverApp)

	bookingService := service.NewBookingService(service.Deps{
		Repo:      repo,
		Validator: validator.NewBookingValidator(cfg.Log),
		Locks:     locks,
		Queue:     waitQueue,
		Rooms:     client.NewRoomClient(cfg.RoomServiceURL, cfg.ExternalCallTimeout),
		Users:     client.NewUserClient(cfg.UserServiceURL, cfg.ExternalCallTimeout),
		Notifier:  notifier,
	}, cfg)

	restoreAutoConfirms(cfg, bookingService)

	sweeper := service.NewSweeper(bookingService, nil, cfg.SweepInterval, cfg.Log)
	serverApp.Go(sweeper.Run)
	serverApp.OnShutdown(waitQueue.Close)
	serverApp.OnShutdown(bookingService.Close)

	health := handler.NewHealthHandler(map[string]handler.Check{
		"redis": func(ctx context.Context) error { return cfg.Client.Redis.Ping(ctx).Err() },
		"store": repo.Ping,
	}, cfg.Log)

	serverApp.SetApp(
		health,
		middleware.NewRedisIdempotencyStore(cfg.Client.Redis, cfg.IdempotencyTTL),
		handler.NewBookingHandler(bookingService, cfg.Log),
		handler.NewAdminHandler(bookingService, cfg.Log),
	)
	serverApp.Run()
}

func initRepository(cfg *config.Config) repository.BookingRepository {
	if cfg.AvailabilityDriver == config.DriverMongo {
		cfg.Log.Info("Booking store initialized", "driver", config.DriverMongo, "database", cfg.MongoDatabaseName)
		return repository.NewMongoBookingRepository(cfg, cfg.Client.Mongo)
	}
	cfg.Log.Info("Booking store initialized", "driver", config.DriverPostgres)
	return repository.NewPostgresBookingRepository(cfg, cfg.Client.Postgres)
}

// initNotifier publishes booking events to Kafka when enabled and otherwise
// only logs them.
func initNotifier(cfg *config.Config, serverApp *app.Application) notify.Notifier {
	if !cfg.KafkaEnabled {
		cfg.Log.Info("Kafka disabled, booking events are logged only")
		return notify.NewLogNotifier(cfg.Log)
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.BookingEventsTopic, cfg.BookingEventsDLQ, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		metrics := kafka_middleware.NewMetrics()
		producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(metrics.Producer())
		serverApp.OnShutdown(func() {
			cfg.Log.Info("Kafka producer metrics", "snapshot", metrics.Snapshot())
		})
	}
	serverApp.OnShutdown(func() {
		if err := producer.Close(); err != nil {
			cfg.Log.Warn("Failed to close Kafka producer", "error", err)
		}
	})

	return notify.NewKafkaNotifier(producer, ServiceName, nil, cfg.Log)
}

func restoreAutoConfirms(cfg *config.Config, svc service.BookingService) {
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	defer cancel()

	n, err := svc.RestoreAutoConfirms(ctx)
	if err != nil {
		// Not fatal: the bookings stay pending and the expiry sweep still
		// applies to them.
		cfg.Log.Error("Failed to restore auto-confirm timers", "error", err)
		return
	}
	cfg.Log.Info("Auto-confirm timers restored", "count", n)
}
