package main

import (
	"context"
	"time"

	mongoMigration "roombook/internal/migrations/mongo"
	postgresMigration "roombook/internal/migrations/postgres"
	"roombook/pkg/config"
)

const JobName = "booking-migration"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.SetAvailabilityStore()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting migration job", "driver", cfg.AvailabilityDriver)

	var err error
	switch cfg.AvailabilityDriver {
	case config.DriverMongo:
		err = mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log)
	default:
		err = postgresMigration.RunMigration(ctx, cfg.Client.Postgres, cfg.Log)
	}
	if err != nil {
		cfg.GracefulShutdown()
		cfg.Log.Fatal("Migration failed", "error", err)
	}

	cfg.Log.Info("Migration completed successfully")
}
