package client

import (
	"database/sql"

	"roombook/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Client holds the shared connections of a service process. Only the ones a
// service asked for are set.
type Client struct {
	Redis    *redis.Client
	Mongo    *mongo.Client
	Postgres *sql.DB
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) GracefulShutdown(log *logger.Logger) {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("Failed to close Redis client", "error", err)
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(); err != nil {
			log.Warn("Failed to close Postgres pool", "error", err)
		}
	}
	if c.Mongo != nil {
		ctx, cancel := shutdownContext()
		defer cancel()
		if err := c.Mongo.Disconnect(ctx); err != nil {
			log.Warn("Failed to disconnect MongoDB", "error", err)
		}
	}
	log.Info("Client connections closed")
}
