package config

const (
	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRedisAddr        = "REDIS_ADDR"
	EnvRedisPassword    = "REDIS_PASSWORD"
	EnvRedisDB          = "REDIS_DB"
	EnvRedisDialTimeout = "REDIS_DIAL_TIMEOUT"

	EnvAvailabilityDriver = "AVAILABILITY_DRIVER"
	EnvPostgresDSN        = "POSTGRES_DSN"
	EnvPostgresMaxConns   = "POSTGRES_MAX_CONNS"
	EnvMongoURI           = "MONGO_URI"
	EnvMongoDatabaseName  = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout   = "MONGO_CONN_TIMEOUT"

	EnvRoomServiceURL      = "ROOM_SERVICE_URL"
	EnvUserServiceURL      = "USER_SERVICE_URL"
	EnvExternalCallTimeout = "EXTERNAL_CALL_TIMEOUT"

	EnvKafkaEnabled       = "KAFKA_ENABLED"
	EnvBookingEventsTopic = "BOOKING_EVENTS_TOPIC"
	EnvBookingEventsDLQ   = "BOOKING_EVENTS_DLQ_TOPIC"
	EnvRoomSyncGroupID    = "ROOM_SYNC_GROUP_ID"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvLockTTL                 = "LOCK_TTL"
	EnvLockRetryAttempts       = "LOCK_RETRY_ATTEMPTS"
	EnvLockRetryInitialBackoff = "LOCK_RETRY_INITIAL_BACKOFF"
	EnvLockRetryMaxBackoff     = "LOCK_RETRY_MAX_BACKOFF"
	EnvLockRetryMultiplier     = "LOCK_RETRY_MULTIPLIER"
	EnvLockRetryJitter         = "LOCK_RETRY_JITTER"

	EnvQueueTTL         = "QUEUE_TTL"
	EnvQueueWaitTimeout = "QUEUE_WAIT_TIMEOUT"
	EnvQueueLeaseTTL    = "QUEUE_LEASE_TTL"

	EnvAutoConfirmDelay  = "AUTO_CONFIRM_DELAY"
	EnvPendingExpiry     = "PENDING_EXPIRY"
	EnvSweepInterval     = "SWEEP_INTERVAL"
	EnvCancelWindow      = "CANCEL_WINDOW"
	EnvModifyWindow      = "MODIFY_WINDOW"
	EnvPendingListWindow = "PENDING_LIST_WINDOW"
	EnvMaxStayNights     = "MAX_STAY_NIGHTS"
)
