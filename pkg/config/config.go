package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"roombook/pkg/client"
	"roombook/pkg/logger"
)

type Config struct {
	Port     string
	LogLevel string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisDialTimeout time.Duration

	AvailabilityDriver string
	PostgresDSN        string
	PostgresMaxConns   int
	MongoURI           string
	MongoDatabaseName  string
	MongoConnTimeout   time.Duration

	RoomServiceURL      string
	UserServiceURL      string
	ExternalCallTimeout time.Duration

	KafkaEnabled       bool
	BookingEventsTopic string
	BookingEventsDLQ   string
	RoomSyncGroupID    string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	LockTTL                 time.Duration
	LockRetryAttempts       int
	LockRetryInitialBackoff time.Duration
	LockRetryMaxBackoff     time.Duration
	LockRetryMultiplier     float64
	LockRetryJitter         float64

	QueueTTL         time.Duration
	QueueWaitTimeout time.Duration
	QueueLeaseTTL    time.Duration

	AutoConfirmDelay  time.Duration
	PendingExpiry     time.Duration
	SweepInterval     time.Duration
	CancelWindow      time.Duration
	ModifyWindow      time.Duration
	PendingListWindow time.Duration
	MaxStayNights     int

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the environment, validates the result and logs it. Invalid
// configuration is fatal.
func Load(serviceName string) *Config {
	cfg := FromEnv(serviceName)
	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// FromEnv builds a Config from the environment without validating it.
func FromEnv(serviceName string) *Config {
	logLevel := getEnvStr(EnvLogLevel, DefaultLogLevel)
	return &Config{
		Port:     getEnvStr(EnvPort, DefaultPort),
		LogLevel: logLevel,

		RedisAddr:        getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword:    getEnvStr(EnvRedisPassword, ""),
		RedisDB:          getEnvNum(EnvRedisDB, DefaultRedisDB),
		RedisDialTimeout: getEnvDuration(EnvRedisDialTimeout, DefaultRedisDialTimeout),

		AvailabilityDriver: getEnvStr(EnvAvailabilityDriver, DefaultAvailabilityDriver),
		PostgresDSN:        getEnvStr(EnvPostgresDSN, DefaultPostgresDSN),
		PostgresMaxConns:   getEnvNum(EnvPostgresMaxConns, DefaultPostgresMaxConns),
		MongoURI:           getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName:  getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:   getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RoomServiceURL:      getEnvStr(EnvRoomServiceURL, DefaultRoomServiceURL),
		UserServiceURL:      getEnvStr(EnvUserServiceURL, DefaultUserServiceURL),
		ExternalCallTimeout: getEnvDuration(EnvExternalCallTimeout, DefaultExternalCallTimeout),

		KafkaEnabled:       getEnvBool(EnvKafkaEnabled, DefaultKafkaEnabled),
		BookingEventsTopic: getEnvStr(EnvBookingEventsTopic, DefaultBookingEventsTopic),
		BookingEventsDLQ:   getEnvStr(EnvBookingEventsDLQ, DefaultBookingEventsDLQ),
		RoomSyncGroupID:    getEnvStr(EnvRoomSyncGroupID, DefaultRoomSyncGroupID),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		LockTTL:                 getEnvDuration(EnvLockTTL, DefaultLockTTL),
		LockRetryAttempts:       getEnvNum(EnvLockRetryAttempts, DefaultLockRetryAttempts),
		LockRetryInitialBackoff: getEnvDuration(EnvLockRetryInitialBackoff, DefaultLockRetryInitialBackoff),
		LockRetryMaxBackoff:     getEnvDuration(EnvLockRetryMaxBackoff, DefaultLockRetryMaxBackoff),
		LockRetryMultiplier:     getEnvFloat(EnvLockRetryMultiplier, DefaultLockRetryMultiplier),
		LockRetryJitter:         getEnvFloat(EnvLockRetryJitter, DefaultLockRetryJitter),

		QueueTTL:         getEnvDuration(EnvQueueTTL, DefaultQueueTTL),
		QueueWaitTimeout: getEnvDuration(EnvQueueWaitTimeout, DefaultQueueWaitTimeout),
		QueueLeaseTTL:    getEnvDuration(EnvQueueLeaseTTL, DefaultQueueLeaseTTL),

		AutoConfirmDelay:  getEnvDuration(EnvAutoConfirmDelay, DefaultAutoConfirmDelay),
		PendingExpiry:     getEnvDuration(EnvPendingExpiry, DefaultPendingExpiry),
		SweepInterval:     getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		CancelWindow:      getEnvDuration(EnvCancelWindow, DefaultCancelWindow),
		ModifyWindow:      getEnvDuration(EnvModifyWindow, DefaultModifyWindow),
		PendingListWindow: getEnvDuration(EnvPendingListWindow, DefaultPendingListWindow),
		MaxStayNights:     getEnvNum(EnvMaxStayNights, DefaultMaxStayNights),

		Log: logger.New(logger.Config{
			Level:     logLevel,
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisDialTimeout)
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetPostgres() {
	cfg.Client.SetPostgres(cfg.Log, cfg.PostgresDSN, cfg.PostgresMaxConns)
}

// SetAvailabilityStore connects whichever database backs bookings.
func (cfg *Config) SetAvailabilityStore() {
	if cfg.AvailabilityDriver == DriverMongo {
		cfg.SetMongo()
		return
	}
	cfg.SetPostgres()
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.RedisAddr == "" {
		errors = append(errors, "RedisAddr cannot be empty")
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}

	switch cfg.AvailabilityDriver {
	case DriverPostgres:
		if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresDSN) {
			errors = append(errors, fmt.Sprintf("PostgresDSN must start with 'postgres://' or 'postgresql://', got: %s", redactURI(cfg.PostgresDSN)))
		}
		if cfg.PostgresMaxConns <= 0 {
			errors = append(errors, fmt.Sprintf("PostgresMaxConns must be positive, got: %d", cfg.PostgresMaxConns))
		}
	case DriverMongo:
		if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
		if cfg.MongoConnTimeout <= 0 {
			errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
		}
	default:
		errors = append(errors, fmt.Sprintf("AvailabilityDriver must be one of [%s, %s], got: %s", DriverPostgres, DriverMongo, cfg.AvailabilityDriver))
	}

	for name, raw := range map[string]string{"RoomServiceURL": cfg.RoomServiceURL, "UserServiceURL": cfg.UserServiceURL} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("%s must be an absolute URL, got: %s", name, raw))
		}
	}

	if cfg.KafkaEnabled && cfg.BookingEventsTopic == "" {
		errors = append(errors, "BookingEventsTopic cannot be empty when Kafka is enabled")
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"RedisDialTimeout", cfg.RedisDialTimeout},
		{"ExternalCallTimeout", cfg.ExternalCallTimeout},
		{"RateLimitWindow", cfg.RateLimitWindow},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
		{"LockTTL", cfg.LockTTL},
		{"LockRetryInitialBackoff", cfg.LockRetryInitialBackoff},
		{"LockRetryMaxBackoff", cfg.LockRetryMaxBackoff},
		{"QueueTTL", cfg.QueueTTL},
		{"QueueWaitTimeout", cfg.QueueWaitTimeout},
		{"QueueLeaseTTL", cfg.QueueLeaseTTL},
		{"AutoConfirmDelay", cfg.AutoConfirmDelay},
		{"PendingExpiry", cfg.PendingExpiry},
		{"SweepInterval", cfg.SweepInterval},
		{"PendingListWindow", cfg.PendingListWindow},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", p.name, p.value))
		}
	}

	if cfg.CancelWindow < 0 {
		errors = append(errors, fmt.Sprintf("CancelWindow cannot be negative, got: %s", cfg.CancelWindow))
	}
	if cfg.ModifyWindow < 0 {
		errors = append(errors, fmt.Sprintf("ModifyWindow cannot be negative, got: %s", cfg.ModifyWindow))
	}
	if cfg.LockRetryAttempts < 1 {
		errors = append(errors, fmt.Sprintf("LockRetryAttempts must be at least 1, got: %d", cfg.LockRetryAttempts))
	}
	if cfg.LockRetryMaxBackoff < cfg.LockRetryInitialBackoff {
		errors = append(errors, fmt.Sprintf("LockRetryMaxBackoff (%s) must be >= LockRetryInitialBackoff (%s)", cfg.LockRetryMaxBackoff, cfg.LockRetryInitialBackoff))
	}
	if cfg.LockRetryMultiplier < 1 {
		errors = append(errors, fmt.Sprintf("LockRetryMultiplier must be >= 1, got: %g", cfg.LockRetryMultiplier))
	}
	if cfg.LockRetryJitter < 0 || cfg.LockRetryJitter > 1 {
		errors = append(errors, fmt.Sprintf("LockRetryJitter must be within [0, 1], got: %g", cfg.LockRetryJitter))
	}
	if cfg.QueueWaitTimeout >= cfg.RequestTimeout {
		errors = append(errors, fmt.Sprintf("QueueWaitTimeout (%s) must be shorter than RequestTimeout (%s)", cfg.QueueWaitTimeout, cfg.RequestTimeout))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.MaxStayNights <= 0 {
		errors = append(errors, fmt.Sprintf("MaxStayNights must be positive, got: %d", cfg.MaxStayNights))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"port", cfg.Port,
		"redis_addr", cfg.RedisAddr,
		"redis_db", cfg.RedisDB,
		"availability_driver", cfg.AvailabilityDriver,
		"postgres_dsn", redactURI(cfg.PostgresDSN),
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"room_service_url", cfg.RoomServiceURL,
		"user_service_url", cfg.UserServiceURL,
		"kafka_enabled", cfg.KafkaEnabled,
		"booking_events_topic", cfg.BookingEventsTopic,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"lock_ttl", cfg.LockTTL,
		"lock_retry_attempts", cfg.LockRetryAttempts,
		"lock_retry_initial_backoff", cfg.LockRetryInitialBackoff,
		"queue_ttl", cfg.QueueTTL,
		"queue_wait_timeout", cfg.QueueWaitTimeout,
		"auto_confirm_delay", cfg.AutoConfirmDelay,
		"pending_expiry", cfg.PendingExpiry,
		"sweep_interval", cfg.SweepInterval,
		"cancel_window", cfg.CancelWindow,
		"modify_window", cfg.ModifyWindow,
		"max_stay_nights", cfg.MaxStayNights,
	)
}

var credentialRegex = regexp.MustCompile(`(://)[^:/@]+:[^@]+@`)

func redactURI(uri string) string {
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
