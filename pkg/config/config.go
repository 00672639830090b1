package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	LogLevel string
	HTTPPort string

	StorageBackend string

	PacksTable         string
	BookingsTable      string
	ExchangesTable     string
	RatingsTable       string
	NotificationsTable string

	DatabaseURL   string
	MigrateOnBoot bool

	NotificationsQueueURL string

	RedisAddr     string // host[:port]; empty disables the limiter and the Redis sink
	RedisPassword string
	NATSURL       string // empty disables the NATS sink

	ExchangeTTL       time.Duration
	CodeAttemptLimit  int
	CodeAttemptWindow time.Duration

	NotifyQueueSize   int
	NotifyWorkers     int
	NotifySendTimeout time.Duration
}

// Load reads a .env file if present and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	return &Config{
		LogLevel: LookupEnvString("LOG_LEVEL", "INFO"),
		HTTPPort: LookupEnvString("HTTP_PORT", "8080"),

		StorageBackend: strings.ToLower(LookupEnvString("STORAGE_BACKEND", BackendDynamoDB)),

		PacksTable:         LookupEnvString("DYNAMODB_PACKS_TABLE_NAME", ""),
		BookingsTable:      LookupEnvString("DYNAMODB_BOOKINGS_TABLE_NAME", ""),
		ExchangesTable:     LookupEnvString("DYNAMODB_EXCHANGES_TABLE_NAME", ""),
		RatingsTable:       LookupEnvString("DYNAMODB_RATINGS_TABLE_NAME", ""),
		NotificationsTable: LookupEnvString("DYNAMODB_NOTIFICATIONS_TABLE_NAME", ""),

		DatabaseURL:   LookupEnvString("DATABASE_URL", ""),
		MigrateOnBoot: LookupEnvBool("DB_MIGRATE_ON_BOOT", true),

		NotificationsQueueURL: LookupEnvString("SQS_NOTIFICATIONS_QUEUE_URL", ""),

		RedisAddr:     LookupEnvString("REDIS_ADDR", ""),
		RedisPassword: LookupEnvString("REDIS_PASSWORD", ""),
		NATSURL:       LookupEnvString("NATS_URL", ""),

		ExchangeTTL:       LookupEnvDuration("EXCHANGE_TTL", 72*time.Hour),
		CodeAttemptLimit:  LookupEnvInt("CODE_ATTEMPT_LIMIT", 5),
		CodeAttemptWindow: LookupEnvDuration("CODE_ATTEMPT_WINDOW", 15*time.Minute),

		NotifyQueueSize:   LookupEnvInt("NOTIFY_QUEUE_SIZE", 256),
		NotifyWorkers:     LookupEnvInt("NOTIFY_WORKERS", 4),
		NotifySendTimeout: LookupEnvDuration("NOTIFY_SEND_TIMEOUT", 5*time.Second),
	}
}

// Validate reports settings the selected backend cannot run without.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendDynamoDB:
		if c.PacksTable == "" || c.BookingsTable == "" || c.ExchangesTable == "" ||
			c.RatingsTable == "" || c.NotificationsTable == "" {
			return errors.New("one or more DynamoDB table name environment variables are not set")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL environment variable not set")
		}
	case BackendMemory:
	default:
		return errors.New("unknown STORAGE_BACKEND " + strconv.Quote(c.StorageBackend))
	}
	if c.NotifyWorkers <= 0 || c.NotifyQueueSize <= 0 {
		return errors.New("NOTIFY_WORKERS and NOTIFY_QUEUE_SIZE must be positive")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to INFO.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case slog.LevelDebug.String():
		return slog.LevelDebug
	case slog.LevelWarn.String(), "WARNING":
		return slog.LevelWarn
	case slog.LevelError.String():
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func LookupEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func LookupEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if v, err := strconv.Atoi(val); err == nil {
			return v
		}
		slog.Warn("invalid integer in environment, using default", slog.String("key", key))
	}
	return defaultVal
}

func LookupEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if v, err := strconv.ParseBool(val); err == nil {
			return v
		}
		slog.Warn("invalid boolean in environment, using default", slog.String("key", key))
	}
	return defaultVal
}

func LookupEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if v, err := time.ParseDuration(val); err == nil {
			return v
		}
		slog.Warn("invalid duration in environment, using default", slog.String("key", key))
	}
	return defaultVal
}
