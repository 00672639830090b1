package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "memory")

		cfg := Load()

		assert.Equal(t, "8080", cfg.HTTPPort)
		assert.Equal(t, BackendMemory, cfg.StorageBackend)
		assert.Equal(t, 72*time.Hour, cfg.ExchangeTTL)
		assert.Equal(t, 5, cfg.CodeAttemptLimit)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "Postgres")
		t.Setenv("DATABASE_URL", "postgres://localhost/packs")
		t.Setenv("EXCHANGE_TTL", "24h")
		t.Setenv("CODE_ATTEMPT_LIMIT", "3")
		t.Setenv("DB_MIGRATE_ON_BOOT", "false")

		cfg := Load()

		assert.Equal(t, BackendPostgres, cfg.StorageBackend)
		assert.Equal(t, 24*time.Hour, cfg.ExchangeTTL)
		assert.Equal(t, 3, cfg.CodeAttemptLimit)
		assert.False(t, cfg.MigrateOnBoot)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Invalid Values Fall Back", func(t *testing.T) {
		t.Setenv("NOTIFY_WORKERS", "many")
		t.Setenv("NOTIFY_SEND_TIMEOUT", "soon")

		cfg := Load()

		assert.Equal(t, 4, cfg.NotifyWorkers)
		assert.Equal(t, 5*time.Second, cfg.NotifySendTimeout)
	})
}

func TestValidate(t *testing.T) {
	t.Run("DynamoDB Missing Tables", func(t *testing.T) {
		cfg := &Config{StorageBackend: BackendDynamoDB, PacksTable: "packs", NotifyWorkers: 1, NotifyQueueSize: 1}
		assert.ErrorContains(t, cfg.Validate(), "DynamoDB table name")
	})

	t.Run("Postgres Missing URL", func(t *testing.T) {
		cfg := &Config{StorageBackend: BackendPostgres, NotifyWorkers: 1, NotifyQueueSize: 1}
		assert.ErrorContains(t, cfg.Validate(), "DATABASE_URL")
	})

	t.Run("Unknown Backend", func(t *testing.T) {
		cfg := &Config{StorageBackend: "sqlite", NotifyWorkers: 1, NotifyQueueSize: 1}
		assert.ErrorContains(t, cfg.Validate(), "unknown STORAGE_BACKEND")
	})
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, (&Config{LogLevel: "debug"}).SlogLevel())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "WARNING"}).SlogLevel())
	assert.Equal(t, slog.LevelError, (&Config{LogLevel: "ERROR"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "verbose"}).SlogLevel())
}
