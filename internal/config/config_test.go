package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"DB_DRIVER", "USE_KAFKA", "OUTBOX_PERIOD", "OUTBOX_LIMIT", "HTTP_PORT"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.False(t, cfg.UseKafka)
	assert.Equal(t, time.Second, cfg.OutboxPeriod)
	assert.Equal(t, 10, cfg.OutboxLimit)
	assert.Equal(t, "8080", cfg.HTTPPort)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("USE_KAFKA", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("OUTBOX_PERIOD", "250ms")
	t.Setenv("OUTBOX_LIMIT", "nope")

	cfg := LoadConfig()

	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.True(t, cfg.UseKafka)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxPeriod)
	assert.Equal(t, 10, cfg.OutboxLimit)
}

func TestLoadConfig_DotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	assert.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HTTP_PORT=9999\nQUEUE_PREFIX=fromfile\n"), 0o600))
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("QUEUE_PREFIX", "")
	os.Unsetenv("QUEUE_PREFIX")

	cfg := LoadConfig()

	assert.Equal(t, "7070", cfg.HTTPPort)
	assert.Equal(t, "fromfile", cfg.QueuePrefix)
}

func TestLoadConfig_QueueWorkerIDDefaultsToHostname(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QUEUE_WORKER_ID", "")

	host, err := os.Hostname()
	require.NoError(t, err)

	cfg := LoadConfig()

	assert.Equal(t, host, cfg.QueueWorkerID)
	assert.Equal(t, 5*time.Second, cfg.RedisConnectTimeout)
}

func TestLoadConfig_QueueWorkerIDFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QUEUE_WORKER_ID", "api-2")
	t.Setenv("REDIS_CONNECT_TIMEOUT", "100ms")

	cfg := LoadConfig()

	assert.Equal(t, "api-2", cfg.QueueWorkerID)
	assert.Equal(t, 100*time.Millisecond, cfg.RedisConnectTimeout)
}
