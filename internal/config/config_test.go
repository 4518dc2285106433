package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "blackbox", cfg.Database.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "ssl://localhost:8883", cfg.MQTT.Broker)
	assert.Equal(t, "blackbox-ingest", cfg.MQTT.ClientID)
	assert.True(t, cfg.MQTT.TLSEnabled)
	assert.Equal(t, 5*time.Second, cfg.MQTT.ReconnectDelay)

	assert.Equal(t, "v1/+/telemetry", cfg.Topics.Telemetry)
	assert.Equal(t, "v1/+/diagnostics", cfg.Topics.Diagnostics)
	assert.Equal(t, "v1/+/events/crash", cfg.Topics.Crash)
	assert.Equal(t, "v1/+/events/panic", cfg.Topics.Panic)

	assert.Equal(t, 256, cfg.Processor.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.Processor.DBTimeout)
	assert.Equal(t, 3, cfg.Notifier.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Notifier.InitialBackoff)
	assert.Equal(t, "blackbox:telemetry:stream", cfg.Sink.Stream)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("DB_HOST", "db.internal")
	os.Setenv("DB_PORT", "15432")
	os.Setenv("MQTT_BROKER", "ssl://broker.internal:8883")
	os.Setenv("MQTT_TLS_ENABLED", "false")
	os.Setenv("PROCESSOR_QUEUE_SIZE", "64")
	os.Setenv("PROCESSOR_DB_TIMEOUT", "10s")
	os.Setenv("NOTIFIER_MAX_ATTEMPTS", "5")
	defer func() {
		os.Unsetenv("DB_HOST")
		os.Unsetenv("DB_PORT")
		os.Unsetenv("MQTT_BROKER")
		os.Unsetenv("MQTT_TLS_ENABLED")
		os.Unsetenv("PROCESSOR_QUEUE_SIZE")
		os.Unsetenv("PROCESSOR_DB_TIMEOUT")
		os.Unsetenv("NOTIFIER_MAX_ATTEMPTS")
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 15432, cfg.Database.Port)
	assert.Equal(t, "ssl://broker.internal:8883", cfg.MQTT.Broker)
	assert.False(t, cfg.MQTT.TLSEnabled)
	assert.Equal(t, 64, cfg.Processor.QueueSize)
	assert.Equal(t, 10*time.Second, cfg.Processor.DBTimeout)
	assert.Equal(t, 5, cfg.Notifier.MaxAttempts)
}

func TestGetDSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "secret",
		Database: "blackbox",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=secret dbname=blackbox sslmode=disable",
		cfg.GetDSN())
}
