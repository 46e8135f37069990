package configs

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppLoadDefaults(t *testing.T) {
	for _, key := range []string{"DB_DRIVER", "DB_DSN", "SERVER_PORT", "AUTOSAVE_INTERVAL", "KAFKA_BROKER", "CANDLE_VOLATILITY", "KAFKA_GROUP_ID", "REPLICA_DB_DSN", "INGESTER_BATCH_SIZE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := AppLoad()

	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "data/candles.db", cfg.DB.DSN)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 100*time.Millisecond, cfg.AutoSave.Interval)
	assert.Equal(t, 0.02, cfg.Candle.Volatility)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "candle-ingester", cfg.Kafka.GroupID)
	assert.Equal(t, "data/replica.db", cfg.Replica.DSN)
	assert.Equal(t, 100, cfg.Ingester.BatchSize)
}

func TestAppLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("AUTOSAVE_INTERVAL", "250ms")
	t.Setenv("CANDLE_PRICE_DECIMALS", "2")
	t.Setenv("KAFKA_BROKER", "localhost:9092")

	cfg := AppLoad()

	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.AutoSave.Interval)
	assert.Equal(t, 2, cfg.Candle.PriceDecimals)
	assert.True(t, cfg.Kafka.Enabled())
}

func TestEnvHelpersFallBack(t *testing.T) {
	tests := []struct {
		name  string
		value string
		check func(t *testing.T)
	}{
		{"int", "ten", func(t *testing.T) { assert.Equal(t, 7, getEnvInt("CFG_TEST", 7)) }},
		{"float", "x", func(t *testing.T) { assert.Equal(t, 1.5, getEnvFloat("CFG_TEST", 1.5)) }},
		{"duration", "soon", func(t *testing.T) { assert.Equal(t, time.Second, getEnvDuration("CFG_TEST", time.Second)) }},
		{"negative duration", "-5s", func(t *testing.T) { assert.Equal(t, time.Second, getEnvDuration("CFG_TEST", time.Second)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CFG_TEST", tt.value)
			tt.check(t)
		})
	}
}
