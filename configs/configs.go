// Package configs provides application configuration loaded from environment variables.
// An optional .env file is read first for local development.
package configs

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all application configuration.
// Load it once at startup using AppLoad().
type AppConfig struct {
	// DB contains the candle store connection settings.
	DB DBConfig

	// ServerPort is the HTTP listen port of the API process.
	ServerPort string

	// GinMode is passed to gin.SetMode ("debug", "release", "test").
	GinMode string

	// LogLevel is a logrus level name. Unknown values fall back to info.
	LogLevel string

	// Candle holds the generation parameters used for tracked series.
	Candle CandleConfig

	// AutoSave controls the background candle scheduler.
	AutoSave AutoSaveConfig

	// Kafka contains settings for the finalized-candle publisher.
	Kafka KafkaConfig

	// HealthInterval is how often the health monitor runs its checks.
	HealthInterval time.Duration

	// Replica is the store the candle ingester copies finalized candles into.
	Replica DBConfig

	// Ingester controls batching of the replica ingester.
	Ingester IngesterConfig
}

// DBConfig selects the gorm driver and its DSN.
type DBConfig struct {
	// Driver is "sqlite" or "mysql".
	Driver string

	// DSN is the file path for sqlite or a go-sql-driver DSN for mysql.
	DSN string
}

// CandleConfig holds the defaults applied when a series starts being tracked.
type CandleConfig struct {
	Version       string
	Volatility    float64
	PriceDecimals int
}

// AutoSaveConfig holds scheduler settings.
type AutoSaveConfig struct {
	// Interval is the tick period. The default is 100ms (10Hz).
	Interval time.Duration
}

// KafkaConfig holds Kafka connection settings for candle events.
type KafkaConfig struct {
	// Broker is the Kafka broker address (e.g., "localhost:9092").
	// Empty disables publishing.
	Broker string

	// Topic receives one message per finalized candle.
	Topic string

	// GroupID is the consumer group of the replica ingester.
	GroupID string
}

// IngesterConfig holds batching settings for the replica ingester.
type IngesterConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
}

// Enabled reports whether a broker is configured.
func (k KafkaConfig) Enabled() bool {
	return k.Broker != ""
}

// AppLoad loads all application configuration from environment variables.
// It attempts to load a .env file first (for local development).
// Call this once at application startup.
func AppLoad() *AppConfig {
	_ = godotenv.Load() // Ignore error - .env is optional

	return &AppConfig{
		DB: DBConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			DSN:    getEnv("DB_DSN", "data/candles.db"),
		},
		ServerPort: getEnv("SERVER_PORT", "8080"),
		GinMode:    getEnv("GIN_MODE", "release"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Candle: CandleConfig{
			Version:       getEnv("CANDLE_VERSION", "v1"),
			Volatility:    getEnvFloat("CANDLE_VOLATILITY", 0.02),
			PriceDecimals: getEnvInt("CANDLE_PRICE_DECIMALS", 5),
		},
		AutoSave: AutoSaveConfig{
			Interval: getEnvDuration("AUTOSAVE_INTERVAL", 100*time.Millisecond),
		},
		Kafka: KafkaConfig{
			Broker:  getEnv("KAFKA_BROKER", ""),
			Topic:   getEnv("KAFKA_CANDLE_TOPIC", "otc_candles"),
			GroupID: getEnv("KAFKA_GROUP_ID", "candle-ingester"),
		},
		HealthInterval: getEnvDuration("HEALTH_INTERVAL", 30*time.Second),
		Replica: DBConfig{
			Driver: getEnv("REPLICA_DB_DRIVER", "sqlite"),
			DSN:    getEnv("REPLICA_DB_DSN", "data/replica.db"),
		},
		Ingester: IngesterConfig{
			BatchSize:    getEnvInt("INGESTER_BATCH_SIZE", 100),
			BatchTimeout: getEnvDuration("INGESTER_BATCH_TIMEOUT", time.Second),
		},
	}
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration parses a Go duration ("100ms", "30s") or returns a default.
// Non-positive durations are rejected.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
