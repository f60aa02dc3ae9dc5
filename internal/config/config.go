// Package config loads process configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Kafka     KafkaConfig
	Redis     RedisConfig
	Vendor    VendorConfig
	Pipeline  PipelineConfig
	AdminAddr string

	CatalogPath string
}

// KafkaConfig wires the usage consumer, the retry topic and the
// outcome topic.
type KafkaConfig struct {
	Brokers         []string
	UsageTopic      string
	RetryTopic      string
	OutcomeTopic    string
	GroupID         string
	RedeliveryDelay time.Duration
}

// RedisConfig configures the outbound submission rate limiter.
type RedisConfig struct {
	Enabled     bool
	Addr        string
	Password    string
	DB          int
	SubmitRate  float64
	SubmitBurst int
}

// VendorConfig selects and configures the marketplace this instance
// submits to. One process targets exactly one vendor.
type VendorConfig struct {
	Name         string
	BaseURL      string
	SubmitPath   string
	StatusPath   string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration

	TokenRefreshPeriod   time.Duration
	TokenRefreshFraction float64

	// AmendmentMarkers override the adapter's built-in marker strings
	// for the "amendment rejected by design" vendor quirk.
	AmendmentMarkers []string
}

// PipelineConfig parameterizes the orchestrator.
type PipelineConfig struct {
	// Granularity is the fixed billing window size. It must match the
	// aggregation granularity of the upstream tally engine.
	Granularity time.Duration

	// UsageWindow is the maximum snapshot age during which a failed
	// subscription lookup is still re-driven instead of failed.
	UsageWindow time.Duration

	VerifyBatches bool

	SubmitInitialInterval time.Duration
	SubmitMultiplier      float64
	SubmitMaxInterval     time.Duration
	SubmitMaxAttempts     int

	PollInitialInterval time.Duration
	PollMultiplier      float64
	PollMaxInterval     time.Duration
	PollMaxAttempts     int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "meterbill"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "meterbill"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 4),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 16),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Kafka: KafkaConfig{
			Brokers:         splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			UsageTopic:      getenv("KAFKA_USAGE_TOPIC", "billable-usage"),
			RetryTopic:      getenv("KAFKA_RETRY_TOPIC", "billable-usage.retry"),
			OutcomeTopic:    getenv("KAFKA_OUTCOME_TOPIC", "billable-usage.status"),
			GroupID:         getenv("KAFKA_GROUP_ID", "meterbill"),
			RedeliveryDelay: getenvDuration("KAFKA_REDELIVERY_DELAY", time.Hour),
		},

		Redis: RedisConfig{
			Enabled:     getenvBool("REDIS_RATE_LIMIT_ENABLED", false),
			Addr:        getenv("REDIS_ADDR", "localhost:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          getenvInt("REDIS_DB", 0),
			SubmitRate:  getenvFloat("SUBMIT_RATE_PER_SECOND", 10),
			SubmitBurst: getenvInt("SUBMIT_BURST", 20),
		},

		Vendor: VendorConfig{
			Name:                 strings.ToLower(getenv("VENDOR", "redhat")),
			BaseURL:              getenv("VENDOR_BASE_URL", ""),
			SubmitPath:           getenv("VENDOR_SUBMIT_PATH", ""),
			StatusPath:           getenv("VENDOR_STATUS_PATH", ""),
			TokenURL:             getenv("VENDOR_TOKEN_URL", ""),
			ClientID:             getenv("VENDOR_CLIENT_ID", ""),
			ClientSecret:         getenv("VENDOR_CLIENT_SECRET", ""),
			Timeout:              getenvDuration("VENDOR_TIMEOUT", 30*time.Second),
			TokenRefreshPeriod:   getenvDuration("VENDOR_TOKEN_REFRESH_PERIOD", 10*time.Minute),
			TokenRefreshFraction: getenvFloat("VENDOR_TOKEN_REFRESH_FRACTION", 0.2),
			AmendmentMarkers:     splitList(getenv("VENDOR_AMENDMENT_MARKERS", "")),
		},

		Pipeline: PipelineConfig{
			Granularity:   getenvDuration("PIPELINE_GRANULARITY", time.Hour),
			UsageWindow:   getenvDuration("PIPELINE_USAGE_WINDOW", 24*time.Hour),
			VerifyBatches: getenvBool("PIPELINE_VERIFY_BATCHES", true),

			SubmitInitialInterval: getenvDuration("SUBMIT_BACKOFF_INITIAL", time.Second),
			SubmitMultiplier:      getenvFloat("SUBMIT_BACKOFF_MULTIPLIER", 2),
			SubmitMaxInterval:     getenvDuration("SUBMIT_BACKOFF_MAX_INTERVAL", time.Minute),
			SubmitMaxAttempts:     getenvInt("SUBMIT_MAX_ATTEMPTS", 5),

			PollInitialInterval: getenvDuration("POLL_BACKOFF_INITIAL", 2*time.Second),
			PollMultiplier:      getenvFloat("POLL_BACKOFF_MULTIPLIER", 1.5),
			PollMaxInterval:     getenvDuration("POLL_BACKOFF_MAX_INTERVAL", 30*time.Second),
			PollMaxAttempts:     getenvInt("POLL_MAX_ATTEMPTS", 10),
		},

		AdminAddr:   getenv("ADMIN_ADDR", ":8090"),
		CatalogPath: getenv("CATALOG_PATH", ""),
	}

	return cfg
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q", key, raw)
		return fallback
	}
	return value
}

func getenvFloat(key string, fallback float64) float64 {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q", key, raw)
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q", key, raw)
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("[config] invalid duration for %s: %q", key, raw)
		return fallback
	}
	return value
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
