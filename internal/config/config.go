package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	SnowflakeNode int64

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Payout    PayoutConfig
	Scheduler SchedulerConfig
}

// PayoutConfig carries payout policy defaults.
type PayoutConfig struct {
	MinimumAmount decimal.Decimal
	Currency      string
}

// SchedulerConfig is the env view of the payout scheduler settings.
type SchedulerConfig struct {
	Enabled                   bool
	RunInterval               time.Duration
	BatchConcurrency          int
	JobTimeout                time.Duration
	DispatchRecoveryThreshold time.Duration
	EnabledJobs               []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "creatorpay"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		SnowflakeNode:     getenvInt64("SNOWFLAKE_NODE", 1),
		DBType:            strings.ToLower(getenv("DB_TYPE", "postgres")),
		DBHost:            getenv("DB_HOST", "localhost"),
		DBPort:            getenv("DB_PORT", "5432"),
		DBName:            getenv("DB_NAME", "creatorpay"),
		DBUser:            getenv("DB_USER", "postgres"),
		DBPassword:        getenv("DB_PASSWORD", ""),
		DBSSLMode:         getenv("DB_SSL_MODE", "disable"),
		DBPath:            getenv("DB_PATH", "creatorpay.db"),
		DBMaxIdleConn:     int(getenvInt64("DB_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DB_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DB_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DB_CONN_MAX_IDLE_TIME", 60)),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           int(getenvInt64("REDIS_DB", 0)),
		Payout: PayoutConfig{
			MinimumAmount: getenvDecimal("PAYOUT_MINIMUM_AMOUNT", decimal.NewFromInt(25)),
			Currency:      strings.ToUpper(getenv("PAYOUT_CURRENCY", "USD")),
		},
		Scheduler: SchedulerConfig{
			Enabled:                   getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:               getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			BatchConcurrency:          int(getenvInt64("SCHEDULER_BATCH_CONCURRENCY", 4)),
			JobTimeout:                getenvDuration("SCHEDULER_JOB_TIMEOUT", 10*time.Minute),
			DispatchRecoveryThreshold: getenvDuration("SCHEDULER_DISPATCH_RECOVERY_THRESHOLD", 15*time.Minute),
			EnabledJobs:               parseList(getenv("SCHEDULER_ENABLED_JOBS", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		log.Printf("[config] invalid duration for %s: %q", key, value)
		return def
	}
	return parsed
}

func getenvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil || parsed.IsNegative() {
		log.Printf("[config] invalid amount for %s: %q", key, value)
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
