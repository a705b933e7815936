package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr               string
	DatabaseURL        string
	JWTSecret          string
	DataEncryptionKey  string
	SignatureKey       string
	Environment        string
	LogLevel           string
	LogFormat          string
	RunMigrations      bool
	MigrationsDir      string
	MaxBodyBytes       int64
	RateLimitPerMinute int
	MetricsEnabled     bool

	JobQueueSize           int
	SettlementPollInterval time.Duration
	SettlementMaxAttempts  int
	SettlementRetryDelay   time.Duration
	WorkflowSweepInterval  time.Duration
	WorkflowSweepBatch     int
}

func Load() Config {
	return Config{
		Addr:               getEnv("APP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		DataEncryptionKey:  getEnv("DATA_ENCRYPTION_KEY", ""),
		SignatureKey:       getEnv("SIGNATURE_KEY", ""),
		Environment:        getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		RunMigrations:      getEnvBool("RUN_MIGRATIONS", true),
		MigrationsDir:      getEnv("MIGRATIONS_DIR", "migrations"),
		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),

		JobQueueSize:           getEnvInt("JOB_QUEUE_SIZE", 100),
		SettlementPollInterval: getEnvDuration("SETTLEMENT_POLL_INTERVAL", 30*time.Second),
		SettlementMaxAttempts:  getEnvInt("SETTLEMENT_MAX_ATTEMPTS", 5),
		SettlementRetryDelay:   getEnvDuration("SETTLEMENT_RETRY_DELAY", 30*time.Second),
		WorkflowSweepInterval:  getEnvDuration("WORKFLOW_SWEEP_INTERVAL", 0),
		WorkflowSweepBatch:     getEnvInt("WORKFLOW_SWEEP_BATCH", 100),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" {
		if strings.TrimSpace(c.JWTSecret) == "" {
			return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if strings.TrimSpace(c.SignatureKey) == "" {
			return fmt.Errorf("SIGNATURE_KEY must be set in production")
		}
	}
	if len(c.SignatureKey) > 64 {
		return fmt.Errorf("SIGNATURE_KEY must be at most 64 bytes")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.JobQueueSize <= 0 {
		return fmt.Errorf("JOB_QUEUE_SIZE must be positive")
	}
	if c.SettlementPollInterval <= 0 {
		return fmt.Errorf("SETTLEMENT_POLL_INTERVAL must be positive")
	}
	if c.SettlementMaxAttempts <= 0 {
		return fmt.Errorf("SETTLEMENT_MAX_ATTEMPTS must be positive")
	}
	if c.WorkflowSweepInterval < 0 {
		return fmt.Errorf("WORKFLOW_SWEEP_INTERVAL must not be negative")
	}
	if c.WorkflowSweepInterval > 0 && c.WorkflowSweepBatch <= 0 {
		return fmt.Errorf("WORKFLOW_SWEEP_BATCH must be positive when the sweeper is enabled")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	return nil
}
