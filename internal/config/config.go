package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string

	// Background Workers
	WorkerCount            int
	MaintenanceInterval    time.Duration
	ClassificationInterval time.Duration
	JobMaxAttempts         int
	JobBackoffStep         time.Duration

	// Payment endpoint throttling (requests per minute per client IP)
	PaymentRateLimit int
	PaymentRateBurst int

	// CORS
	AllowedOrigins []string

	// Sentry
	SentryDSN string

	// Business defaults handed to the engine
	Currency string
	Policy   Policy
}

// Policy carries the process-wide business defaults. Loans without their own
// rate overrides fall back to BaseRate and BasePenaltyRate.
type Policy struct {
	BaseRate             decimal.Decimal
	BasePenaltyRate      decimal.Decimal
	GracePeriods         decimal.Decimal
	EscalationWindow     decimal.Decimal
	MaxConsecutiveMissed int
	CurrencyDecimals     int32
	AllocationStrategy   string
}

// DefaultPolicy returns the policy used when no environment overrides exist.
func DefaultPolicy() Policy {
	return Policy{
		BaseRate:             decimal.RequireFromString("0.10"),
		BasePenaltyRate:      decimal.RequireFromString("0.05"),
		GracePeriods:         decimal.RequireFromString("0.2"),
		EscalationWindow:     decimal.NewFromInt(1),
		MaxConsecutiveMissed: 3,
		CurrencyDecimals:     2,
		AllocationStrategy:   "mora-interes-capital",
	}
}

// Validate rejects policies the engine cannot operate with
func (p Policy) Validate() error {
	if p.BaseRate.IsNegative() {
		return fmt.Errorf("BASE_INTEREST_RATE must not be negative")
	}
	if p.BasePenaltyRate.IsNegative() {
		return fmt.Errorf("BASE_PENALTY_RATE must not be negative")
	}
	if p.GracePeriods.IsNegative() {
		return fmt.Errorf("GRACE_PERIODS must not be negative")
	}
	if p.EscalationWindow.LessThan(p.GracePeriods) {
		return fmt.Errorf("ARREARS_ESCALATION_WINDOW must be >= GRACE_PERIODS")
	}
	if p.MaxConsecutiveMissed < 1 {
		return fmt.Errorf("MAX_CONSECUTIVE_MISSED must be at least 1")
	}
	if p.CurrencyDecimals < 0 || p.CurrencyDecimals > 4 {
		return fmt.Errorf("CURRENCY_DECIMALS must be between 0 and 4")
	}
	return nil
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	defaults := DefaultPolicy()

	cfg := &Config{
		Port:                   getEnv("PORT", "8080"),
		Environment:            getEnv("ENVIRONMENT", "development"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		WorkerCount:            getEnvAsInt("WORKER_COUNT", 5),
		MaintenanceInterval:    getEnvAsDuration("MAINTENANCE_INTERVAL", time.Hour),
		ClassificationInterval: getEnvAsDuration("CLASSIFICATION_INTERVAL", 6*time.Hour),
		JobMaxAttempts:         getEnvAsInt("JOB_MAX_ATTEMPTS", 3),
		JobBackoffStep:         getEnvAsDuration("JOB_BACKOFF_STEP", 30*time.Second),
		PaymentRateLimit:       getEnvAsInt("PAYMENT_RATE_LIMIT", 60),
		PaymentRateBurst:       getEnvAsInt("PAYMENT_RATE_BURST", 10),
		AllowedOrigins:         getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		SentryDSN:              getEnv("SENTRY_DSN", ""),
		Currency:               getEnv("CURRENCY", "HNL"),
	}

	var err error
	policy := defaults
	if policy.BaseRate, err = getEnvAsDecimal("BASE_INTEREST_RATE", defaults.BaseRate); err != nil {
		return nil, err
	}
	if policy.BasePenaltyRate, err = getEnvAsDecimal("BASE_PENALTY_RATE", defaults.BasePenaltyRate); err != nil {
		return nil, err
	}
	if policy.GracePeriods, err = getEnvAsDecimal("GRACE_PERIODS", defaults.GracePeriods); err != nil {
		return nil, err
	}
	if policy.EscalationWindow, err = getEnvAsDecimal("ARREARS_ESCALATION_WINDOW", defaults.EscalationWindow); err != nil {
		return nil, err
	}
	policy.MaxConsecutiveMissed = getEnvAsInt("MAX_CONSECUTIVE_MISSED", defaults.MaxConsecutiveMissed)
	policy.CurrencyDecimals = int32(getEnvAsInt("CURRENCY_DECIMALS", int(defaults.CurrencyDecimals)))
	policy.AllocationStrategy = getEnv("ALLOCATION_STRATEGY", defaults.AllocationStrategy)
	cfg.Policy = policy

	// Validate required configuration
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}

	if cfg.JobMaxAttempts < 1 {
		cfg.JobMaxAttempts = 1
	}

	return cfg, nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as integer
func getEnvAsInt(key string, defaultValue int) int {
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

// getEnvAsDuration reads an environment variable as a Go duration string ("90s", "1h")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
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

// getEnvAsDecimal reads a money or rate value. A malformed value is an error,
// never a fallback to the default.
func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q: %w", key, valueStr, err)
	}
	return value, nil
}

// getEnvAsSlice reads an environment variable as comma-separated slice
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	return strings.Split(valueStr, ",")
}
