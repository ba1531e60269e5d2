package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for brokerd.
type Config struct {
	Port               int
	LogLevel           string
	JWTSecret          string
	TokenTTL           time.Duration
	FeedInterval       time.Duration
	FeedVolatility     float64
	StartingBalance    decimal.Decimal
	MaxPositionShares  int64
	MaxOrdersPerMinute int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutdownTimeout    time.Duration
}

// Load reads configuration from the environment (after loading .env
// if present), applies defaults, and validates values. It returns an
// error for any invalid value.
func Load() (*Config, error) {
	// A missing .env is fine; env vars still apply.
	_ = godotenv.Load()

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	jwtSecret := getStr("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	tokenTTL, err := getDuration("TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}

	feedInterval, err := getDuration("FEED_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_INTERVAL: %w", err)
	}

	feedVolatility, err := getFloat("FEED_VOLATILITY", 0.02)
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_VOLATILITY: %w", err)
	}
	if feedVolatility <= 0 || feedVolatility >= 1 {
		return nil, fmt.Errorf("invalid FEED_VOLATILITY: %v, must be in (0, 1)", feedVolatility)
	}

	startingBalance, err := getDecimal("STARTING_BALANCE", "10000.00")
	if err != nil {
		return nil, fmt.Errorf("invalid STARTING_BALANCE: %w", err)
	}
	if startingBalance.IsNegative() {
		return nil, fmt.Errorf("invalid STARTING_BALANCE: must not be negative")
	}

	maxPosition, err := getInt("MAX_POSITION_SHARES", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_POSITION_SHARES: %w", err)
	}

	maxPerMinute, err := getInt("MAX_ORDERS_PER_MINUTE", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_ORDERS_PER_MINUTE: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:               port,
		LogLevel:           logLevel,
		JWTSecret:          jwtSecret,
		TokenTTL:           tokenTTL,
		FeedInterval:       feedInterval,
		FeedVolatility:     feedVolatility,
		StartingBalance:    startingBalance,
		MaxPositionShares:  int64(maxPosition),
		MaxOrdersPerMinute: maxPerMinute,
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		IdleTimeout:        idleTimeout,
		ShutdownTimeout:    shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getDecimal(key, defaultVal string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = defaultVal
	}
	return decimal.NewFromString(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
