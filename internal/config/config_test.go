package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("expected default token TTL 24h, got %s", cfg.TokenTTL)
	}
	if cfg.FeedInterval != 5*time.Second {
		t.Errorf("expected default feed interval 5s, got %s", cfg.FeedInterval)
	}
	if cfg.FeedVolatility != 0.02 {
		t.Errorf("expected default volatility 0.02, got %v", cfg.FeedVolatility)
	}
	if !cfg.StartingBalance.Equal(decimal.RequireFromString("10000.00")) {
		t.Errorf("expected default starting balance 10000.00, got %s", cfg.StartingBalance)
	}
	if cfg.MaxPositionShares != 1000 {
		t.Errorf("expected default position limit 1000, got %d", cfg.MaxPositionShares)
	}
	if cfg.MaxOrdersPerMinute != 10 {
		t.Errorf("expected default rate limit 10, got %d", cfg.MaxOrdersPerMinute)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected default shutdown timeout 10s, got %s", cfg.ShutdownTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TOKEN_TTL", "1h")
	t.Setenv("FEED_INTERVAL", "250ms")
	t.Setenv("FEED_VOLATILITY", "0.05")
	t.Setenv("STARTING_BALANCE", "250.50")
	t.Setenv("MAX_POSITION_SHARES", "500")
	t.Setenv("MAX_ORDERS_PER_MINUTE", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 9000 || cfg.LogLevel != "debug" {
		t.Errorf("basic overrides not applied: %+v", cfg)
	}
	if cfg.TokenTTL != time.Hour || cfg.FeedInterval != 250*time.Millisecond {
		t.Errorf("duration overrides not applied: %+v", cfg)
	}
	if cfg.FeedVolatility != 0.05 {
		t.Errorf("volatility override not applied: %v", cfg.FeedVolatility)
	}
	if !cfg.StartingBalance.Equal(decimal.RequireFromString("250.50")) {
		t.Errorf("balance override not applied: %s", cfg.StartingBalance)
	}
	if cfg.MaxPositionShares != 500 || cfg.MaxOrdersPerMinute != 3 {
		t.Errorf("limit overrides not applied: %+v", cfg)
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("expected JWT_SECRET error, got %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "PORT", "not-a-number"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"bad token ttl", "TOKEN_TTL", "soon"},
		{"bad feed interval", "FEED_INTERVAL", "5"},
		{"volatility zero", "FEED_VOLATILITY", "0"},
		{"volatility too high", "FEED_VOLATILITY", "1.5"},
		{"balance not a number", "STARTING_BALANCE", "lots"},
		{"balance negative", "STARTING_BALANCE", "-100.00"},
		{"bad position limit", "MAX_POSITION_SHARES", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
