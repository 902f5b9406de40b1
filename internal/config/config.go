package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

// Config holds all configuration
type Config struct {
	MySQL      MySQLConfig
	Redis      RedisConfig
	Cloudflare CloudflareConfig
	Dispatcher DispatcherConfig
	Log        LogConfig
	Migrate    bool
	HTTPAddr   string
	ZonesFile  string  // optional static zone file
	FaultRate  float64 // staging only: share of provider calls to fail
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	DSN string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// CloudflareConfig holds Cloudflare API credentials
type CloudflareConfig struct {
	Email    string // empty means APIToken is a scoped API token
	APIToken string
}

// DispatcherConfig holds DNS dispatcher configuration
type DispatcherConfig struct {
	RateLimit        int // attempts per rate window
	RateWindowSec    int
	MaxConcurrent    int
	AttemptTimeoutMs int
	RetryBaseDelayMs int
	MaxRetries       int
	BatchWindowMs    int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string // text or json
}

// RateWindow returns the rate accounting window
func (c DispatcherConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSec) * time.Second
}

// AttemptTimeout returns the per-attempt timeout
func (c DispatcherConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.AttemptTimeoutMs) * time.Millisecond
}

// RetryBaseDelay returns the base retry delay
func (c DispatcherConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// BatchWindow returns the batch window
func (c DispatcherConfig) BatchWindow() time.Duration {
	return time.Duration(c.BatchWindowMs) * time.Millisecond
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	return build(func(envKey, _, _, defaultValue string) string {
		return getEnv(envKey, defaultValue)
	})
}

// LoadFromINI loads configuration from INI file with environment variable override
func LoadFromINI(iniPath string) (*Config, error) {
	_ = godotenv.Load()

	cfgFile, err := ini.Load(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load INI file: %w", err)
	}

	// Priority: ENV > INI > default
	return build(func(envKey, iniSection, iniKey, defaultValue string) string {
		if value := os.Getenv(envKey); value != "" {
			return value
		}
		if value := cfgFile.Section(iniSection).Key(iniKey).String(); value != "" {
			return value
		}
		return defaultValue
	})
}

// lookupFunc returns the raw value for one setting
type lookupFunc func(envKey, iniSection, iniKey, defaultValue string) string

func build(get lookupFunc) (*Config, error) {
	getInt := func(envKey, iniSection, iniKey string, defaultValue int) int {
		if value, err := strconv.Atoi(get(envKey, iniSection, iniKey, "")); err == nil {
			return value
		}
		return defaultValue
	}
	getBool := func(envKey, iniSection, iniKey string, defaultValue bool) bool {
		switch get(envKey, iniSection, iniKey, "") {
		case "1", "true":
			return true
		case "0", "false":
			return false
		}
		return defaultValue
	}
	getFloat := func(envKey, iniSection, iniKey string, defaultValue float64) float64 {
		if value, err := strconv.ParseFloat(get(envKey, iniSection, iniKey, ""), 64); err == nil {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		MySQL: MySQLConfig{
			DSN: get("MYSQL_DSN", "mysql", "dsn", ""),
		},
		Redis: RedisConfig{
			Addr:     get("REDIS_ADDR", "redis", "addr", "localhost:6379"),
			Password: get("REDIS_PASS", "redis", "pass", ""),
			DB:       getInt("REDIS_DB", "redis", "db", 0),
			Channel:  get("REDIS_OUTCOME_CHANNEL", "redis", "outcome_channel", "flare:outcomes"),
		},
		Cloudflare: CloudflareConfig{
			Email:    get("CLOUDFLARE_EMAIL", "cloudflare", "email", ""),
			APIToken: get("CLOUDFLARE_API_TOKEN", "cloudflare", "api_token", ""),
		},
		Dispatcher: DispatcherConfig{
			// Cloudflare allows 1200 requests per 5 minutes per user
			RateLimit:        getInt("DISPATCHER_RATE_LIMIT", "dispatcher", "rate_limit", 1200),
			RateWindowSec:    getInt("DISPATCHER_RATE_WINDOW_SEC", "dispatcher", "rate_window_sec", 300),
			MaxConcurrent:    getInt("DISPATCHER_MAX_CONCURRENT", "dispatcher", "max_concurrent", 4),
			AttemptTimeoutMs: getInt("DISPATCHER_ATTEMPT_TIMEOUT_MS", "dispatcher", "attempt_timeout_ms", 10000),
			RetryBaseDelayMs: getInt("DISPATCHER_RETRY_BASE_DELAY_MS", "dispatcher", "retry_base_delay_ms", 1000),
			MaxRetries:       getInt("DISPATCHER_MAX_RETRIES", "dispatcher", "max_retries", 3),
			BatchWindowMs:    getInt("DISPATCHER_BATCH_WINDOW_MS", "dispatcher", "batch_window_ms", 500),
		},
		Log: LogConfig{
			Level:  get("LOG_LEVEL", "log", "level", "info"),
			Format: get("LOG_FORMAT", "log", "format", "text"),
		},
		Migrate:   getBool("MIGRATE", "app", "migrate", false),
		HTTPAddr:  get("HTTP_ADDR", "http", "addr", ":8080"),
		ZonesFile: get("ZONES_FILE", "zones", "file", ""),
		FaultRate: getFloat("FAULT_RATE", "app", "fault_rate", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and limits
func (c *Config) Validate() error {
	if c.MySQL.DSN == "" {
		return fmt.Errorf("MYSQL_DSN is required")
	}
	if c.Cloudflare.APIToken == "" {
		return fmt.Errorf("CLOUDFLARE_API_TOKEN is required")
	}

	d := c.Dispatcher
	switch {
	case d.RateLimit <= 0:
		return fmt.Errorf("DISPATCHER_RATE_LIMIT must be positive, got %d", d.RateLimit)
	case d.RateWindowSec <= 0:
		return fmt.Errorf("DISPATCHER_RATE_WINDOW_SEC must be positive, got %d", d.RateWindowSec)
	case d.MaxConcurrent <= 0:
		return fmt.Errorf("DISPATCHER_MAX_CONCURRENT must be positive, got %d", d.MaxConcurrent)
	case d.AttemptTimeoutMs <= 0:
		return fmt.Errorf("DISPATCHER_ATTEMPT_TIMEOUT_MS must be positive, got %d", d.AttemptTimeoutMs)
	case d.RetryBaseDelayMs <= 0:
		return fmt.Errorf("DISPATCHER_RETRY_BASE_DELAY_MS must be positive, got %d", d.RetryBaseDelayMs)
	case d.MaxRetries < 0:
		return fmt.Errorf("DISPATCHER_MAX_RETRIES must not be negative, got %d", d.MaxRetries)
	case d.BatchWindowMs <= 0:
		return fmt.Errorf("DISPATCHER_BATCH_WINDOW_MS must be positive, got %d", d.BatchWindowMs)
	}

	if c.FaultRate < 0 || c.FaultRate > 1 {
		return fmt.Errorf("FAULT_RATE must be within [0,1], got %v", c.FaultRate)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
