package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"clinic/internal/storage"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	ShutdownTimeout    time.Duration

	// Logging
	LogLevel string

	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// AMQP, empty URL disables payment events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger worker
	WorkerMetricsPort        string
	GoogleSpreadsheetID      string
	GoogleLedgerSheetName    string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// parse problems found by Load, reported by Validate
	parseErrors []string
}

// Load reads the environment. Malformed numbers and durations keep their
// default here and are reported by Validate.
func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "clinic"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "clinic_payments"),

		WorkerMetricsPort:        getEnv("WORKER_METRICS_PORT", "9101"),
		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleLedgerSheetName:    getEnv("GOOGLE_LEDGER_SHEET_NAME", "Payments"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
	}

	cfg.RateLimitPerMinute = cfg.getEnvInt("RATE_LIMIT_PER_MINUTE", 120)
	cfg.ShutdownTimeout = cfg.getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	cfg.DBMaxOpenConns = cfg.getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = cfg.getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = cfg.getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)

	return cfg
}

// Validate checks everything the API server needs and returns every problem
// in one error.
func (c *Config) Validate() error {
	errors := append([]string(nil), c.parseErrors...)

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required")
	} else if _, _, err := storage.ParseDatabaseURL(c.DatabaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid DATABASE_URL: %v", err))
	}

	if c.DBMaxOpenConns < 1 {
		errors = append(errors, fmt.Sprintf("invalid DB_MAX_OPEN_CONNS %d: must be at least 1", c.DBMaxOpenConns))
	}
	if c.DBMaxIdleConns < 0 {
		errors = append(errors, fmt.Sprintf("invalid DB_MAX_IDLE_CONNS %d: must not be negative", c.DBMaxIdleConns))
	} else if c.DBMaxOpenConns >= 1 && c.DBMaxIdleConns > c.DBMaxOpenConns {
		errors = append(errors, fmt.Sprintf("invalid DB_MAX_IDLE_CONNS %d: must not exceed DB_MAX_OPEN_CONNS %d", c.DBMaxIdleConns, c.DBMaxOpenConns))
	}
	if c.DBConnMaxLifetime < 0 {
		errors = append(errors, fmt.Sprintf("invalid DB_CONN_MAX_LIFETIME %v: must not be negative", c.DBConnMaxLifetime))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}
	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}

	errors = append(errors, c.validateAMQP()...)

	return combine(errors)
}

// ValidateLedger checks the settings the ledger worker needs on top of the
// server settings.
func (c *Config) ValidateLedger() error {
	var errors []string
	if err := c.Validate(); err != nil {
		errors = append(errors, strings.Split(strings.TrimPrefix(err.Error(), header), "\n- ")...)
	}

	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the ledger worker")
	}
	if port, err := strconv.Atoi(c.WorkerMetricsPort); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid WORKER_METRICS_PORT '%s': must be a port number", c.WorkerMetricsPort))
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleLedgerSheetName == "" {
			errors = append(errors, "GOOGLE_LEDGER_SHEET_NAME cannot be empty when a spreadsheet is configured")
		}
		hasFile := c.GoogleServiceAccountFile != ""
		hasJSON := c.GoogleServiceAccountJSON != ""
		if !hasFile && !hasJSON {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided with GOOGLE_SPREADSHEET_ID")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	return combine(errors)
}

func (c *Config) validateAMQP() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var errors []string
	if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL: %v", err))
	} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
		errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
	}
	if c.AMQPExchange == "" {
		errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errors
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// AMQPEnabled reports whether payment events should be published.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

const header = "configuration validation failed:\n- "

func combine(errors []string) error {
	if len(errors) == 0 {
		return nil
	}
	return fmt.Errorf("%s%s", header, strings.Join(errors, "\n- "))
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("invalid %s '%s': must be an integer", key, value))
		return defaultValue
	}
	return i
}

func (c *Config) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		c.parseErrors = append(c.parseErrors, fmt.Sprintf("invalid %s '%s': must be a duration like 30s or 5m", key, value))
		return defaultValue
	}
	return d
}
