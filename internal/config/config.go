package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"paydays/internal/scheduler"

	"github.com/robfig/cron/v3"
)

// Backends accepted by DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"
)

var validBackends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendSheets}

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string
	DataDir     string

	// Database
	SQLiteDBPath string
	PostgresDSN  string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	BillsSheet               string
	PaydaysSheet             string
	MonthRisksSheet          string

	// Scheduling
	Strategy          string
	LoadThreshold     int
	DeflectionMargin  int
	InvalidBillPolicy string
	WritePriorities   bool
	ScheduleCron      string
	ScheduleTimezone  string

	// Plan cache
	CacheTTL  time.Duration
	CacheSize int

	// AMQP, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	LogLevel string
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		DataBackend: getEnv("DATA_BACKEND", BackendMemory),
		DataDir:     getEnv("DATA_DIR", "./data"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/paydays.db"),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		BillsSheet:               getEnv("BILLS_SHEET", "Bills"),
		PaydaysSheet:             getEnv("PAYDAYS_SHEET", "Paydays"),
		MonthRisksSheet:          getEnv("MONTH_RISKS_SHEET", "MonthRisks"),

		Strategy:          getEnv("SCHEDULE_STRATEGY", string(scheduler.BalancedStrategy)),
		LoadThreshold:     getEnvInt("LOAD_THRESHOLD", scheduler.DefaultLoadThreshold),
		DeflectionMargin:  getEnvInt("DEFLECTION_MARGIN", scheduler.DefaultDeflectionMargin),
		InvalidBillPolicy: getEnv("INVALID_BILL_POLICY", string(scheduler.SkipInvalid)),
		WritePriorities:   getEnvBool("WRITE_PRIORITIES", true),
		ScheduleCron:      getEnv("SCHEDULE_CRON", "0 6 * * *"),
		ScheduleTimezone:  getEnv("SCHEDULE_TIMEZONE", "UTC"),

		CacheTTL:  getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheSize: getEnvInt("CACHE_SIZE", 64),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "paydays"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "schedule_events"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendMemory:
		if c.DataDir == "" {
			errors = append(errors, "data directory cannot be empty when using memory backend")
		}
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		}
	case BackendSheets:
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.BillsSheet == "" || c.PaydaysSheet == "" || c.MonthRisksSheet == "" {
			errors = append(errors, "sheet names cannot be empty when using sheets backend")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if _, err := scheduler.ParseStrategyName(c.Strategy); err != nil {
		errors = append(errors, fmt.Sprintf("invalid schedule strategy '%s': must be one of %v", c.Strategy, scheduler.StrategyNames()))
	}
	if _, err := scheduler.ParseInvalidBillPolicy(c.InvalidBillPolicy); err != nil {
		errors = append(errors, err.Error())
	}
	if c.LoadThreshold < 1 {
		errors = append(errors, fmt.Sprintf("invalid load threshold %d: must be at least 1", c.LoadThreshold))
	}
	if c.DeflectionMargin < 1 {
		errors = append(errors, fmt.Sprintf("invalid deflection margin %d: must be at least 1", c.DeflectionMargin))
	}
	if _, err := cron.ParseStandard(c.ScheduleCron); err != nil {
		errors = append(errors, fmt.Sprintf("invalid schedule cron '%s': %v", c.ScheduleCron, err))
	}
	if _, err := time.LoadLocation(c.ScheduleTimezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid schedule timezone '%s': %v", c.ScheduleTimezone, err))
	}

	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: cannot be negative", c.CacheTTL))
	}
	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Location returns the schedule timezone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ScheduleTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StrategyName returns the configured default strategy.
func (c *Config) StrategyName() scheduler.StrategyName {
	name, err := scheduler.ParseStrategyName(c.Strategy)
	if err != nil {
		return scheduler.BalancedStrategy
	}
	return name
}

// EngineOptions builds the engine options described by the configuration.
func (c *Config) EngineOptions() scheduler.Options {
	opts := scheduler.DefaultOptions()
	opts.InvalidBills = scheduler.InvalidBillPolicy(c.InvalidBillPolicy)
	opts.LoadThreshold = c.LoadThreshold
	opts.DeflectionMargin = c.DeflectionMargin
	return opts
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
