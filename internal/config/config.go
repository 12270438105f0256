package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"markin/internal/stats"
)

type Config struct {
	// HTTP Server
	Port               string `validate:"required,numeric"`
	LogLevel           string `validate:"oneof=debug info warn warning error"`
	RateLimitPerMinute int    `validate:"min=1,max=10000"`

	// Upstream statistics API
	StatsAPIURL     string        `validate:"required,url,startswith=http"`
	StatsAPITimeout time.Duration `validate:"min=100ms,max=2m"`

	// Fetch log
	FetchLogBackend string `validate:"oneof=memory sqlite"`
	SQLiteDBPath    string `validate:"required_if=FetchLogBackend sqlite"`

	// AMQP (optional)
	AMQPURL      string `validate:"omitempty,url"`
	AMQPExchange string `validate:"required_with=AMQPURL"`
	AMQPQueue    string `validate:"required_with=AMQPURL"`

	// Google Sheets export (worker only)
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Export worker
	ExportBatchSize int           `validate:"min=1,max=1000"`
	ExportInterval  time.Duration `validate:"min=1s,max=24h"`
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		StatsAPIURL:     getEnv("STATS_API_URL", stats.DefaultEndpoint),
		StatsAPITimeout: getEnvDuration("STATS_API_TIMEOUT", 10*time.Second),

		FetchLogBackend: getEnv("FETCHLOG_BACKEND", "memory"),
		SQLiteDBPath:    getEnv("SQLITE_DB_PATH", "./data/markin.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "markin"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "export_fetch_records"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Fetches"),

		ExportBatchSize: getEnvInt("EXPORT_BATCH_SIZE", 50),
		ExportInterval:  getEnvDuration("EXPORT_INTERVAL", time.Minute),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	if port, err := strconv.Atoi(c.Port); err == nil && (port < 1 || port > 65535) {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.AMQPURL != "" && !strings.HasPrefix(c.AMQPURL, "amqp://") && !strings.HasPrefix(c.AMQPURL, "amqps://") {
		problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': scheme must be 'amqp' or 'amqps'", c.AMQPURL))
	}

	if c.FetchLogBackend == "sqlite" && c.SQLiteDBPath != "" {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// ValidateExport checks the settings only the export worker needs.
func (c *Config) ValidateExport() error {
	var problems []string
	if c.GoogleSpreadsheetID == "" {
		problems = append(problems, "GOOGLE_SPREADSHEET_ID is required for the export worker")
	}
	if c.GoogleSheetName == "" {
		problems = append(problems, "GOOGLE_SHEET_NAME is required for the export worker")
	}
	if c.AMQPURL == "" {
		problems = append(problems, "AMQP_URL is required for the export worker")
	}
	if c.FetchLogBackend != "sqlite" {
		problems = append(problems, "FETCHLOG_BACKEND must be 'sqlite' for the export worker")
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

var envNames = map[string]string{
	"Port":               "PORT",
	"LogLevel":           "LOG_LEVEL",
	"RateLimitPerMinute": "RATE_LIMIT_PER_MINUTE",
	"StatsAPIURL":        "STATS_API_URL",
	"StatsAPITimeout":    "STATS_API_TIMEOUT",
	"FetchLogBackend":    "FETCHLOG_BACKEND",
	"SQLiteDBPath":       "SQLITE_DB_PATH",
	"AMQPURL":            "AMQP_URL",
	"AMQPExchange":       "AMQP_EXCHANGE",
	"AMQPQueue":          "AMQP_QUEUE",
	"ExportBatchSize":    "EXPORT_BATCH_SIZE",
	"ExportInterval":     "EXPORT_INTERVAL",
}

func describe(fe validator.FieldError) string {
	name := envNames[fe.StructField()]
	if name == "" {
		name = fe.StructField()
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "required_if":
		return fmt.Sprintf("%s cannot be empty when using sqlite backend", name)
	case "required_with":
		return fmt.Sprintf("%s cannot be empty when AMQP_URL is provided", name)
	case "numeric":
		return fmt.Sprintf("invalid %s '%v': must be a number", name, fe.Value())
	case "oneof":
		return fmt.Sprintf("invalid %s '%v': must be one of [%s]", name, fe.Value(), fe.Param())
	case "url", "startswith":
		return fmt.Sprintf("invalid %s '%v': must be an http(s) URL", name, fe.Value())
	case "min":
		return fmt.Sprintf("invalid %s %v: must be at least %s", name, fe.Value(), fe.Param())
	case "max":
		return fmt.Sprintf("invalid %s %v: must be at most %s", name, fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("invalid %s '%v': failed %s", name, fe.Value(), fe.Tag())
	}
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
