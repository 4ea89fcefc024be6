// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-dashboard/internal/gateway"
	"github.com/dvloznov/finance-dashboard/internal/kvstore"
	"github.com/dvloznov/finance-dashboard/internal/ledger"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP Server
	Port string

	// Ledger storage
	LedgerBackend         string
	LedgerKey             string
	LedgerDir             string
	SQLiteDBPath          string
	GCSBucket             string
	GCSPrefix             string
	GoogleCredentialsFile string

	// AI gateway
	AIProvider         string
	GeminiAPIKey       string
	GeminiCaptureModel string
	GeminiAdviceModel  string
	OpenAIAPIKey       string
	OpenAIModel        string
	GatewayTimeout     time.Duration

	// Dashboard
	TrendMonths int

	// Job queue
	QueueWorkers int
	QueueBuffer  int

	// AMQP ledger events, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Export
	BigQueryProject string
	BigQueryDataset string
	BigQueryTable   string
	NotionToken     string
	NotionDBID      string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env from the working directory when present, then the
// environment. Variables already set in the environment win.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the configuration from the environment only.
func FromEnv() *Config {
	return &Config{
		Port: getEnv("PORT", "8080"),

		LedgerBackend:         getEnv("LEDGER_BACKEND", string(kvstore.BackendFile)),
		LedgerKey:             getEnv("LEDGER_KEY", ledger.DefaultKey),
		LedgerDir:             getEnv("LEDGER_DIR", "./data"),
		SQLiteDBPath:          getEnv("SQLITE_DB_PATH", "./data/ledger.db"),
		GCSBucket:             getEnv("GCS_BUCKET", ""),
		GCSPrefix:             getEnv("GCS_PREFIX", "ledger"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),

		AIProvider:         getEnv("AI_PROVIDER", string(gateway.ProviderGemini)),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", getEnv("API_KEY", "")),
		GeminiCaptureModel: getEnv("GEMINI_CAPTURE_MODEL", gateway.DefaultGeminiCaptureModel),
		GeminiAdviceModel:  getEnv("GEMINI_ADVICE_MODEL", gateway.DefaultGeminiAdviceModel),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", gateway.DefaultOpenAIModel),
		GatewayTimeout:     getEnvDuration("GATEWAY_TIMEOUT", 60*time.Second),

		TrendMonths: getEnvInt("TREND_MONTHS", 6),

		QueueWorkers: getEnvInt("QUEUE_WORKERS", 2),
		QueueBuffer:  getEnvInt("QUEUE_BUFFER", 16),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finance.ledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "finance.ledger.mirror"),

		BigQueryProject: getEnv("BIGQUERY_PROJECT", ""),
		BigQueryDataset: getEnv("BIGQUERY_DATASET", "finance"),
		BigQueryTable:   getEnv("BIGQUERY_TABLE", "ledger_transactions"),
		NotionToken:     getEnv("NOTION_TOKEN", ""),
		NotionDBID:      getEnv("NOTION_DB_ID", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	backend := kvstore.Backend(c.LedgerBackend)
	if !backend.IsValid() {
		errors = append(errors, fmt.Sprintf("invalid ledger backend '%s': must be one of memory, file, sqlite, gcs", c.LedgerBackend))
	}
	if strings.TrimSpace(c.LedgerKey) == "" {
		errors = append(errors, "ledger key cannot be empty")
	}
	switch backend {
	case kvstore.BackendFile:
		if c.LedgerDir == "" {
			errors = append(errors, "LEDGER_DIR is required when using file backend")
		}
	case kvstore.BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	case kvstore.BackendGCS:
		if c.GCSBucket == "" {
			errors = append(errors, "GCS_BUCKET is required when using gcs backend")
		}
	}

	if c.GoogleCredentialsFile != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
		}
	}

	switch gateway.Provider(c.AIProvider) {
	case gateway.ProviderGemini:
	case gateway.ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errors = append(errors, "OPENAI_API_KEY is required when AI_PROVIDER is openai")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid AI provider '%s': must be gemini or openai", c.AIProvider))
	}
	if c.GatewayTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid gateway timeout %v: must be at least 1 second", c.GatewayTimeout))
	}

	if c.TrendMonths < 1 || c.TrendMonths > 120 {
		errors = append(errors, fmt.Sprintf("invalid trend months %d: must be between 1 and 120", c.TrendMonths))
	}
	if c.QueueWorkers < 1 {
		errors = append(errors, fmt.Sprintf("invalid queue workers %d: must be at least 1", c.QueueWorkers))
	}
	if c.QueueBuffer < 1 {
		errors = append(errors, fmt.Sprintf("invalid queue buffer %d: must be at least 1", c.QueueBuffer))
	}

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

// KVOptions returns the ledger storage backend options.
func (c *Config) KVOptions() kvstore.Options {
	return kvstore.Options{
		Backend:         kvstore.Backend(c.LedgerBackend),
		Dir:             c.LedgerDir,
		SQLitePath:      c.SQLiteDBPath,
		Bucket:          c.GCSBucket,
		Prefix:          c.GCSPrefix,
		CredentialsFile: c.GoogleCredentialsFile,
	}
}

// GatewayConfig returns the AI provider settings.
func (c *Config) GatewayConfig() gateway.ProviderConfig {
	return gateway.ProviderConfig{
		Provider:           gateway.Provider(c.AIProvider),
		Timeout:            c.GatewayTimeout,
		GeminiAPIKey:       c.GeminiAPIKey,
		GeminiCaptureModel: c.GeminiCaptureModel,
		GeminiAdviceModel:  c.GeminiAdviceModel,
		OpenAIAPIKey:       c.OpenAIAPIKey,
		OpenAIModel:        c.OpenAIModel,
	}
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.LogLevel, Format: c.LogFormat}
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
