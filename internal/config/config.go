package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	// DebugModeEnv is the environment variable for debug mode.
	DebugModeEnv = "DEBUG_MODE"

	// DBPathEnv is the environment variable for the SQLite database file path.
	DBPathEnv = "DB_PATH"

	// HTTPServerPortEnv is the environment variable for HTTP server port.
	HTTPServerPortEnv = "HTTP_SERVER_PORT"

	// MetricsServerPortEnv is the environment variable for metrics server port.
	MetricsServerPortEnv = "METRICS_SERVER_PORT"

	// EnvFilePath is the environment variable for .env file path (only for local/test environment).
	EnvFilePath = "ENV_PATH"

	// DefaultEnvFilePath is the default path to the .env file.
	DefaultEnvFilePath = ".env"

	// DefaultDBPath is used when DB_PATH is not set.
	DefaultDBPath = "data/products.db"

	// AWSRegionEnv is the environment variable for AWS region.
	AWSRegionEnv = "AWS_REGION"

	// AWSEndpointEnv is the environment variable for AWS endpoint.
	AWSEndpointEnv = "AWS_ENDPOINT"

	// SQSQueueURLEnv is the environment variable for the price event queue URL.
	SQSQueueURLEnv = "SQS_QUEUE_URL"

	// TelegramBotTokenEnv is the environment variable for the Telegram bot token.
	TelegramBotTokenEnv = "TELEGRAM_BOT_TOKEN"

	// TelegramChatIDEnv is the environment variable for the chat that receives alerts and reports.
	TelegramChatIDEnv = "TELEGRAM_CHAT_ID"

	// PriceDropThresholdEnv is the environment variable for the price drop alert threshold in percent.
	PriceDropThresholdEnv = "PRICE_DROP_THRESHOLD"

	// DefaultPriceDropThreshold is the alert threshold used when none is configured.
	DefaultPriceDropThreshold = 10.0
)

var (
	// ErrMissingConfig is returned when required configuration values are missing.
	ErrMissingConfig = errors.New("missing config data")
)

// Config represents the application configuration.
type Config struct {
	DebugMode          bool
	Database           DB
	HTTPServer         Server
	MetricsServer      Server
	AWS                AWSConfig
	Telegram           TelegramConfig
	PriceDropThreshold float64
}

// AWSConfig represents AWS-specific configuration settings.
type AWSConfig struct {
	Region      string
	Endpoint    string
	SQSQueueURL string
}

// DB represents database configuration settings.
type DB struct {
	Path string
}

// Server represents server configuration settings.
type Server struct {
	Port string
}

// TelegramConfig holds the bot credentials. Both values empty disables delivery.
type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// Enabled reports whether Telegram delivery is configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

func allNonEmpty(keyValues map[string]string) error {
	for key, value := range keyValues {
		if value == "" {
			slog.Error("configuration validation failed", slog.String("key", key), slog.String("error", "value is empty"))
			return fmt.Errorf("%w for key: %s", ErrMissingConfig, key)
		}
	}
	return nil
}

func allNumbers(keyValues map[string]string) error {
	for key, value := range keyValues {
		_, err := strconv.Atoi(value)
		if err != nil {
			slog.Error("configuration validation failed", slog.String("key", key), slog.String("value", value), slog.String("error", err.Error()))
			return fmt.Errorf("invalid number for key %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	if err := allNonEmpty(map[string]string{
		DBPathEnv:            c.Database.Path,
		HTTPServerPortEnv:    c.HTTPServer.Port,
		MetricsServerPortEnv: c.MetricsServer.Port,
	}); err != nil {
		return fmt.Errorf("configuration incomplete: %w", err)
	}

	if err := allNumbers(map[string]string{
		HTTPServerPortEnv:    c.HTTPServer.Port,
		MetricsServerPortEnv: c.MetricsServer.Port,
	}); err != nil {
		return fmt.Errorf("invalid port number: %w", err)
	}

	if math.IsNaN(c.PriceDropThreshold) || math.IsInf(c.PriceDropThreshold, 0) {
		return fmt.Errorf("%s must be a finite number, got %v", PriceDropThresholdEnv, c.PriceDropThreshold)
	}
	if c.PriceDropThreshold < 0 {
		return fmt.Errorf("%s must not be negative, got %v", PriceDropThresholdEnv, c.PriceDropThreshold)
	}

	return nil
}

// ValidateNotifier checks the settings the notifier process cannot run without.
func (c *Config) ValidateNotifier() error {
	if err := allNonEmpty(map[string]string{
		SQSQueueURLEnv:      c.AWS.SQSQueueURL,
		TelegramBotTokenEnv: c.Telegram.BotToken,
	}); err != nil {
		return fmt.Errorf("notifier configuration incomplete: %w", err)
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("%w for key: %s", ErrMissingConfig, TelegramChatIDEnv)
	}
	return nil
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if val, err := strconv.ParseBool(os.Getenv(name)); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	if val, err := strconv.ParseFloat(os.Getenv(name), 64); err == nil {
		return val
	}
	return defaultValue
}

func getEnv(name, defaultValue string) string {
	if val := os.Getenv(name); val != "" {
		return val
	}
	return defaultValue
}

// ApplyEnvFile loads environment variables from the specified .env files.
func ApplyEnvFile(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables and validates it.
func LoadFromEnv() (*Config, error) {
	envPath := os.Getenv(EnvFilePath)
	if envPath == "" {
		envPath = DefaultEnvFilePath
	}
	err := ApplyEnvFile(envPath)
	if err != nil {
		// just log the error, maybe all envs are set in another way
		slog.Info("failed to load from .env", slog.Any("err", err))
	}

	var chatID int64
	if raw := os.Getenv(TelegramChatIDEnv); raw != "" {
		chatID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number for key %s: %w", TelegramChatIDEnv, err)
		}
	}

	conf := &Config{
		DebugMode: getEnvAsBool(DebugModeEnv, false),
		Database: DB{
			Path: getEnv(DBPathEnv, DefaultDBPath),
		},
		HTTPServer: Server{
			Port: os.Getenv(HTTPServerPortEnv),
		},
		MetricsServer: Server{
			Port: os.Getenv(MetricsServerPortEnv),
		},
		AWS: AWSConfig{
			Region:      os.Getenv(AWSRegionEnv),
			Endpoint:    os.Getenv(AWSEndpointEnv),
			SQSQueueURL: os.Getenv(SQSQueueURLEnv),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv(TelegramBotTokenEnv),
			ChatID:   chatID,
		},
		PriceDropThreshold: getEnvAsFloat(PriceDropThresholdEnv, DefaultPriceDropThreshold),
	}

	if err := conf.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return conf, nil
}
