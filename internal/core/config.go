// Package core implements the codbot engine: configuration, the update
// polling loop, command routing, per-account session multiplexing, and
// periodic feed dispatch.
//
// The engine long-polls the Telegram gateway for updates, routes each update
// through the multiplexer to the owning session's command router, then runs
// one feed dispatcher sweep across all live sessions before sleeping until
// the next tick. Everything runs on a single loop goroutine; session state is
// never touched concurrently.
package core

import (
	"fmt"
	"os"
	"strings"

	"github.com/dvidales/codbot/pkg/constants"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPollTimeoutSeconds = 3
	DefaultLogLevel           = "info"
)

// Config represents the complete codbot configuration structure
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Cod      CodConfig      `yaml:"cod"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TelegramConfig represents the messaging gateway configuration
type TelegramConfig struct {
	Token              string `yaml:"token"`
	PollTimeoutSeconds int    `yaml:"poll_timeout_s"`
	WebhookURL         string `yaml:"webhook_url"` // optional; registered at startup if unset on the gateway
}

// CodConfig represents the bootstrap stats platform credentials. An account
// row is ensured for them at startup so the bot works without a sign-up.
type CodConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// DatabaseConfig represents the account store connection settings
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	File         string `yaml:"file"`
	MaxSize      int    `yaml:"max_size"`
	MaxBackups   int    `yaml:"max_backups"`
	MaxAge       int    `yaml:"max_age"`
	Compress     bool   `yaml:"compress"`
	EnableStdout bool   `yaml:"enable_stdout"`
}

// LoadConfig loads configuration from file and expands environment variables
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData, err := expandEnv(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// expandEnv replaces ${VAR_NAME} patterns with environment variable values
func expandEnv(input string) (string, error) {
	var missingVars []string

	result := os.Expand(input, func(key string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		missingVars = append(missingVars, key)
		return ""
	})

	if len(missingVars) > 0 {
		return "", fmt.Errorf("missing required environment variables: %s",
			strings.Join(missingVars, ", "))
	}

	return result, nil
}

// validateConfig performs basic validation on the configuration
func validateConfig(config *Config) error {
	if config.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if config.Telegram.PollTimeoutSeconds == 0 {
		config.Telegram.PollTimeoutSeconds = DefaultPollTimeoutSeconds
	}
	if config.Telegram.PollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.poll_timeout_s must be positive (got %d)", config.Telegram.PollTimeoutSeconds)
	}

	if config.Cod.User == "" || config.Cod.Password == "" {
		return fmt.Errorf("cod.user and cod.password are required")
	}

	if config.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = DefaultLogLevel
	}
	if config.Logging.MaxSize == 0 {
		config.Logging.MaxSize = constants.DefaultLogMaxSize
	}
	if config.Logging.MaxBackups == 0 {
		config.Logging.MaxBackups = constants.DefaultLogMaxBackups
	}
	if config.Logging.MaxAge == 0 {
		config.Logging.MaxAge = constants.DefaultLogMaxAge
	}

	return nil
}
