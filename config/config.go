package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Security SecurityConfig `json:"security"`
	Amos     AmosConfig     `json:"amos"`
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	APIKey string `json:"api_key"`
}

// AmosConfig contains Amos cloud account settings
type AmosConfig struct {
	Username            string       `json:"username"`
	Password            string       `json:"password"`
	Region              string       `json:"region"` // "CN" or "US"; anything else falls back to CN
	AppID               string       `json:"app_id"`
	PollIntervalSeconds int          `json:"poll_interval_seconds"`
	Devices             []AmosDevice `json:"devices"`
}

// AmosDevice represents a diffuser declared in configuration. Devices not
// listed here are still picked up from the account's cloud device list.
type AmosDevice struct {
	NID   string `json:"nid"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// TelegramConfig contains the optional low-liquid alert settings
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   int64  `json:"chat_id"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json or text
}

// Validate validates the configuration and applies defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	if c.Security.APIKey == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}

	if c.Amos.Username == "" || c.Amos.Password == "" {
		return fmt.Errorf("%w: Amos credentials are required", ErrInvalidConfig)
	}

	if c.Amos.AppID == "" {
		return fmt.Errorf("%w: Amos app ID is required", ErrInvalidConfig)
	}

	if c.Amos.Region == "" {
		c.Amos.Region = "CN" // default
	}

	if c.Amos.PollIntervalSeconds <= 0 {
		c.Amos.PollIntervalSeconds = 30
	}

	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("%w: telegram alerts enabled but bot_token/chat_id missing", ErrInvalidConfig)
	}

	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from environment variables
// This is useful for containerized deployments
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host: getEnv("DIFFUSER_HOST", "0.0.0.0"),
			Port: getEnvInt("DIFFUSER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Path: getEnv("DIFFUSER_DB_PATH", "./diffuser.db"),
		},
		Security: SecurityConfig{
			APIKey: getEnv("DIFFUSER_API_KEY", ""),
		},
		Amos: AmosConfig{
			Username:            getEnv("DIFFUSER_AMOS_USERNAME", ""),
			Password:            getEnv("DIFFUSER_AMOS_PASSWORD", ""),
			Region:              getEnv("DIFFUSER_AMOS_REGION", "CN"),
			AppID:               getEnv("DIFFUSER_AMOS_APP_ID", ""),
			PollIntervalSeconds: getEnvInt("DIFFUSER_POLL_INTERVAL", 30),
		},
		Telegram: TelegramConfig{
			Enabled:  getEnvBool("DIFFUSER_TELEGRAM_ENABLED", false),
			BotToken: getEnv("DIFFUSER_TELEGRAM_BOT_TOKEN", ""),
			ChatID:   int64(getEnvInt("DIFFUSER_TELEGRAM_CHAT_ID", 0)),
		},
		Logging: LoggingConfig{
			Level:  getEnv("DIFFUSER_LOG_LEVEL", "info"),
			Format: getEnv("DIFFUSER_LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
