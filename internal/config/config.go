package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Stream    StreamConfig    `mapstructure:"stream"`
	API       APIConfig       `mapstructure:"api"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StreamConfig holds the push channel connection settings
type StreamConfig struct {
	URL               string        `mapstructure:"url"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
}

// APIConfig is where clients find the data and alert backend
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DashboardConfig controls the watch command
type DashboardConfig struct {
	Coin            string        `mapstructure:"coin"`
	TimeRange       string        `mapstructure:"time_range"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Highlight       time.Duration `mapstructure:"highlight"`
}

// ServerConfig holds the backend HTTP server settings
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	DataDir         string        `mapstructure:"data_dir"`
	Coins           []string      `mapstructure:"coins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// CacheConfig configures the optional redis cache for fetched coin data
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// MonitorConfig holds alert evaluation settings
type MonitorConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	NotifyTimeout    time.Duration `mapstructure:"notify_timeout"`
	ForecastInterval time.Duration `mapstructure:"forecast_interval"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// KafkaConfig holds the trigger event publisher settings
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. An empty path
// skips the file and uses defaults plus environment. A .env file next to the
// config (or in the working directory) is loaded first; it never overrides
// variables already set.
func Load(path string) (*Config, error) {
	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("COINPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("stream.url", "ws://localhost:5000/ws/prices")
	v.SetDefault("stream.reconnect_attempts", 5)
	v.SetDefault("stream.reconnect_delay", "1s")
	v.SetDefault("stream.ping_interval", "30s")
	v.SetDefault("stream.read_timeout", "60s")

	v.SetDefault("api.base_url", "http://localhost:5000")
	v.SetDefault("api.timeout", "10s")

	v.SetDefault("dashboard.coin", "BTC")
	v.SetDefault("dashboard.time_range", "7days")
	v.SetDefault("dashboard.refresh_interval", "5m")
	v.SetDefault("dashboard.highlight", "2s")

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.coins", []string{})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("storage.db_path", "./data/coinpulse.db")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "5m")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.cooldown", "5m")
	v.SetDefault("monitor.notify_timeout", "30s")
	v.SetDefault("monitor.forecast_interval", "15m")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "coinpulse.alerts")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Stream.URL == "" {
		return fmt.Errorf("stream.url is required")
	}
	if c.Stream.ReconnectAttempts < 1 {
		return fmt.Errorf("stream.reconnect_attempts must be at least 1")
	}
	if c.Stream.ReconnectDelay < 0 {
		return fmt.Errorf("stream.reconnect_delay must not be negative")
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}

	switch strings.ToLower(c.Dashboard.TimeRange) {
	case "7days", "30days", "1year":
	default:
		return fmt.Errorf("dashboard.time_range must be one of: 7days, 30days, 1year")
	}
	if c.Dashboard.RefreshInterval < 10*time.Second {
		return fmt.Errorf("dashboard.refresh_interval must be at least 10 seconds")
	}
	if c.Dashboard.Highlight <= 0 {
		return fmt.Errorf("dashboard.highlight must be positive")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.DataDir == "" {
		return fmt.Errorf("server.data_dir is required")
	}

	if c.Cache.Enabled {
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required when cache is enabled")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive")
		}
	}

	if c.Monitor.Enabled && c.Monitor.ForecastInterval < time.Minute {
		return fmt.Errorf("monitor.forecast_interval must be at least 1 minute")
	}
	if c.Monitor.Cooldown < 0 {
		return fmt.Errorf("monitor.cooldown must not be negative")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers must contain at least one broker when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
