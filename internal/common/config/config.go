// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig      `mapstructure:"app"`
	Database  DatabaseConfig `mapstructure:"database"`
	Queue     QueueConfig    `mapstructure:"queue"`
	Campaigns CampaignConfig `mapstructure:"campaigns"`
	Channels  ChannelConfig  `mapstructure:"channels"`
	Server    ServerConfig   `mapstructure:"server"`
	Logging   LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// QueueConfig holds settings for the notification queue engine.
type QueueConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	BatchLimit   int           `mapstructure:"batch_limit"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
}

// CampaignConfig holds defaults for the campaign batch dispatcher.
type CampaignConfig struct {
	DefaultBatchSize   int    `mapstructure:"default_batch_size"`
	DefaultSendDelayMs int    `mapstructure:"default_send_delay_ms"`
	TrackingBaseURL    string `mapstructure:"tracking_base_url"`
}

// ChannelConfig holds settings for the concrete channel senders.
type ChannelConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`

	Email struct {
		Enabled       bool          `mapstructure:"enabled"`
		FromEmail     string        `mapstructure:"from_email"`
		RatePerSecond float64       `mapstructure:"rate_per_second"`
		Timeout       time.Duration `mapstructure:"timeout"`
	} `mapstructure:"email"`

	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`

	Push struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"push"`
}

type ServerConfig struct {
	Address        string `mapstructure:"address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
