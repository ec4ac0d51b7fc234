// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	// .env is optional; system environment always wins.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_POSTGRES_PASSWORD
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Per-environment overlay, e.g. config.production.yaml
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "delivery-pipeline"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}

	if cfg.Queue.TickInterval == 0 {
		cfg.Queue.TickInterval = time.Minute
	}
	if cfg.Queue.BatchLimit == 0 {
		cfg.Queue.BatchLimit = 50
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.LockTTL == 0 {
		cfg.Queue.LockTTL = 5 * time.Minute
	}

	if cfg.Campaigns.DefaultBatchSize == 0 {
		cfg.Campaigns.DefaultBatchSize = 50
	}
	if cfg.Campaigns.DefaultSendDelayMs == 0 {
		cfg.Campaigns.DefaultSendDelayMs = 1000
	}

	if cfg.Channels.AWS.Region == "" {
		cfg.Channels.AWS.Region = "us-east-1"
	}
	if cfg.Channels.Email.RatePerSecond == 0 {
		cfg.Channels.Email.RatePerSecond = 14
	}
	if cfg.Channels.Email.Timeout == 0 {
		cfg.Channels.Email.Timeout = 30 * time.Second
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.MetricsAddress == "" {
		cfg.Server.MetricsAddress = ":9090"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Queue.BatchLimit < 1 {
		return fmt.Errorf("queue.batch_limit must be at least 1")
	}
	if cfg.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1")
	}
	if cfg.Campaigns.DefaultBatchSize < 1 {
		return fmt.Errorf("campaigns.default_batch_size must be at least 1")
	}
	if cfg.Campaigns.DefaultSendDelayMs < 0 {
		return fmt.Errorf("campaigns.default_send_delay_ms must not be negative")
	}
	if cfg.Channels.Email.Enabled && cfg.Channels.Email.FromEmail == "" {
		return fmt.Errorf("channels.email.from_email is required when email is enabled")
	}
	return nil
}
