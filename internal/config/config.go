package config

import (
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	ServerPort          string        `mapstructure:"SERVER_PORT"`
	StoreDriver         string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	SQLitePath          string        `mapstructure:"SQLITE_PATH"`
	JWTSecret           string        `mapstructure:"JWT_SECRET"`
	StripeWebhookSecret string        `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	OfflineAfter        time.Duration `mapstructure:"OFFLINE_AFTER"`
	SweepInterval       time.Duration `mapstructure:"SWEEP_INTERVAL"`
	AckGrace            time.Duration `mapstructure:"ACK_GRACE"`
	AWSRegion           string        `mapstructure:"AWS_REGION"`
	AlertFromEmail      string        `mapstructure:"ALERT_FROM_EMAIL"`
	AlertToEmail        string        `mapstructure:"ALERT_TO_EMAIL"`
}

var defaults = map[string]any{
	"SERVER_PORT":           "8080",
	"STORE_DRIVER":          DriverPostgres,
	"DATABASE_URL":          "",
	"SQLITE_PATH":           "vending.db",
	"JWT_SECRET":            "",
	"STRIPE_WEBHOOK_SECRET": "",
	"LOG_LEVEL":             "info",
	"OFFLINE_AFTER":         "2m",
	"SWEEP_INTERVAL":        "30s",
	"ACK_GRACE":             "5m",
	"AWS_REGION":            "",
	"ALERT_FROM_EMAIL":      "",
	"ALERT_TO_EMAIL":        "",
}

// LoadConfig reads <path>/.env when present and lets environment variables override it.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	// Defaults register every key so env-only values reach Unmarshal.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No .env file found.")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the %s driver", DriverPostgres)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: SQLITE_PATH is required for the %s driver", DriverSQLite)
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.OfflineAfter <= 0 || c.SweepInterval <= 0 || c.AckGrace <= 0 {
		return fmt.Errorf("config: OFFLINE_AFTER, SWEEP_INTERVAL and ACK_GRACE must be positive")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AlertsEnabled reports whether operator mail alerts can be sent.
func (c *Config) AlertsEnabled() bool {
	return c.AWSRegion != "" && c.AlertFromEmail != "" && c.AlertToEmail != ""
}
