package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Upstream UpstreamConfig
	Secrets  SecretsConfig
	Sync     SyncConfig
	Log      LogConfig
	User     UserConfig
}

// UserConfig identifies the local account rows belong to.
type UserConfig struct {
	ID string
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path           string
	MigrationsPath string `mapstructure:"migrations_path"`
}

// UpstreamConfig holds aggregation-provider settings.
type UpstreamConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Timeout      time.Duration
}

// SecretsConfig holds the access-token encryption key.
type SecretsConfig struct {
	Key string
}

// SyncConfig holds job-processing knobs.
type SyncConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepLimit    int           `mapstructure:"sweep_limit"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// Load reads configuration from file and env. Env var overrides use prefix FINBOOK_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "finbook", "finbook.db"))
	v.SetDefault("database.migrations_path", "internal/database/migrations")
	v.SetDefault("upstream.base_url", "https://sandbox.plaid.com")
	v.SetDefault("upstream.client_id", "")
	v.SetDefault("upstream.client_secret", "")
	v.SetDefault("upstream.timeout", 30*time.Second)
	v.SetDefault("secrets.key", "")
	v.SetDefault("sync.sweep_interval", time.Minute)
	v.SetDefault("sync.sweep_limit", 25)
	v.SetDefault("sync.max_attempts", 5)
	v.SetDefault("sync.retention_days", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("user.id", "local")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("FINBOOK_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "finbook"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("FINBOOK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Sync.MaxAttempts < 1 {
		c.Sync.MaxAttempts = 1
	}
	return c, nil
}
