package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"APP_ENV"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`

	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	LockTimeoutMS int    `mapstructure:"LOCK_TIMEOUT_MS"`
	TxMaxAttempts int    `mapstructure:"TX_MAX_ATTEMPTS"`

	RedisAddr             string `mapstructure:"REDIS_ADDR"`
	RedisPassword         string `mapstructure:"REDIS_PASSWORD"`
	RedisDB               int    `mapstructure:"REDIS_DB"`
	StatusCacheTTLSeconds int    `mapstructure:"STATUS_CACHE_TTL_SECONDS"`

	AuthSecret            string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	SeedAdminPassword     string `mapstructure:"SEED_ADMIN_PASSWORD"`

	BackupDir string `mapstructure:"BACKUP_DIR"`
	// Timezone names the zone used for calendar days. Empty means the host zone.
	Timezone string `mapstructure:"TIMEZONE"`
}

var defaults = map[string]any{
	"PORT":                     "8080",
	"APP_ENV":                  "development",
	"LOG_LEVEL":                "info",
	"ALLOWED_ORIGIN":           "http://127.0.0.1:3000",
	"DATABASE_URL":             "",
	"LOCK_TIMEOUT_MS":          3000,
	"TX_MAX_ATTEMPTS":          3,
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"STATUS_CACHE_TTL_SECONDS": 5,
	"AUTH_SECRET":              "",
	"ACCESS_TOKEN_TTL_MINUTES": 720,
	"SEED_ADMIN_PASSWORD":      "",
	"BACKUP_DIR":               "backups",
	"TIMEZONE":                 "",
}

// Load reads configuration from environment variables and an optional .env
// file in the working directory. Environment variables win.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Every key needs a default so Unmarshal sees values that only exist in
	// the environment.
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing {
			return Config{}, fmt.Errorf("read .env: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.SeedAdminPassword = strings.TrimSpace(cfg.SeedAdminPassword)
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.StatusCacheTTLSeconds < 1 {
		cfg.StatusCacheTTLSeconds = 5
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 720
	}
	if cfg.TxMaxAttempts < 1 {
		cfg.TxMaxAttempts = 1
	}
	if cfg.LockTimeoutMS < 0 {
		cfg.LockTimeoutMS = 0
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) StatusCacheTTL() time.Duration {
	return time.Duration(c.StatusCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

// Location resolves Timezone, falling back to the host zone when it is empty.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}
