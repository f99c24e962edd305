package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata" // app.timezone must resolve on hosts without a zoneinfo database

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the main structure mapping the entire application configuration.
// This struct uses mapstructure tags to map YAML keys to Go struct fields.
type Config struct {
	// Server configuration section containing HTTP server settings
	Server struct {
		Port    int    `mapstructure:"port"`     // HTTP server port (default: 8080)
		BaseURL string `mapstructure:"base_url"` // Public URL used for pagination links
		Mode    string `mapstructure:"mode"`     // gin mode: debug, release or test
		// Proxies (IPs or CIDRs) whose X-Forwarded-For is believed; empty means the peer address is the client
		TrustedProxies []string `mapstructure:"trusted_proxies"`
	} `mapstructure:"server"`

	// Database configuration section
	Database struct {
		Driver string `mapstructure:"driver"` // sqlite, mysql or postgres
		Name   string `mapstructure:"name"`   // SQLite database file name
		DSN    string `mapstructure:"dsn"`    // connection string for mysql/postgres
	} `mapstructure:"database"`

	// App holds presentation settings for the reports
	App struct {
		Timezone string `mapstructure:"timezone"` // IANA zone used for bucketing
		Locale   string `mapstructure:"locale"`   // label language (ru, en)
	} `mapstructure:"app"`

	// Tracking configures the request-tracking middleware
	Tracking struct {
		Mode            string   `mapstructure:"mode"`             // sync or async
		BufferSize      int      `mapstructure:"buffer_size"`      // async queue size
		WorkerCount     int      `mapstructure:"worker_count"`     // async writers
		ExcludePrefixes []string `mapstructure:"exclude_prefixes"` // paths never recorded
		CookieName      string   `mapstructure:"cookie_name"`
		CookieSecure    bool     `mapstructure:"cookie_secure"`
	} `mapstructure:"tracking"`

	Session struct {
		Timeout time.Duration `mapstructure:"timeout"` // idle time before a session expires
	} `mapstructure:"session"`

	// Presence configures the online detection and the session monitor
	Presence struct {
		OnlineWindow  time.Duration `mapstructure:"online_window"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"presence"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	// Cache configures the report cache; an empty redis_addr selects the in-memory cache
	Cache struct {
		RedisAddr     string        `mapstructure:"redis_addr"`
		RedisPassword string        `mapstructure:"redis_password"`
		RedisDB       int           `mapstructure:"redis_db"`
		ReportTTL     time.Duration `mapstructure:"report_ttl"`
	} `mapstructure:"cache"`

	Activity struct {
		RatePerMinute int `mapstructure:"rate_per_minute"`
		Burst         int `mapstructure:"burst"`
	} `mapstructure:"activity"`

	// Retention purges old traffic rows; days = 0 keeps everything
	Retention struct {
		Days int    `mapstructure:"days"`
		Cron string `mapstructure:"cron"`
	} `mapstructure:"retention"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // text or json
	} `mapstructure:"log"`
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid app.timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// Validate checks the settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Database.Driver != "sqlite" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
	}
	switch c.Tracking.Mode {
	case "sync", "async":
	default:
		return fmt.Errorf("unsupported tracking.mode %q", c.Tracking.Mode)
	}
	if c.Tracking.Mode == "async" && (c.Tracking.BufferSize <= 0 || c.Tracking.WorkerCount <= 0) {
		return errors.New("tracking.buffer_size and tracking.worker_count must be positive in async mode")
	}
	if c.Session.Timeout <= 0 || c.Presence.OnlineWindow <= 0 {
		return errors.New("session.timeout and presence.online_window must be positive")
	}
	if c.Retention.Days < 0 {
		return errors.New("retention.days must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// SetDefaults registers the default value of every configuration option on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.name", "traffic.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("app.timezone", "Europe/Moscow")
	v.SetDefault("app.locale", "ru")
	v.SetDefault("tracking.mode", "sync")
	v.SetDefault("tracking.buffer_size", 1000)
	v.SetDefault("tracking.worker_count", 5)
	v.SetDefault("tracking.exclude_prefixes", []string{"/static/", "/admin/jsi18n/", "/admin/js/", "/admin/img/", "/admin/css/"})
	v.SetDefault("tracking.cookie_name", "sessionid")
	v.SetDefault("tracking.cookie_secure", false)
	v.SetDefault("session.timeout", 30*time.Minute)
	v.SetDefault("presence.online_window", 5*time.Minute)
	v.SetDefault("presence.sweep_interval", time.Minute)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 30*24*time.Hour)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.report_ttl", 10*time.Minute)
	v.SetDefault("activity.rate_per_minute", 10)
	v.SetDefault("activity.burst", 5)
	v.SetDefault("retention.days", 0)
	v.SetDefault("retention.cron", "0 30 3 * * *")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig loads the application configuration using Viper.
// A .env file in the working directory is applied to the environment first,
// then ./configs/config.yaml is read and environment variables override it
// (e.g. "server.port" becomes "SERVER_PORT").
func LoadConfig() (*Config, error) {
	// Ignore the error: a missing .env is the normal production case
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AddConfigPath("./configs")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		slog.Info("config file not found, using default values")
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}

	slog.Debug("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("db_driver", cfg.Database.Driver),
		slog.String("tracking_mode", cfg.Tracking.Mode),
		slog.String("timezone", cfg.App.Timezone))

	return cfg, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
