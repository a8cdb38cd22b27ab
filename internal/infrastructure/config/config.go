package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all client configuration
type Config struct {
	App     AppConfig
	API     APIConfig
	Session SessionConfig
	Cache   CacheConfig
	Redis   RedisConfig
	Log     LogConfig
	Metrics MetricsConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// APIConfig holds backend connection settings
type APIConfig struct {
	BaseURL           string
	Timeout           time.Duration
	UserAgent         string
	LoginPath         string
	RefreshPath       string
	LoginRoute        string // where the session is sent when it can no longer be refreshed
	CSRFCookie        string
	CSRFHeader        string
	CSRFToken         string // static token, used when the backend does not set a cookie
	RateLimitRequests float64
	RateLimitBurst    int
}

// SessionConfig selects where tokens and the user blob are persisted
type SessionConfig struct {
	Store    string // file, memory, redis
	Path     string
	RedisKey string
	RedisTTL time.Duration
}

// CacheConfig holds query cache settings
type CacheConfig struct {
	StaleTime        time.Duration
	BroadcastEnabled bool
	BroadcastChannel string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Addr string
	Path string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CRM_ prefix (e.g., CRM_API_BASE_URL)
// 2. config.toml (or the explicit path)
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".crmctl"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		API: APIConfig{
			BaseURL:           v.GetString("api.base_url"),
			Timeout:           v.GetDuration("api.timeout"),
			UserAgent:         v.GetString("api.user_agent"),
			LoginPath:         v.GetString("api.login_path"),
			RefreshPath:       v.GetString("api.refresh_path"),
			LoginRoute:        v.GetString("api.login_route"),
			CSRFCookie:        v.GetString("api.csrf_cookie"),
			CSRFHeader:        v.GetString("api.csrf_header"),
			CSRFToken:         v.GetString("api.csrf_token"),
			RateLimitRequests: v.GetFloat64("api.rate_limit_requests"),
			RateLimitBurst:    v.GetInt("api.rate_limit_burst"),
		},
		Session: SessionConfig{
			Store:    v.GetString("session.store"),
			Path:     v.GetString("session.path"),
			RedisKey: v.GetString("session.redis_key"),
			RedisTTL: v.GetDuration("session.redis_ttl"),
		},
		Cache: CacheConfig{
			StaleTime:        v.GetDuration("cache.stale_time"),
			BroadcastEnabled: v.GetBool("cache.broadcast_enabled"),
			BroadcastChannel: v.GetString("cache.broadcast_channel"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
			Path: v.GetString("metrics.path"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "crmctl"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8000/api"
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = "crmctl/1.0"
	}
	if cfg.API.LoginPath == "" {
		cfg.API.LoginPath = "/auth/login/"
	}
	if cfg.API.RefreshPath == "" {
		cfg.API.RefreshPath = "/auth/token/refresh/"
	}
	if cfg.API.LoginRoute == "" {
		cfg.API.LoginRoute = "/login"
	}
	if cfg.API.CSRFCookie == "" {
		cfg.API.CSRFCookie = "csrftoken"
	}
	if cfg.API.CSRFHeader == "" {
		cfg.API.CSRFHeader = "X-CSRFToken"
	}
	if cfg.API.RateLimitRequests > 0 && cfg.API.RateLimitBurst == 0 {
		cfg.API.RateLimitBurst = 1
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = "file"
	}
	if cfg.Session.Path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Session.Path = filepath.Join(home, ".crmctl", "session.json")
		} else {
			cfg.Session.Path = "session.json"
		}
	}
	if cfg.Session.RedisKey == "" {
		cfg.Session.RedisKey = "crm:session"
	}
	if cfg.Cache.StaleTime == 0 {
		cfg.Cache.StaleTime = 30 * time.Second
	}
	if cfg.Cache.BroadcastChannel == "" {
		cfg.Cache.BroadcastChannel = "crm:cache:invalidate"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", u.Scheme)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout cannot be negative")
	}
	if c.API.RateLimitRequests < 0 {
		return fmt.Errorf("api.rate_limit_requests cannot be negative")
	}

	switch c.Session.Store {
	case "file", "memory", "redis":
	default:
		return fmt.Errorf("session.store must be one of file, memory, redis; got %q", c.Session.Store)
	}

	if c.Cache.StaleTime < 0 {
		return fmt.Errorf("cache.stale_time cannot be negative")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if u.Scheme != "https" {
			return fmt.Errorf("api.base_url must use https in production")
		}
		if c.Session.Store == "memory" {
			return fmt.Errorf("session.store=memory is not allowed in production")
		}
	}

	return nil
}

// Addr returns host:port for the Redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// NeedsRedis reports whether any component is configured to use Redis
func (c *Config) NeedsRedis() bool {
	return c.Session.Store == "redis" || c.Cache.BroadcastEnabled
}
