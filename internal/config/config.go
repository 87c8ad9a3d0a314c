package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Environment variables win over an optional config.yaml, which wins over the
// defaults. A .env file is loaded into the environment on import.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Session   SessionConfig   `mapstructure:"session"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// AllowedOrigins enables CORS for these origins only. Empty means the
	// page is served same-origin and no CORS headers are sent.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// TrustProxy makes X-Forwarded-For count for the client IP. Only set it
	// behind a proxy on a private or loopback address that rewrites the header.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

// GeminiConfig describes the generation endpoint. APIKey is never logged.
type GeminiConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	Endpoint         string        `mapstructure:"endpoint"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes"`
}

type SessionConfig struct {
	Secret      string        `mapstructure:"secret"`
	CookieName  string        `mapstructure:"cookie_name"`
	TTL         time.Duration `mapstructure:"ttl"`
	MaxSessions int           `mapstructure:"max_sessions"`
}

// RateLimitConfig bounds plan requests per session.
type RateLimitConfig struct {
	PlansPerMinute float64 `mapstructure:"plans_per_minute"`
	Burst          int     `mapstructure:"burst"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// IsProduction reports whether cookies should be marked Secure.
func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "1m")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.trust_proxy", false)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.endpoint", "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent")
	v.SetDefault("gemini.timeout", "60s")
	v.SetDefault("gemini.max_response_bytes", 1<<20)

	v.SetDefault("session.secret", "")
	v.SetDefault("session.cookie_name", "fitcoach_session")
	v.SetDefault("session.ttl", "2h")
	v.SetDefault("session.max_sessions", 1024)

	v.SetDefault("ratelimit.plans_per_minute", 6)
	v.SetDefault("ratelimit.burst", 2)

	v.SetDefault("app.env", "development")
	v.SetDefault("log.level", "info")
}

// LoadConfig reads configuration from path/config.yaml (optional) and the
// environment. Nested keys map to env vars with dots replaced by underscores,
// so gemini.api_key is GEMINI_API_KEY. PORT is honored for server.port.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("server.port", "SERVER_PORT", "PORT"); err != nil {
		return cfg, fmt.Errorf("failed to bind PORT: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Gemini.Timeout <= 0 {
		return fmt.Errorf("gemini timeout must be positive, got %s", c.Gemini.Timeout)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Session.MaxSessions <= 0 {
		return fmt.Errorf("session max_sessions must be positive, got %d", c.Session.MaxSessions)
	}
	if c.IsProduction() && c.Session.Secret == "" {
		return errors.New("SESSION_SECRET must be set in production")
	}
	return nil
}
