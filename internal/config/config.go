package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/openferry/ferry/internal/utils"
)

const envPrefix = "FERRY"

const (
	BackendFTP = "ftp"
	BackendS3  = "s3"
)

// Config is the full daemon configuration, resolved from the environment.
// A .env file in the working directory is loaded first, then FERRY_* vars.
type Config struct {
	// transfer connection
	Host     string
	Port     int
	User     string
	Password string
	Secure   bool

	// transfer backend
	Backend   string
	Bucket    string
	Region    string
	RemoteDir string

	// retry policy
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64

	// upload concurrency
	MaxConcurrent int

	// include globs; empty means all files
	Include []string

	// status API
	StatusAddr  string
	StatusToken string

	LogLevel string
}

// Load resolves the configuration from the environment. A `.env` file in the
// working directory contributes variables without overriding the real
// environment.
func Load() (*Config, error) {
	if utils.FileExists(".env") {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("port", 21)
	v.SetDefault("secure", false)
	v.SetDefault("backend", BackendFTP)
	v.SetDefault("region", "us-east-1")
	v.SetDefault("remote_dir", "")
	v.SetDefault("max_retries", 3)
	v.SetDefault("initial_delay_ms", 1000)
	v.SetDefault("max_delay_ms", 30000)
	v.SetDefault("backoff_multiplier", 2.0)
	v.SetDefault("max_concurrent", 4)
	v.SetDefault("include", "")
	v.SetDefault("status_addr", "127.0.0.1:7117")
	v.SetDefault("status_token", "")
	v.SetDefault("log_level", "info")

	cfg := &Config{
		Host:              v.GetString("host"),
		Port:              v.GetInt("port"),
		User:              v.GetString("user"),
		Password:          v.GetString("password"),
		Secure:            v.GetBool("secure"),
		Backend:           strings.ToLower(v.GetString("backend")),
		Bucket:            v.GetString("bucket"),
		Region:            v.GetString("region"),
		RemoteDir:         v.GetString("remote_dir"),
		MaxRetries:        v.GetInt("max_retries"),
		InitialDelay:      time.Duration(v.GetInt("initial_delay_ms")) * time.Millisecond,
		MaxDelay:          time.Duration(v.GetInt("max_delay_ms")) * time.Millisecond,
		BackoffMultiplier: v.GetFloat64("backoff_multiplier"),
		MaxConcurrent:     v.GetInt("max_concurrent"),
		Include:           splitList(v.GetString("include")),
		StatusAddr:        v.GetString("status_addr"),
		StatusToken:       v.GetString("status_token"),
		LogLevel:          strings.ToLower(v.GetString("log_level")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every configuration problem it can find in one error.
func (c *Config) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "FERRY_HOST")
	}
	if c.User == "" {
		missing = append(missing, "FERRY_USER")
	}
	if c.Password == "" {
		missing = append(missing, "FERRY_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	switch c.Backend {
	case BackendFTP:
	case BackendS3:
		if c.Bucket == "" {
			return fmt.Errorf("missing required configuration: FERRY_BUCKET (backend %q)", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q, expected %q or %q", c.Backend, BackendFTP, BackendS3)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial delay must be >= 0, got %s", c.InitialDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max delay %s must be >= initial delay %s", c.MaxDelay, c.InitialDelay)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1, got %g", c.BackoffMultiplier)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent must be >= 1, got %d", c.MaxConcurrent)
	}

	return nil
}

// SlogLevel maps the configured log level onto slog. Unknown values fall back
// to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StatusEnabled reports whether the local status API should be served.
func (c *Config) StatusEnabled() bool {
	return c.StatusAddr != "" && !strings.EqualFold(c.StatusAddr, "off")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
