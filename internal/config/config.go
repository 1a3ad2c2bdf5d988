// Package config loads application configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultSessionSecret = "diary-dev-secret-key-change-in-prod"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	Addr     string `mapstructure:"ADDR"`

	DBDriver string `mapstructure:"DB_DRIVER"`
	DBConn   string `mapstructure:"DB_CONN"`

	UploadDir   string `mapstructure:"UPLOAD_DIR"`
	MaxUploadMB int64  `mapstructure:"MAX_UPLOAD_MB"`

	SessionSecret  string        `mapstructure:"SESSION_SECRET"`
	SessionBackend string        `mapstructure:"SESSION_BACKEND"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	CookieSecure   bool          `mapstructure:"COOKIE_SECURE"`

	BlobBackend string `mapstructure:"BLOB_BACKEND"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3Prefix    string `mapstructure:"S3_PREFIX"`
	S3Region    string `mapstructure:"S3_REGION"`
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`

	MCPEnabled bool `mapstructure:"MCP_ENABLED"`
}

var defaults = map[string]any{
	"APP_ENV":         "development",
	"LOG_LEVEL":       "info",
	"ADDR":            "127.0.0.1:5000",
	"DB_DRIVER":       "sqlite3",
	"DB_CONN":         "./diary.db",
	"UPLOAD_DIR":      "./uploads",
	"MAX_UPLOAD_MB":   16,
	"SESSION_SECRET":  defaultSessionSecret,
	"SESSION_BACKEND": "memory",
	"SESSION_TTL":     "168h",
	"REDIS_URL":       "redis://localhost:6379/0",
	"COOKIE_SECURE":   false,
	"BLOB_BACKEND":    "filesystem",
	"S3_BUCKET":       "",
	"S3_PREFIX":       "",
	"S3_REGION":       "",
	"S3_ENDPOINT":     "",
	"S3_ACCESS_KEY":   "",
	"S3_SECRET_KEY":   "",
	"MCP_ENABLED":     false,
}

// Load reads .env (if present), an optional config.yml, then environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Production() bool {
	return c.Env == "production" || c.Env == "prod"
}

// MaxUploadBytes is the request body cap for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite3 or postgres, got %q", c.DBDriver)
	}
	if c.DBConn == "" {
		return errors.New("DB_CONN is required")
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be positive")
	}
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	switch c.SessionBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("SESSION_BACKEND must be memory or redis, got %q", c.SessionBackend)
	}
	switch c.BlobBackend {
	case "filesystem":
		if c.UploadDir == "" {
			return errors.New("UPLOAD_DIR is required for the filesystem backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be filesystem or s3, got %q", c.BlobBackend)
	}

	if c.Production() {
		if c.SessionSecret == defaultSessionSecret {
			return errors.New("SESSION_SECRET must be changed from the default value in production")
		}
		if len(c.SessionSecret) < 32 {
			return errors.New("SESSION_SECRET must be at least 32 characters in production")
		}
	}
	return nil
}
