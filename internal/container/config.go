// Package container provides dependency injection and lifecycle management
// for the SYGFP spending-chain service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database DatabaseConfig
	Auth     AuthConfig
	Sequence SequenceConfig
	Storage  StorageConfig
	Lark     LarkConfig
	Server   ServerConfig

	// Workflow holds the amounts that switch workflow branches
	Workflow workflow.Thresholds
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// SequenceConfig selects where reference counters live.
type SequenceConfig struct {
	// Backend is "sqlite" or "redis"
	Backend   string
	KeyPrefix string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// StorageConfig holds attachment storage settings.
type StorageConfig struct {
	// Backend is "local" or "minio"
	Backend   string
	LocalDir  string
	BaseURL   string
	URLSecret string
	URLExpiry time.Duration

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
}

// LarkConfig holds Lark API settings. Push delivery is off unless Enabled.
type LarkConfig struct {
	Enabled   bool
	AppID     string
	AppSecret string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxUploadMB  int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/sygfp.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: AuthConfig{
			Issuer:   "sygfp",
			TokenTTL: 12 * time.Hour,
		},
		Sequence: SequenceConfig{
			Backend:   "sqlite",
			KeyPrefix: "seq",
		},
		Storage: StorageConfig{
			Backend:   "local",
			LocalDir:  "data/attachments",
			BaseURL:   "http://localhost:8080",
			URLExpiry: 15 * time.Minute,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			MaxUploadMB:  20,
		},
		Workflow: workflow.DefaultThresholds(),
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Sequence.Backend {
	case "sqlite":
	case "redis":
		if c.Sequence.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis sequence backend")
		}
	default:
		return fmt.Errorf("unknown sequence backend %q", c.Sequence.Backend)
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" || c.Storage.URLSecret == "" {
			return fmt.Errorf("local storage needs a directory and a url secret")
		}
	case "minio":
		if c.Storage.MinIOEndpoint == "" || c.Storage.MinIOBucket == "" {
			return fmt.Errorf("minio storage needs an endpoint and a bucket")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
	}

	if !c.Workflow.MarcheRequired.IsPositive() || !c.Workflow.DGValidation.IsPositive() {
		return fmt.Errorf("workflow thresholds must be positive")
	}

	return nil
}
