package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Sequence SequenceConfig `mapstructure:"sequence"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
}

// DatabaseConfig holds database configuration.
// An empty MigrationsDir applies the migrations embedded in the binary.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// SequenceConfig selects the reference counter backend
type SequenceConfig struct {
	Backend   string `mapstructure:"backend"` // sqlite or redis
	KeyPrefix string `mapstructure:"key_prefix"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig holds attachment storage settings
type StorageConfig struct {
	Backend   string        `mapstructure:"backend"` // local or minio
	LocalDir  string        `mapstructure:"local_dir"`
	BaseURL   string        `mapstructure:"base_url"`
	URLSecret string        `mapstructure:"url_secret"`
	URLExpiry time.Duration `mapstructure:"url_expiry"`

	MinIOEndpoint  string `mapstructure:"minio_endpoint"`
	MinIOAccessKey string `mapstructure:"minio_access_key"`
	MinIOSecretKey string `mapstructure:"minio_secret_key"`
	MinIOBucket    string `mapstructure:"minio_bucket"`
	MinIOUseSSL    bool   `mapstructure:"minio_use_ssl"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
}

// WorkflowConfig holds the amounts that switch workflow branches, in FCFA
type WorkflowConfig struct {
	MarcheThreshold string `mapstructure:"marche_threshold"`
	DGThreshold     string `mapstructure:"dg_threshold"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads an optional .env file, then the YAML file at configPath, then the environment.
// An empty configPath skips the file and uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_mb", 20)

	v.SetDefault("database.path", "data/sygfp.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "")

	v.SetDefault("auth.issuer", "sygfp")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("sequence.backend", "sqlite")
	v.SetDefault("sequence.key_prefix", "seq")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "data/attachments")
	v.SetDefault("storage.base_url", "http://localhost:8080")
	v.SetDefault("storage.url_expiry", 15*time.Minute)
	v.SetDefault("storage.minio_bucket", "sygfp-attachments")

	v.SetDefault("lark.enabled", false)

	v.SetDefault("workflow.marche_threshold", "5000000")
	v.SetDefault("workflow.dg_threshold", "50000000")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds secrets to environment variables
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("auth.jwt_secret", "SYGFP_JWT_SECRET")
	_ = v.BindEnv("storage.url_secret", "SYGFP_URL_SECRET")
	_ = v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("database.path", "SYGFP_DB_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Sequence.Backend {
	case "sqlite":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis sequence backend")
		}
	default:
		return fmt.Errorf("sequence.backend must be sqlite or redis, got %q", c.Sequence.Backend)
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required")
		}
		if c.Storage.URLSecret == "" {
			return fmt.Errorf("storage.url_secret is required for local storage")
		}
	case "minio":
		if c.Storage.MinIOEndpoint == "" || c.Storage.MinIOBucket == "" {
			return fmt.Errorf("storage.minio_endpoint and storage.minio_bucket are required")
		}
	default:
		return fmt.Errorf("storage.backend must be local or minio, got %q", c.Storage.Backend)
	}

	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
	}

	if _, _, err := c.Thresholds(); err != nil {
		return err
	}

	return nil
}

// Thresholds parses the workflow amounts
func (c *Config) Thresholds() (marche, dg decimal.Decimal, err error) {
	marche, err = decimal.NewFromString(c.Workflow.MarcheThreshold)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("workflow.marche_threshold: %w", err)
	}
	dg, err = decimal.NewFromString(c.Workflow.DGThreshold)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("workflow.dg_threshold: %w", err)
	}
	if !marche.IsPositive() || !dg.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("workflow thresholds must be positive")
	}
	return marche, dg, nil
}
