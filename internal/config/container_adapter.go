package config

import (
	"github.com/garyjia/sygfp/internal/container"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	marche, dg, err := c.Thresholds()
	if err != nil {
		return nil, err
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Auth: container.AuthConfig{
			JWTSecret: c.Auth.JWTSecret,
			Issuer:    c.Auth.Issuer,
			TokenTTL:  c.Auth.TokenTTL,
		},
		Sequence: container.SequenceConfig{
			Backend:       c.Sequence.Backend,
			KeyPrefix:     c.Sequence.KeyPrefix,
			RedisAddr:     c.Redis.Addr,
			RedisPassword: c.Redis.Password,
			RedisDB:       c.Redis.DB,
		},
		Storage: container.StorageConfig{
			Backend:        c.Storage.Backend,
			LocalDir:       c.Storage.LocalDir,
			BaseURL:        c.Storage.BaseURL,
			URLSecret:      c.Storage.URLSecret,
			URLExpiry:      c.Storage.URLExpiry,
			MinIOEndpoint:  c.Storage.MinIOEndpoint,
			MinIOAccessKey: c.Storage.MinIOAccessKey,
			MinIOSecretKey: c.Storage.MinIOSecretKey,
			MinIOBucket:    c.Storage.MinIOBucket,
			MinIOUseSSL:    c.Storage.MinIOUseSSL,
		},
		Lark: container.LarkConfig{
			Enabled:   c.Lark.Enabled,
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
			MaxUploadMB:  c.Server.MaxUploadMB,
		},
		Workflow: workflow.Thresholds{
			MarcheRequired: marche,
			DGValidation:   dg,
		},
	}, nil
}
