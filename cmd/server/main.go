package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/config"
	"github.com/garyjia/sygfp/internal/container"
	httpapi "github.com/garyjia/sygfp/internal/interfaces/http"
	"github.com/garyjia/sygfp/pkg/utils"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := os.Getenv("SYGFP_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "sygfp",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting SYGFP spending-chain service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	containerCfg, err := cfg.ToContainerConfig()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	wf := c.Workflow()
	services := c.Services()
	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MaxUploadMB:  cfg.Server.MaxUploadMB,
	}, httpapi.Deps{
		Engine:        wf.Engine,
		Documents:     services.Document,
		Dossiers:      services.Dossier,
		Spending:      services.Spending,
		Attachments:   services.Attachment,
		Notifications: services.Notification,
		Tracker:       wf.Tracker,
		Resolver:      wf.Resolver,
		Files:         c.LocalStorage(),
		Tokens:        httpapi.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		Health: func(ctx context.Context) (bool, interface{}) {
			h := c.Health(ctx)
			return h.Overall, h.Components
		},
	}, container.NewLoggerAdapter(logger))

	// Start blocks until SIGINT/SIGTERM cancels ctx
	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server stopped with error", zap.Error(err))
	}

	logger.Info("Shutting down...")

	// Give the dispatcher a bounded window to drain post-commit handlers
	done := make(chan struct{})
	go func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown error", zap.Error(err))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Error("Shutdown timed out")
	}

	logger.Info("Server exited successfully")
}
