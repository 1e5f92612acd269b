// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/sygfp/internal/application/rbac"
	"github.com/garyjia/sygfp/internal/application/service"
	"github.com/garyjia/sygfp/internal/application/validation"
	appwf "github.com/garyjia/sygfp/internal/application/workflow"
	"github.com/garyjia/sygfp/internal/infrastructure/storage"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxUploadMB  int64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		MaxUploadMB:  20,
	}
}

// HealthFunc reports component health for GET /health
type HealthFunc func(ctx context.Context) (healthy bool, detail interface{})

// Deps are the application components the handlers call.
// Files is only set for the local storage backend. Health may be nil.
type Deps struct {
	Engine        appwf.Engine
	Documents     service.DocumentService
	Dossiers      service.DossierService
	Spending      service.SpendingService
	Attachments   service.AttachmentService
	Notifications service.NotificationService
	Tracker       *validation.Tracker
	Resolver      *rbac.Resolver
	Files         *storage.LocalStorage
	Tokens        *TokenIssuer
	Health        HealthFunc
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Deps
	logger     Logger
}

// NewServer creates a new HTTP server with the given dependencies
func NewServer(config ServerConfig, deps Deps, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	if s.config.MaxUploadMB > 0 {
		s.router.MaxMultipartMemory = s.config.MaxUploadMB << 20
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"user_id", currentUser(c),
		)
	}
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps, s.config.MaxUploadMB<<20, s.logger)

	s.router.GET("/health", h.HealthCheck)

	public := s.router.Group("/api/v1")
	public.GET("/files", h.DownloadFile)

	api := s.router.Group("/api/v1", JWTAuth(s.deps.Tokens))
	{
		api.GET("/prerequisites", h.CheckPrerequisites)

		docs := api.Group("/documents")
		docs.POST("", h.CreateDocument)
		docs.GET("", h.ListDocuments)
		docs.GET("/:id", h.GetDocument)
		docs.PATCH("/:id", h.UpdateDraft)
		docs.GET("/:id/history", h.GetHistory)
		docs.GET("/:id/progress", h.GetProgress)
		docs.GET("/:id/transitions", h.GetAvailableTransitions)
		docs.GET("/:id/next-action", h.GetNextAction)
		docs.POST("/:id/submit", h.Submit)
		docs.POST("/:id/validate", h.Validate)
		docs.POST("/:id/reject", h.Reject)
		docs.POST("/:id/defer", h.Defer)
		docs.POST("/:id/resubmit", h.Resubmit)
		docs.POST("/:id/actions", h.ApplyAction)
		docs.GET("/:id/attachments", h.ListAttachments)
		docs.POST("/:id/attachments", h.UploadAttachment)

		api.GET("/attachments/:id/url", h.AttachmentURL)
		api.DELETE("/attachments/:id", h.DeleteAttachment)

		api.GET("/dossiers/:ref", h.GetDossier)
		api.GET("/dossiers/:ref/timeline", h.GetTimeline)

		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/unread-count", h.CountUnread)
		api.POST("/notifications/:id/read", h.MarkRead)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
