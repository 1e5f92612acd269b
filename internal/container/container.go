package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/dispatcher"
	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/application/rbac"
	"github.com/garyjia/sygfp/internal/application/service"
	"github.com/garyjia/sygfp/internal/application/validation"
	appwf "github.com/garyjia/sygfp/internal/application/workflow"
	domainwf "github.com/garyjia/sygfp/internal/domain/workflow"
	"github.com/garyjia/sygfp/internal/infrastructure/persistence/repository"
	"github.com/garyjia/sygfp/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/sygfp/internal/infrastructure/storage"
	"github.com/garyjia/sygfp/internal/infrastructure/worker"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse order.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	allocator   port.SequenceAllocator
	redisClient *redis.Client
	storage     *StorageBundle
	push        port.PushSender

	// Application
	dispatcher dispatcher.Dispatcher
	workflow   *WorkflowBundle

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Document       port.DocumentRepository
	ValidationStep port.ValidationStepRepository
	History        port.HistoryRepository
	Dossier        port.DossierRepository
	Notification   port.NotificationRepository
	Attachment     port.AttachmentRepository
	User           *repository.UserRepository
	Delegation     *repository.DelegationRepository
	Budget         *repository.BudgetRepository
	Sequence       *repository.SequenceRepository
	WorkflowDef    *repository.WorkflowDefinitionRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Document       service.DocumentService
	Audit          service.AuditService
	Dossier        service.DossierService
	Spending       service.SpendingService
	Notification   service.NotificationService
	Attachment     service.AttachmentService
	WorkflowConfig service.WorkflowConfigService
}

// WorkflowBundle groups the engine with the collaborators built alongside it.
type WorkflowBundle struct {
	Registry *domainwf.Registry
	Engine   appwf.Engine
	Tracker  *validation.Tracker
	Resolver *rbac.Resolver
	Services *ServiceBundle
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Sequence allocator, attachment storage and push sender
// 3. Event dispatcher
// 4. Workflow engine and application services
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternal(); err != nil {
		return fmt.Errorf("failed to initialize external components: %w", err)
	}
	c.logger.Info("External components initialized",
		zap.String("sequence_backend", c.config.Sequence.Backend),
		zap.String("storage_backend", c.config.Storage.Backend),
		zap.Bool("lark_push", c.push != nil))

	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.dispatcher = disp

	if err := c.initWorkflow(); err != nil {
		return fmt.Errorf("failed to initialize workflow: %w", err)
	}
	c.logger.Info("Workflow engine and services initialized")

	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	// Waits for post-commit handlers before the database goes away.
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.sqlDB == nil:
		set("database", false, "not initialized")
	default:
		if err := c.sqlDB.PingContext(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Ping(ctx).Err(); err != nil {
			set("redis", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("redis", true, "")
		}
	}

	set("dispatcher", c.dispatcher != nil, notInitialized(c.dispatcher != nil))
	set("workflow", c.workflow != nil, notInitialized(c.workflow != nil))

	if c.workers != nil {
		ok, detail := c.workers.Healthy()
		set("workers", ok, detail)
	} else {
		set("workers", false, "not initialized")
	}

	return status
}

func notInitialized(ok bool) string {
	if ok {
		return ""
	}
	return "not initialized"
}

func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.sqlDB, c.logger)
	if err != nil {
		c.sqlDB.Close()
		return err
	}

	c.repositories = repos
	return nil
}

func (c *Container) initExternal() error {
	seq, err := ProvideSequenceAllocator(c.ctx, &c.config.Sequence, c.repositories, c.logger)
	if err != nil {
		return err
	}
	c.allocator = seq.Allocator
	c.redisClient = seq.Redis

	store, err := ProvideStorage(c.ctx, &c.config.Storage, c.logger)
	if err != nil {
		return err
	}
	c.storage = store

	c.push = ProvidePushSender(&c.config.Lark, c.logger)
	return nil
}

func (c *Container) initWorkflow() error {
	bundle, err := ProvideWorkflow(c.ctx, &WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Allocator:  c.allocator,
		Blob:       c.storage.Blob,
		Push:       c.push,
		Dispatcher: c.dispatcher,
		Thresholds: c.config.Workflow,
		URLExpiry:  c.config.Storage.URLExpiry,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.workflow = bundle
	return nil
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(c.repositories, c.workflow.Services, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() appwf.Engine {
	return c.workflow.Engine
}

// Workflow returns the engine bundle.
func (c *Container) Workflow() *WorkflowBundle {
	return c.workflow
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.workflow.Services
}

// LocalStorage returns the local blob store, or nil for other backends.
func (c *Container) LocalStorage() *storage.LocalStorage {
	if c.storage == nil {
		return nil
	}
	return c.storage.Local
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// LoggerAdapter adapts zap.Logger to the key/value Logger interfaces of the
// application services and the HTTP layer.
type LoggerAdapter struct {
	logger *zap.Logger
}

// NewLoggerAdapter wraps logger.
func NewLoggerAdapter(logger *zap.Logger) *LoggerAdapter {
	return &LoggerAdapter{logger: logger}
}

func (a *LoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *LoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
