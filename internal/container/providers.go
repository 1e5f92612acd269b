package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/dispatcher"
	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/application/rbac"
	"github.com/garyjia/sygfp/internal/application/sequence"
	"github.com/garyjia/sygfp/internal/application/service"
	"github.com/garyjia/sygfp/internal/application/validation"
	appwf "github.com/garyjia/sygfp/internal/application/workflow"
	"github.com/garyjia/sygfp/internal/domain/event"
	domainwf "github.com/garyjia/sygfp/internal/domain/workflow"
	infraLark "github.com/garyjia/sygfp/internal/infrastructure/external/lark"
	"github.com/garyjia/sygfp/internal/infrastructure/persistence/repository"
	"github.com/garyjia/sygfp/internal/infrastructure/persistence/sqlite"
	infraSeq "github.com/garyjia/sygfp/internal/infrastructure/sequence"
	"github.com/garyjia/sygfp/internal/infrastructure/storage"
	"github.com/garyjia/sygfp/internal/infrastructure/worker"
	"github.com/garyjia/sygfp/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// StorageBundle holds the attachment store. Local is nil for the minio backend.
type StorageBundle struct {
	Blob  port.BlobStorage
	Local *storage.LocalStorage
}

// SequenceBundle holds the reference counter backend. Redis is nil for the sqlite backend.
type SequenceBundle struct {
	Allocator port.SequenceAllocator
	Redis     *redis.Client
}

// ProvideDatabase opens the sqlite database and applies pending migrations.
// Migrations come from MigrationsDir when set, from the binary otherwise.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	var applied int
	if cfg.MigrationsDir != "" {
		applied, err = migrator.RunMigrations(cfg.MigrationsDir)
	} else {
		applied, err = migrator.Run()
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations applied", zap.Int("count", applied))

	return &DatabaseBundle{
		SqlDB:          db.DB,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Document:       repository.NewDocumentRepository(sqlDB, logger),
		ValidationStep: repository.NewValidationStepRepository(sqlDB, logger),
		History:        repository.NewHistoryRepository(sqlDB, logger),
		Dossier:        repository.NewDossierRepository(sqlDB, logger),
		Notification:   repository.NewNotificationRepository(sqlDB, logger),
		Attachment:     repository.NewAttachmentRepository(sqlDB, logger),
		User:           repository.NewUserRepository(sqlDB, logger),
		Delegation:     repository.NewDelegationRepository(sqlDB, logger),
		Budget:         repository.NewBudgetRepository(sqlDB, logger),
		Sequence:       repository.NewSequenceRepository(sqlDB, logger),
		WorkflowDef:    repository.NewWorkflowDefinitionRepository(sqlDB, logger),
	}, nil
}

// ProvideSequenceAllocator returns the counter backend named by cfg.Backend.
func ProvideSequenceAllocator(ctx context.Context, cfg *SequenceConfig, repos *RepositoryBundle, logger *zap.Logger) (*SequenceBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sequence config is required")
	}

	switch cfg.Backend {
	case "", "sqlite":
		return &SequenceBundle{Allocator: repos.Sequence}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return &SequenceBundle{
			Allocator: infraSeq.NewRedisAllocator(client, cfg.KeyPrefix, logger),
			Redis:     client,
		}, nil
	default:
		return nil, fmt.Errorf("unknown sequence backend %q", cfg.Backend)
	}
}

// ProvideStorage creates the attachment store named by cfg.Backend.
func ProvideStorage(ctx context.Context, cfg *StorageConfig, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Backend {
	case "", "local":
		local := storage.NewLocalStorage(cfg.LocalDir, cfg.BaseURL, cfg.URLSecret, logger)
		return &StorageBundle{Blob: local, Local: local}, nil
	case "minio":
		store, err := storage.NewMinIOStorage(ctx, storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &StorageBundle{Blob: store}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// ProvidePushSender returns the Lark messenger, or nil when Lark is disabled.
func ProvidePushSender(cfg *LarkConfig, logger *zap.Logger) port.PushSender {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	client := infraLark.NewClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
	}, logger)
	return infraLark.NewMessenger(client, logger)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger}),
	), nil
}

// WorkflowDeps holds dependencies required for creating the engine and services.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Allocator  port.SequenceAllocator
	Blob       port.BlobStorage
	Push       port.PushSender
	Dispatcher dispatcher.Dispatcher
	Thresholds domainwf.Thresholds
	URLExpiry  time.Duration
	Logger     *zap.Logger
}

// ProvideWorkflow builds the registry, the engine and the application services,
// then subscribes the services to the engine's events.
func ProvideWorkflow(ctx context.Context, deps *WorkflowDeps) (*WorkflowBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := NewLoggerAdapter(deps.Logger)
	repos := deps.Repos
	publish := deps.Dispatcher.DispatchAsync

	registry := domainwf.NewRegistry(deps.Thresholds)
	workflowConfig := service.NewWorkflowConfigService(repos.WorkflowDef, registry, serviceLogger)
	result, err := workflowConfig.SyncChains(ctx)
	if err != nil {
		return nil, err
	}
	for entityType, reason := range result.Skipped {
		deps.Logger.Warn("Workflow definition not applied",
			zap.String("entity_type", entityType),
			zap.String("reason", reason))
	}

	resolver := rbac.NewResolver(repos.User, repos.Delegation)
	generator := sequence.NewGenerator(deps.Allocator)
	tracker := validation.NewTracker(repos.ValidationStep, registry)

	audit := service.NewAuditService(repos.History, serviceLogger)
	dossiers := service.NewDossierService(repos.Dossier, repos.Document, deps.TxManager, generator, registry, publish, serviceLogger)
	notifications := service.NewNotificationService(repos.Notification, repos.User, registry, deps.Push, serviceLogger)

	engine := appwf.NewEngine(
		registry,
		repos.Document,
		repos.History,
		deps.TxManager,
		resolver,
		generator,
		tracker,
		appwf.WithDispatcher(deps.Dispatcher),
		appwf.WithBudgets(repos.Budget),
		appwf.WithIdentity(repos.User),
		appwf.WithLogger(serviceLogger),
		appwf.WithEffectHook(domainwf.EffectCreateDossier, dossiers.CreateDossierHook),
	)

	deps.Dispatcher.Subscribe(event.TypeStatusChanged, "dossier_stages", dossiers.OnStatusChanged)
	deps.Dispatcher.Subscribe(event.TypeStatusChanged, "notifications", notifications.OnStatusChanged)

	return &WorkflowBundle{
		Registry: registry,
		Engine:   engine,
		Tracker:  tracker,
		Resolver: resolver,
		Services: &ServiceBundle{
			Document:       service.NewDocumentService(repos.Document, serviceLogger),
			Audit:          audit,
			Dossier:        dossiers,
			Spending:       service.NewSpendingService(dossiers, repos.Document, registry, engine, serviceLogger),
			Notification:   notifications,
			Attachment:     service.NewAttachmentService(repos.Attachment, repos.Document, deps.Blob, resolver, audit, publish, deps.URLExpiry, serviceLogger),
			WorkflowConfig: workflowConfig,
		},
	}, nil
}

// ProvideWorkers creates and registers all background workers.
// Returns a *worker.Manager with all workers registered but not started.
func ProvideWorkers(repos *RepositoryBundle, services *ServiceBundle, logger *zap.Logger) (*worker.Manager, error) {
	if repos == nil || services == nil {
		return nil, fmt.Errorf("repositories and services are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewManager(logger)
	manager.Register(worker.NewResumptionWorker(
		worker.DefaultResumptionWorkerConfig(),
		repos.Document,
		services.Notification,
		logger,
	))

	return manager, nil
}
