package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/dispatcher"
	"github.com/garyjia/sygfp/internal/config"
	"github.com/garyjia/sygfp/internal/container"
	"github.com/garyjia/sygfp/pkg/utils"
)

// env is the part of the container a command needs. The workflow graph is
// built on demand and no background worker is started.
type env struct {
	cfg    *config.Config
	ccfg   *container.Config
	logger *zap.Logger
	db     *container.DatabaseBundle
	repos  *container.RepositoryBundle

	seq        *container.SequenceBundle
	dispatcher dispatcher.Dispatcher
	workflow   *container.WorkflowBundle
}

// openEnv loads the configuration, opens the database and applies migrations.
func openEnv(opts *RootOptions) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	level := "warn"
	if opts.Verbose {
		level = "debug"
	}
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      level,
		OutputPath: "stderr",
		Format:     "console",
		Service:    "sygfpctl",
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}

	ccfg, err := cfg.ToContainerConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	db, err := container.ProvideDatabase(&ccfg.Database, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	repos, err := container.ProvideRepositories(db.SqlDB, logger)
	if err != nil {
		db.SqlDB.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create repositories", err)
	}

	return &env{cfg: cfg, ccfg: ccfg, logger: logger, db: db, repos: repos}, nil
}

// sequence returns the configured reference counter backend.
func (e *env) sequence(ctx context.Context) (*container.SequenceBundle, error) {
	if e.seq != nil {
		return e.seq, nil
	}
	seq, err := container.ProvideSequenceAllocator(ctx, &e.ccfg.Sequence, e.repos, e.logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open sequence backend", err)
	}
	e.seq = seq
	return seq, nil
}

// workflowBundle builds the engine and services. Attachments and push
// delivery are not wired.
func (e *env) workflowBundle(ctx context.Context) (*container.WorkflowBundle, error) {
	if e.workflow != nil {
		return e.workflow, nil
	}
	seq, err := e.sequence(ctx)
	if err != nil {
		return nil, err
	}
	disp, err := container.ProvideDispatcher(e.logger)
	if err != nil {
		return nil, err
	}
	e.dispatcher = disp

	wf, err := container.ProvideWorkflow(ctx, &container.WorkflowDeps{
		Repos:      e.repos,
		TxManager:  e.db.TransactionMgr,
		Allocator:  seq.Allocator,
		Dispatcher: disp,
		Thresholds: e.ccfg.Workflow,
		URLExpiry:  e.ccfg.Storage.URLExpiry,
		Logger:     e.logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build workflow", err)
	}
	e.workflow = wf
	return wf, nil
}

func (e *env) Close() {
	if e.dispatcher != nil {
		_ = e.dispatcher.Close()
	}
	if e.seq != nil && e.seq.Redis != nil {
		_ = e.seq.Redis.Close()
	}
	if err := e.db.SqlDB.Close(); err != nil {
		e.logger.Warn("Failed to close database", zap.Error(err))
	}
	_ = e.logger.Sync()
}
