package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/application/service"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// ResumptionWorkerConfig holds configuration for the resumption worker
type ResumptionWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultResumptionWorkerConfig returns default configuration
func DefaultResumptionWorkerConfig() ResumptionWorkerConfig {
	return ResumptionWorkerConfig{
		PollInterval: time.Hour,
		BatchSize:    200,
	}
}

// Notifier is the part of the notification service the worker needs
type Notifier interface {
	Notify(ctx context.Context, recipients []string, title, message string, opts service.NotifyOptions)
}

// ResumptionWorker reminds creators of deferred documents whose resumption
// date has passed. Each (document, date) pair is reminded once per process.
type ResumptionWorker struct {
	config   ResumptionWorkerConfig
	docRepo  port.DocumentRepository
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	reminded  map[string]time.Time
	sent      int
}

// NewResumptionWorker creates a new resumption worker
func NewResumptionWorker(
	config ResumptionWorkerConfig,
	docRepo port.DocumentRepository,
	notifier Notifier,
	logger *zap.Logger,
) *ResumptionWorker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultResumptionWorkerConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultResumptionWorkerConfig().BatchSize
	}
	return &ResumptionWorker{
		config:   config,
		docRepo:  docRepo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		reminded: make(map[string]time.Time),
	}
}

// Name returns the worker name for identification
func (w *ResumptionWorker) Name() string {
	return "ResumptionWorker"
}

// Start begins the worker polling loop
func (w *ResumptionWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("resumption worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("ResumptionWorker started", zap.Duration("poll_interval", w.config.PollInterval))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop terminates the loop and waits for the current scan
func (w *ResumptionWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("ResumptionWorker stopped", zap.Int("reminders_sent", w.Sent()))
	return nil
}

// Sent returns the number of reminders sent since start
func (w *ResumptionWorker) Sent() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sent
}

func (w *ResumptionWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("Failed to scan deferred documents", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce scans deferred documents once and returns the number of reminders sent
func (w *ResumptionWorker) RunOnce(ctx context.Context) (int, error) {
	docs, err := w.docRepo.List(ctx, port.DocumentFilter{
		Statut: workflow.StatusDiffere,
		Limit:  w.config.BatchSize,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list deferred documents: %w", err)
	}

	now := w.now()
	count := 0
	for _, doc := range docs {
		if !w.due(doc, now) {
			continue
		}

		w.notifier.Notify(ctx, []string{doc.CreatedBy, doc.Demandeur},
			"Reprise d'un document différé",
			reminderMessage(doc),
			service.NotifyOptions{
				Type:       entity.NotificationTypeInfo,
				EntityType: string(doc.DocType),
				EntityID:   doc.ID,
			})

		w.mu.Lock()
		w.reminded[doc.ID] = *doc.DeferResumptionDate
		w.sent++
		w.mu.Unlock()
		count++
	}

	if count > 0 {
		w.logger.Info("Resumption reminders sent", zap.Int("count", count))
	}
	return count, nil
}

func (w *ResumptionWorker) due(doc *entity.Document, now time.Time) bool {
	if doc.DeferResumptionDate == nil || doc.DeferResumptionDate.After(now) {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.reminded[doc.ID]
	return !ok || !last.Equal(*doc.DeferResumptionDate)
}

func reminderMessage(doc *entity.Document) string {
	ref := doc.Reference
	if ref == "" {
		ref = doc.ID
	}
	return fmt.Sprintf("%s %s (différé : %s) peut être repris depuis le %s.",
		doc.DocType.Label(), ref, doc.DeferMotif, doc.DeferResumptionDate.Format("02/01/2006"))
}
