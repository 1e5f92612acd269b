package service

import (
	"context"
	"time"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// AuditEntry is one line to append to a document audit trail
type AuditEntry struct {
	DocumentID string
	DocType    workflow.DocType
	Action     workflow.HistoryAction
	OldStatut  workflow.Status
	NewStatut  workflow.Status
	ActorID    string
	Comment    string
}

// AuditService appends audit rows outside of a transition.
// Failures are logged and never returned.
type AuditService interface {
	Record(ctx context.Context, entry AuditEntry)
	History(ctx context.Context, documentID string) ([]*entity.HistoryEntry, error)
}

type auditServiceImpl struct {
	historyRepo port.HistoryRepository
	logger      Logger
	now         func() time.Time
}

// NewAuditService creates a new AuditService
func NewAuditService(historyRepo port.HistoryRepository, logger Logger) AuditService {
	return &auditServiceImpl{
		historyRepo: historyRepo,
		logger:      logger,
		now:         time.Now,
	}
}

// Record appends the entry. The caller's work is never rolled back by an audit failure.
func (s *auditServiceImpl) Record(ctx context.Context, entry AuditEntry) {
	row := &entity.HistoryEntry{
		DocumentID:  entry.DocumentID,
		DocType:     entry.DocType,
		Action:      entry.Action,
		OldStatut:   entry.OldStatut,
		NewStatut:   entry.NewStatut,
		PerformedBy: entry.ActorID,
		PerformedAt: s.now(),
		Commentaire: entry.Comment,
	}

	if err := s.historyRepo.Create(ctx, row); err != nil {
		s.logger.Error("Failed to record history",
			"error", err,
			"document_id", entry.DocumentID,
			"action", entry.Action,
		)
		return
	}

	s.logger.Info("History recorded",
		"document_id", entry.DocumentID,
		"action", entry.Action,
		"actor_id", entry.ActorID,
	)
}

// History returns the audit trail of a document, oldest first
func (s *auditServiceImpl) History(ctx context.Context, documentID string) ([]*entity.HistoryEntry, error) {
	entries, err := s.historyRepo.ListByDocument(ctx, documentID)
	if err != nil {
		s.logger.Error("Failed to list history", "error", err, "document_id", documentID)
		return nil, err
	}
	return entries, nil
}
