package service

import (
	"context"
	"fmt"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DocumentService serves read-side queries on chain documents
type DocumentService interface {
	GetDocument(ctx context.Context, id string) (*entity.Document, error)
	GetByReference(ctx context.Context, reference string) (*entity.Document, error)
	ListDocuments(ctx context.Context, filter port.DocumentFilter) ([]*entity.Document, error)
	ListByDossier(ctx context.Context, dossierID string) ([]*entity.Document, error)
}

type documentServiceImpl struct {
	docRepo port.DocumentRepository
	logger  Logger
}

// NewDocumentService creates a new DocumentService
func NewDocumentService(docRepo port.DocumentRepository, logger Logger) DocumentService {
	return &documentServiceImpl{
		docRepo: docRepo,
		logger:  logger,
	}
}

// GetDocument returns a document or ErrNotFound
func (s *documentServiceImpl) GetDocument(ctx context.Context, id string) (*entity.Document, error) {
	doc, err := s.docRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get document", "error", err, "document_id", id)
		return nil, fmt.Errorf("get document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document %s", workflow.ErrNotFound, id)
	}
	return doc, nil
}

// GetByReference returns a document by its ARTI reference
func (s *documentServiceImpl) GetByReference(ctx context.Context, reference string) (*entity.Document, error) {
	doc, err := s.docRepo.GetByReference(ctx, reference)
	if err != nil {
		s.logger.Error("Failed to get document by reference", "error", err, "reference", reference)
		return nil, fmt.Errorf("get document by reference: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: reference %s", workflow.ErrNotFound, reference)
	}
	return doc, nil
}

// ListDocuments lists documents with pagination defaults
func (s *documentServiceImpl) ListDocuments(ctx context.Context, filter port.DocumentFilter) ([]*entity.Document, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.DocType != "" && !filter.DocType.IsValid() {
		return nil, &workflow.ValidationError{Reason: fmt.Sprintf("Type de document inconnu: %s", filter.DocType)}
	}

	docs, err := s.docRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list documents", "error", err, "doc_type", filter.DocType)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *documentServiceImpl) ListByDossier(ctx context.Context, dossierID string) ([]*entity.Document, error) {
	docs, err := s.docRepo.ListByDossier(ctx, dossierID)
	if err != nil {
		s.logger.Error("Failed to list dossier documents", "error", err, "dossier_id", dossierID)
		return nil, fmt.Errorf("list dossier documents: %w", err)
	}
	return docs, nil
}
