package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a history record
func (r *HistoryRepository) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	query := `
		INSERT INTO history (
			document_id, doc_type, action, old_statut, new_statut,
			performed_by, performed_at, commentaire
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if entry.PerformedAt.IsZero() {
		entry.PerformedAt = time.Now()
	}

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.DocumentID,
		entry.DocType,
		entry.Action,
		entry.OldStatut,
		entry.NewStatut,
		entry.PerformedBy,
		entry.PerformedAt.UTC(),
		entry.Commentaire,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("document_id", entry.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry.ID = id
	return nil
}

// ListByDocument retrieves the history of a document, oldest first
func (r *HistoryRepository) ListByDocument(ctx context.Context, documentID string) ([]*entity.HistoryEntry, error) {
	query := `
		SELECT id, document_id, doc_type, action, old_statut, new_statut,
			performed_by, performed_at, commentaire
		FROM history
		WHERE document_id = ?
		ORDER BY id ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to get history by document", zap.String("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.HistoryEntry
	for rows.Next() {
		var record entity.HistoryEntry
		err := rows.Scan(
			&record.ID,
			&record.DocumentID,
			&record.DocType,
			&record.Action,
			&record.OldStatut,
			&record.NewStatut,
			&record.PerformedBy,
			&record.PerformedAt,
			&record.Commentaire,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
