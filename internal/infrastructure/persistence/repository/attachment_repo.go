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

const attachmentColumns = `id, document_id, doc_type, exercice, file_name, storage_key, size, mime_type, uploaded_by, created_at`

// AttachmentRepository implements port.AttachmentRepository
type AttachmentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAttachmentRepository creates a new attachment repository
func NewAttachmentRepository(db *sql.DB, logger *zap.Logger) port.AttachmentRepository {
	return &AttachmentRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new attachment record
func (r *AttachmentRepository) Create(ctx context.Context, att *entity.Attachment) error {
	query := `INSERT INTO attachments (` + attachmentColumns + `) VALUES (` + placeholders(10) + `)`

	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now()
	}

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		att.ID,
		att.DocumentID,
		att.DocType,
		att.Exercice,
		att.FileName,
		att.StorageKey,
		att.Size,
		att.MimeType,
		att.UploadedBy,
		att.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create attachment",
			zap.String("document_id", att.DocumentID),
			zap.String("key", att.StorageKey),
			zap.Error(err))
		return fmt.Errorf("failed to create attachment: %w", err)
	}
	return nil
}

// GetByID retrieves an attachment by ID
func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*entity.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = ?`
	att, err := scanAttachment(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get attachment", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return att, nil
}

// ListByDocument retrieves all attachments of a document
func (r *AttachmentRepository) ListByDocument(ctx context.Context, documentID string) ([]*entity.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE document_id = ? ORDER BY created_at ASC, id`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to list attachments", zap.String("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var out []*entity.Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		out = append(out, att)
	}
	return out, rows.Err()
}

// Delete removes an attachment record
func (r *AttachmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := getExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id); err != nil {
		r.logger.Error("Failed to delete attachment", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}

func scanAttachment(s rowScanner) (*entity.Attachment, error) {
	var att entity.Attachment
	err := s.Scan(
		&att.ID,
		&att.DocumentID,
		&att.DocType,
		&att.Exercice,
		&att.FileName,
		&att.StorageKey,
		&att.Size,
		&att.MimeType,
		&att.UploadedBy,
		&att.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &att, nil
}

// Verify interface compliance
var _ port.AttachmentRepository = (*AttachmentRepository)(nil)
