package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
)

// SequenceRepository implements port.SequenceAllocator on the sequences table
type SequenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sqlite-backed sequence allocator
func NewSequenceRepository(db *sql.DB, logger *zap.Logger) *SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next increments and returns the counter of key in a single statement
func (r *SequenceRepository) Next(ctx context.Context, key port.SequenceKey) (int64, error) {
	query := `
		INSERT INTO sequences (doc_type, exercice, scope, last_value, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (doc_type, exercice, scope) DO UPDATE SET
			last_value = last_value + 1,
			updated_at = excluded.updated_at
		RETURNING last_value
	`

	var n int64
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query,
		key.DocType, key.Exercice, key.Scope, time.Now().UTC(),
	).Scan(&n)
	if err != nil {
		r.logger.Error("Failed to allocate sequence number",
			zap.String("doc_type", key.DocType),
			zap.Int("exercice", key.Exercice),
			zap.String("scope", key.Scope),
			zap.Error(err))
		return 0, fmt.Errorf("failed to allocate sequence number: %w", err)
	}
	return n, nil
}

// Current returns the last number handed out for key, 0 if none
func (r *SequenceRepository) Current(ctx context.Context, key port.SequenceKey) (int64, error) {
	var n int64
	err := getExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT last_value FROM sequences WHERE doc_type = ? AND exercice = ? AND scope = ?`,
		key.DocType, key.Exercice, key.Scope,
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return n, nil
}

// Verify interface compliance
var _ port.SequenceAllocator = (*SequenceRepository)(nil)
