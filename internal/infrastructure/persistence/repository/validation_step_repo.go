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

// ValidationStepRepository implements port.ValidationStepRepository
type ValidationStepRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewValidationStepRepository creates a new validation step repository
func NewValidationStepRepository(db *sql.DB, logger *zap.Logger) port.ValidationStepRepository {
	return &ValidationStepRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a validation decision
func (r *ValidationStepRepository) Create(ctx context.Context, step *entity.ValidationStep) error {
	query := `
		INSERT INTO validation_steps (
			document_id, step_order, role, status, validated_by, validated_at,
			comments, via, on_behalf_of, legacy, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now()
	}

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		step.DocumentID,
		step.StepOrder,
		step.Role,
		step.Status,
		step.ValidatedBy,
		nullTime(step.ValidatedAt),
		step.Comments,
		step.Via,
		step.OnBehalfOf,
		step.Legacy,
		step.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create validation step",
			zap.String("document_id", step.DocumentID),
			zap.Int("step_order", step.StepOrder),
			zap.Error(err))
		return fmt.Errorf("failed to create validation step: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	step.ID = id
	return nil
}

// ListByDocument returns the decisions of a document in recording order
func (r *ValidationStepRepository) ListByDocument(ctx context.Context, documentID string) ([]*entity.ValidationStep, error) {
	query := `
		SELECT id, document_id, step_order, role, status, validated_by, validated_at,
			comments, via, on_behalf_of, legacy, created_at
		FROM validation_steps
		WHERE document_id = ?
		ORDER BY id ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, documentID)
	if err != nil {
		r.logger.Error("Failed to list validation steps", zap.String("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list validation steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.ValidationStep
	for rows.Next() {
		var step entity.ValidationStep
		var validatedAt sql.NullTime
		err := rows.Scan(
			&step.ID,
			&step.DocumentID,
			&step.StepOrder,
			&step.Role,
			&step.Status,
			&step.ValidatedBy,
			&validatedAt,
			&step.Comments,
			&step.Via,
			&step.OnBehalfOf,
			&step.Legacy,
			&step.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan validation step: %w", err)
		}
		step.ValidatedAt = timePtr(validatedAt)
		steps = append(steps, &step)
	}

	return steps, rows.Err()
}

// Verify interface compliance
var _ port.ValidationStepRepository = (*ValidationStepRepository)(nil)
