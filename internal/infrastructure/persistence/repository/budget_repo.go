package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// BudgetRepository implements port.BudgetRepository
type BudgetRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBudgetRepository creates a new budget line repository
func NewBudgetRepository(db *sql.DB, logger *zap.Logger) *BudgetRepository {
	return &BudgetRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a budget line
func (r *BudgetRepository) Create(ctx context.Context, b *entity.BudgetLine) error {
	b.UpdatedAt = time.Now().UTC()
	query := `
		INSERT INTO budget_lines (id, code, libelle, exercice, dotation, engage, reserve, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		b.ID, b.Code, b.Libelle, b.Exercice, b.Dotation.String(), b.Engage.String(), b.Reserve.String(), b.UpdatedAt,
	); err != nil {
		r.logger.Error("Failed to create budget line", zap.String("code", b.Code), zap.Error(err))
		return fmt.Errorf("failed to create budget line: %w", err)
	}
	return nil
}

// GetByID retrieves a budget line by ID
func (r *BudgetRepository) GetByID(ctx context.Context, id string) (*entity.BudgetLine, error) {
	query := `
		SELECT id, code, libelle, exercice, dotation, engage, reserve, updated_at
		FROM budget_lines
		WHERE id = ?
	`
	var b entity.BudgetLine
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.Code, &b.Libelle, &b.Exercice, &b.Dotation, &b.Engage, &b.Reserve, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get budget line", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get budget line: %w", err)
	}
	return &b, nil
}

// Reserve adds montant to the reserved amount when the free credit covers it
func (r *BudgetRepository) Reserve(ctx context.Context, id string, montant decimal.Decimal) (bool, error) {
	line, err := r.mustGet(ctx, id)
	if err != nil {
		return false, err
	}
	if !line.Covers(montant) {
		return false, nil
	}

	if err := r.swap(ctx, line, line.Engage, line.Reserve.Add(montant)); err != nil {
		return false, err
	}

	r.logger.Info("Budget credit reserved",
		zap.String("id", id),
		zap.String("montant", montant.String()),
		zap.String("disponible", line.Disponible().Sub(montant).String()))
	return true, nil
}

// Engage turns up to released reserved credit into engaged credit and takes
// the rest of montant from the free credit
func (r *BudgetRepository) Engage(ctx context.Context, id string, montant, released decimal.Decimal) (bool, error) {
	line, err := r.mustGet(ctx, id)
	if err != nil {
		return false, err
	}
	if !line.CoversEngagement(montant, released) {
		return false, nil
	}

	release := line.Releasable(released)
	if err := r.swap(ctx, line, line.Engage.Add(montant), line.Reserve.Sub(release)); err != nil {
		return false, err
	}

	r.logger.Info("Budget credit engaged",
		zap.String("id", id),
		zap.String("montant", montant.String()),
		zap.String("released", release.String()))
	return true, nil
}

func (r *BudgetRepository) mustGet(ctx context.Context, id string) (*entity.BudgetLine, error) {
	line, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, fmt.Errorf("%w: budget line %s", workflow.ErrNotFound, id)
	}
	return line, nil
}

// swap writes new amounts on the condition that the amounts read are unchanged,
// so a concurrent writer makes it fail instead of overspending
func (r *BudgetRepository) swap(ctx context.Context, line *entity.BudgetLine, engage, reserve decimal.Decimal) error {
	query := `
		UPDATE budget_lines SET engage = ?, reserve = ?, updated_at = ?
		WHERE id = ? AND engage = ? AND reserve = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		engage.String(),
		reserve.String(),
		time.Now().UTC(),
		line.ID,
		line.Engage.String(),
		line.Reserve.String(),
	)
	if err != nil {
		r.logger.Error("Failed to update budget credit", zap.String("id", line.ID), zap.Error(err))
		return fmt.Errorf("failed to update budget credit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: budget line %s", workflow.ErrConcurrentModification, line.ID)
	}
	return nil
}

// Verify interface compliance
var _ port.BudgetRepository = (*BudgetRepository)(nil)
