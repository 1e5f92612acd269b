package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// DelegationRepository implements port.DelegationProvider
type DelegationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDelegationRepository creates a new delegation repository
func NewDelegationRepository(db *sql.DB, logger *zap.Logger) *DelegationRepository {
	return &DelegationRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a delegation or an interim
func (r *DelegationRepository) Create(ctx context.Context, d *entity.Delegation) error {
	if d.Kind == "" {
		d.Kind = entity.DelegationKindDelegation
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO delegations (
			grantor_id, delegate_id, kind, role, doc_type, starts_at, ends_at, active, motif, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		d.GrantorID,
		d.DelegateID,
		d.Kind,
		d.Role,
		d.DocType,
		d.StartsAt.UTC(),
		d.EndsAt.UTC(),
		d.Active,
		d.Motif,
		d.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create delegation",
			zap.String("grantor_id", d.GrantorID),
			zap.String("delegate_id", d.DelegateID),
			zap.Error(err))
		return fmt.Errorf("failed to create delegation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	d.ID = id
	return nil
}

// GetActiveDelegations returns the delegations of delegateID in force at the given time
func (r *DelegationRepository) GetActiveDelegations(ctx context.Context, delegateID string, docType workflow.DocType, at time.Time) ([]*entity.Delegation, error) {
	query := `
		SELECT id, grantor_id, delegate_id, kind, role, doc_type, starts_at, ends_at, active, motif, created_at
		FROM delegations
		WHERE delegate_id = ? AND active = 1
			AND (doc_type = '' OR doc_type = ?)
			AND starts_at <= ? AND ends_at > ?
		ORDER BY id
	`
	at = at.UTC()
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, delegateID, docType, at, at)
	if err != nil {
		r.logger.Error("Failed to get active delegations", zap.String("delegate_id", delegateID), zap.Error(err))
		return nil, fmt.Errorf("failed to get delegations: %w", err)
	}
	defer rows.Close()

	var out []*entity.Delegation
	for rows.Next() {
		var d entity.Delegation
		if err := rows.Scan(&d.ID, &d.GrantorID, &d.DelegateID, &d.Kind, &d.Role, &d.DocType,
			&d.StartsAt, &d.EndsAt, &d.Active, &d.Motif, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delegation: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Revoke deactivates a delegation
func (r *DelegationRepository) Revoke(ctx context.Context, id int64) error {
	if _, err := getExecutor(ctx, r.db).ExecContext(ctx, `UPDATE delegations SET active = 0 WHERE id = ?`, id); err != nil {
		r.logger.Error("Failed to revoke delegation", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to revoke delegation: %w", err)
	}
	return nil
}

// Verify interface compliance
var _ port.DelegationProvider = (*DelegationRepository)(nil)
