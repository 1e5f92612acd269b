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

// WorkflowDefinitionRepository implements port.WorkflowDefinitionRepository
type WorkflowDefinitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowDefinitionRepository creates a new workflow definition repository
func NewWorkflowDefinitionRepository(db *sql.DB, logger *zap.Logger) *WorkflowDefinitionRepository {
	return &WorkflowDefinitionRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts a definition with its steps and permissions, replacing any
// previous definition of the same entity type. Call it inside a transaction.
func (r *WorkflowDefinitionRepository) Save(ctx context.Context, def *entity.WorkflowDefinition) error {
	exec := getExecutor(ctx, r.db)
	now := time.Now().UTC()
	def.UpdatedAt = now
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	if _, err := exec.ExecContext(ctx, `
		DELETE FROM wf_step_permissions WHERE step_id IN (
			SELECT s.id FROM wf_steps s JOIN wf_definitions d ON d.id = s.workflow_id WHERE d.entity_type = ?
		)`, def.EntityType); err != nil {
		return fmt.Errorf("failed to clear step permissions: %w", err)
	}
	if _, err := exec.ExecContext(ctx, `
		DELETE FROM wf_steps WHERE workflow_id IN (SELECT id FROM wf_definitions WHERE entity_type = ?)`,
		def.EntityType); err != nil {
		return fmt.Errorf("failed to clear steps: %w", err)
	}

	err := exec.QueryRowContext(ctx, `
		INSERT INTO wf_definitions (entity_type, name, description, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			active = excluded.active,
			updated_at = excluded.updated_at
		RETURNING id`,
		def.EntityType, def.Name, def.Description, def.Active, def.CreatedAt.UTC(), def.UpdatedAt,
	).Scan(&def.ID)
	if err != nil {
		r.logger.Error("Failed to save workflow definition", zap.String("entity_type", def.EntityType), zap.Error(err))
		return fmt.Errorf("failed to save workflow definition: %w", err)
	}

	for i := range def.Steps {
		step := &def.Steps[i]
		step.WorkflowID = def.ID
		result, err := exec.ExecContext(ctx, `
			INSERT INTO wf_steps (
				workflow_id, step_order, label, role_required, role_alternatif,
				direction_required, delai_max_heures, target_status
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			step.WorkflowID, step.StepOrder, step.Label, step.RoleRequired, step.RoleAlternatif,
			step.DirectionRequired, step.DelaiMaxHeures, step.TargetStatus,
		)
		if err != nil {
			return fmt.Errorf("failed to save step %d: %w", step.StepOrder, err)
		}
		if step.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		for j := range step.Permissions {
			perm := &step.Permissions[j]
			perm.StepID = step.ID
			if _, err := exec.ExecContext(ctx, `
				INSERT INTO wf_step_permissions (step_id, action_code, role_code, is_primary)
				VALUES (?, ?, ?, ?)`,
				perm.StepID, perm.ActionCode, perm.RoleCode, perm.IsPrimary,
			); err != nil {
				return fmt.Errorf("failed to save permission %s on step %d: %w", perm.ActionCode, step.StepOrder, err)
			}
		}
	}
	return nil
}

// ListActive returns every active definition with its steps
func (r *WorkflowDefinitionRepository) ListActive(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT id, entity_type, name, description, active, created_at, updated_at
		FROM wf_definitions
		WHERE active = 1
		ORDER BY entity_type`)
	if err != nil {
		r.logger.Error("Failed to list workflow definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}

	var defs []*entity.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, def := range defs {
		if def.Steps, err = r.loadSteps(ctx, def.ID); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// GetByEntityType returns the definition of an entity type, active or not
func (r *WorkflowDefinitionRepository) GetByEntityType(ctx context.Context, entityType string) (*entity.WorkflowDefinition, error) {
	def, err := scanDefinition(getExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, entity_type, name, description, active, created_at, updated_at
		FROM wf_definitions
		WHERE entity_type = ?`, entityType))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow definition", zap.String("entity_type", entityType), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow definition: %w", err)
	}

	if def.Steps, err = r.loadSteps(ctx, def.ID); err != nil {
		return nil, err
	}
	return def, nil
}

// ListActions returns the action catalog
func (r *WorkflowDefinitionRepository) ListActions(ctx context.Context) ([]*entity.WfAction, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT code, label, requires_motif, requires_date_reprise, is_terminal
		FROM wf_actions
		ORDER BY code`)
	if err != nil {
		r.logger.Error("Failed to list workflow actions", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow actions: %w", err)
	}
	defer rows.Close()

	var out []*entity.WfAction
	for rows.Next() {
		var a entity.WfAction
		if err := rows.Scan(&a.Code, &a.Label, &a.RequiresMotif, &a.RequiresDateReprise, &a.IsTerminal); err != nil {
			return nil, fmt.Errorf("failed to scan workflow action: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *WorkflowDefinitionRepository) loadSteps(ctx context.Context, workflowID int64) ([]entity.WfStep, error) {
	exec := getExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, `
		SELECT id, workflow_id, step_order, label, role_required, role_alternatif,
			direction_required, delai_max_heures, target_status
		FROM wf_steps
		WHERE workflow_id = ?
		ORDER BY step_order`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}

	var steps []entity.WfStep
	for rows.Next() {
		var s entity.WfStep
		if err := rows.Scan(&s.ID, &s.WorkflowID, &s.StepOrder, &s.Label, &s.RoleRequired,
			&s.RoleAlternatif, &s.DirectionRequired, &s.DelaiMaxHeures, &s.TargetStatus); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range steps {
		perms, err := exec.QueryContext(ctx, `
			SELECT step_id, action_code, role_code, is_primary
			FROM wf_step_permissions
			WHERE step_id = ?
			ORDER BY is_primary DESC, action_code`, steps[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load permissions: %w", err)
		}
		for perms.Next() {
			var p entity.WfStepPermission
			if err := perms.Scan(&p.StepID, &p.ActionCode, &p.RoleCode, &p.IsPrimary); err != nil {
				perms.Close()
				return nil, fmt.Errorf("failed to scan permission: %w", err)
			}
			steps[i].Permissions = append(steps[i].Permissions, p)
		}
		err = perms.Err()
		perms.Close()
		if err != nil {
			return nil, err
		}
	}
	return steps, nil
}

func scanDefinition(s rowScanner) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	if err := s.Scan(&def.ID, &def.EntityType, &def.Name, &def.Description, &def.Active,
		&def.CreatedAt, &def.UpdatedAt); err != nil {
		return nil, err
	}
	return &def, nil
}

// Verify interface compliance
var _ port.WorkflowDefinitionRepository = (*WorkflowDefinitionRepository)(nil)
