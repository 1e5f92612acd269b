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

const dossierColumns = `
	id, numero, exercice, type_dossier, objet, direction, demandeur, beneficiaire,
	statut_global, etape_courante, montant_estime, montant_engage, montant_liquide, montant_paye,
	note_sef_id, created_by, created_at, updated_at`

// DossierRepository implements port.DossierRepository
type DossierRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDossierRepository creates a new dossier repository
func NewDossierRepository(db *sql.DB, logger *zap.Logger) port.DossierRepository {
	return &DossierRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a dossier
func (r *DossierRepository) Create(ctx context.Context, d *entity.Dossier) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	query := `INSERT INTO dossiers (` + dossierColumns + `) VALUES (` + placeholders(18) + `)`
	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		d.ID,
		d.Numero,
		d.Exercice,
		d.TypeDossier,
		d.Objet,
		d.Direction,
		d.Demandeur,
		d.Beneficiaire,
		d.StatutGlobal,
		d.EtapeCourante,
		d.MontantEstime.String(),
		d.MontantEngage.String(),
		d.MontantLiquide.String(),
		d.MontantPaye.String(),
		d.NoteSEFID,
		d.CreatedBy,
		d.CreatedAt.UTC(),
		d.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create dossier", zap.String("numero", d.Numero), zap.Error(err))
		return fmt.Errorf("failed to create dossier: %w", err)
	}
	return nil
}

// GetByID retrieves a dossier by ID
func (r *DossierRepository) GetByID(ctx context.Context, id string) (*entity.Dossier, error) {
	return r.getBy(ctx, "id", id)
}

// GetByNumero retrieves a dossier by its numero
func (r *DossierRepository) GetByNumero(ctx context.Context, numero string) (*entity.Dossier, error) {
	return r.getBy(ctx, "numero", numero)
}

func (r *DossierRepository) getBy(ctx context.Context, column, value string) (*entity.Dossier, error) {
	query := `SELECT ` + dossierColumns + ` FROM dossiers WHERE ` + column + ` = ?`
	d, err := scanDossier(getExecutor(ctx, r.db).QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get dossier", zap.String(column, value), zap.Error(err))
		return nil, fmt.Errorf("failed to get dossier: %w", err)
	}
	return d, nil
}

// Update rewrites the mutable fields of a dossier
func (r *DossierRepository) Update(ctx context.Context, d *entity.Dossier) error {
	d.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE dossiers SET
			objet = ?, beneficiaire = ?, statut_global = ?, etape_courante = ?,
			montant_estime = ?, montant_engage = ?, montant_liquide = ?, montant_paye = ?,
			updated_at = ?
		WHERE id = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		d.Objet,
		d.Beneficiaire,
		d.StatutGlobal,
		d.EtapeCourante,
		d.MontantEstime.String(),
		d.MontantEngage.String(),
		d.MontantLiquide.String(),
		d.MontantPaye.String(),
		d.UpdatedAt,
		d.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update dossier", zap.String("id", d.ID), zap.Error(err))
		return fmt.Errorf("failed to update dossier: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: dossier %s", workflow.ErrNotFound, d.ID)
	}
	return nil
}

// UpsertEtape records the document of a stage, one row per dossier and stage
func (r *DossierRepository) UpsertEtape(ctx context.Context, e *entity.DossierEtape) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	query := `
		INSERT INTO dossier_etapes (
			dossier_id, type_etape, entity_id, reference, statut, montant, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dossier_id, type_etape) DO UPDATE SET
			entity_id = excluded.entity_id,
			reference = excluded.reference,
			statut = excluded.statut,
			montant = excluded.montant,
			updated_at = excluded.updated_at
		RETURNING id
	`
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, query,
		e.DossierID,
		e.TypeEtape,
		e.EntityID,
		e.Reference,
		e.Statut,
		e.Montant.String(),
		e.CreatedAt.UTC(),
		e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		r.logger.Error("Failed to upsert dossier etape",
			zap.String("dossier_id", e.DossierID),
			zap.String("etape", string(e.TypeEtape)),
			zap.Error(err))
		return fmt.Errorf("failed to upsert dossier etape: %w", err)
	}
	return nil
}

// ListEtapes returns the stage rows of a dossier
func (r *DossierRepository) ListEtapes(ctx context.Context, dossierID string) ([]*entity.DossierEtape, error) {
	query := `
		SELECT id, dossier_id, type_etape, entity_id, reference, statut, montant, created_at, updated_at
		FROM dossier_etapes
		WHERE dossier_id = ?
		ORDER BY id ASC
	`
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, dossierID)
	if err != nil {
		r.logger.Error("Failed to list dossier etapes", zap.String("dossier_id", dossierID), zap.Error(err))
		return nil, fmt.Errorf("failed to list dossier etapes: %w", err)
	}
	defer rows.Close()

	var out []*entity.DossierEtape
	for rows.Next() {
		var e entity.DossierEtape
		if err := rows.Scan(&e.ID, &e.DossierID, &e.TypeEtape, &e.EntityID, &e.Reference,
			&e.Statut, &e.Montant, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dossier etape: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func scanDossier(s rowScanner) (*entity.Dossier, error) {
	var d entity.Dossier
	err := s.Scan(
		&d.ID,
		&d.Numero,
		&d.Exercice,
		&d.TypeDossier,
		&d.Objet,
		&d.Direction,
		&d.Demandeur,
		&d.Beneficiaire,
		&d.StatutGlobal,
		&d.EtapeCourante,
		&d.MontantEstime,
		&d.MontantEngage,
		&d.MontantLiquide,
		&d.MontantPaye,
		&d.NoteSEFID,
		&d.CreatedBy,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Verify interface compliance
var _ port.DossierRepository = (*DossierRepository)(nil)
