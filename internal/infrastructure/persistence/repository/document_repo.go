package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

const documentColumns = `
	id, doc_type, reference, exercice, statut, created_by, demandeur, direction,
	objet, justification, urgence, date_souhaitee, beneficiaire, montant, liste_articles,
	parent_id, dossier_id, budget_line_id, current_validation_step, legacy,
	submitted_at, validated_by, validated_at, rejected_by, rejected_at, rejection_reason,
	differe_by, differe_at, differe_motif, differe_date_reprise, created_at, updated_at`

// DocumentRepository implements port.DocumentRepository
type DocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sql.DB, logger *zap.Logger) port.DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	articles, err := json.Marshal(articlesOrEmpty(doc.ListeArticles))
	if err != nil {
		return fmt.Errorf("failed to encode articles: %w", err)
	}

	now := r.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	query := `INSERT INTO documents (` + documentColumns + `) VALUES (` + placeholders(32) + `)`
	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		doc.ID,
		doc.DocType,
		nullString(doc.Reference),
		doc.Exercice,
		doc.Statut,
		doc.CreatedBy,
		doc.Demandeur,
		doc.Direction,
		doc.Objet,
		doc.Justification,
		doc.Urgence,
		nullTime(doc.DateSouhaitee),
		doc.Beneficiaire,
		doc.Montant.String(),
		string(articles),
		doc.ParentID,
		doc.DossierID,
		doc.BudgetLineID,
		doc.CurrentValidationStep,
		doc.Legacy,
		nullTime(doc.SubmittedAt),
		doc.ValidatedBy,
		nullTime(doc.ValidatedAt),
		doc.RejectedBy,
		nullTime(doc.RejectedAt),
		doc.RejectionReason,
		doc.DeferredBy,
		nullTime(doc.DeferredAt),
		doc.DeferMotif,
		nullTime(doc.DeferResumptionDate),
		doc.CreatedAt.UTC(),
		doc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create document", zap.String("id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`
	doc, err := scanDocument(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get document by ID", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetByReference retrieves a document by its reference code
func (r *DocumentRepository) GetByReference(ctx context.Context, reference string) (*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE reference = ?`
	doc, err := scanDocument(getExecutor(ctx, r.db).QueryRowContext(ctx, query, reference))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get document by reference", zap.String("reference", reference), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// List returns documents matching the filter, newest first
func (r *DocumentRepository) List(ctx context.Context, filter port.DocumentFilter) ([]*entity.Document, error) {
	var where []string
	var args []interface{}

	if filter.DocType != "" {
		where = append(where, "doc_type = ?")
		args = append(args, filter.DocType)
	}
	if filter.Exercice != 0 {
		where = append(where, "exercice = ?")
		args = append(args, filter.Exercice)
	}
	if filter.Statut != "" {
		where = append(where, "statut = ?")
		args = append(args, filter.Statut)
	}
	if filter.DossierID != "" {
		where = append(where, "dossier_id = ?")
		args = append(args, filter.DossierID)
	}
	if filter.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	return r.query(ctx, query, args...)
}

// ListByDossier returns the documents attached to a dossier in creation order
func (r *DocumentRepository) ListByDossier(ctx context.Context, dossierID string) ([]*entity.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE dossier_id = ? ORDER BY created_at ASC, id`
	return r.query(ctx, query, dossierID)
}

// UpdateDraft rewrites the editable fields while the document is still a brouillon
func (r *DocumentRepository) UpdateDraft(ctx context.Context, doc *entity.Document) error {
	articles, err := json.Marshal(articlesOrEmpty(doc.ListeArticles))
	if err != nil {
		return fmt.Errorf("failed to encode articles: %w", err)
	}

	doc.UpdatedAt = r.now().UTC()
	query := `
		UPDATE documents SET
			demandeur = ?, direction = ?, objet = ?, justification = ?, urgence = ?,
			date_souhaitee = ?, beneficiaire = ?, montant = ?, liste_articles = ?,
			parent_id = ?, budget_line_id = ?, updated_at = ?
		WHERE id = ? AND statut = ?
	`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		doc.Demandeur,
		doc.Direction,
		doc.Objet,
		doc.Justification,
		doc.Urgence,
		nullTime(doc.DateSouhaitee),
		doc.Beneficiaire,
		doc.Montant.String(),
		string(articles),
		doc.ParentID,
		doc.BudgetLineID,
		doc.UpdatedAt,
		doc.ID,
		workflow.StatusBrouillon,
	)
	if err != nil {
		r.logger.Error("Failed to update draft", zap.String("id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to update draft: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s is no longer a draft", workflow.ErrConcurrentModification, doc.ID)
	}
	return nil
}

// ApplyTransition writes the new status only if status and step pointer are unchanged
// and the actor still holds one of the required roles.
func (r *DocumentRepository) ApplyTransition(ctx context.Context, w port.TransitionWrite) error {
	doc := w.Document
	exec := getExecutor(ctx, r.db)
	now := r.now().UTC()

	if len(w.RequiredRoles) > 0 {
		ok, err := holdsRole(ctx, exec, w.ActorID, doc.DocType, w.RequiredRoles, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s no longer holds %v", workflow.ErrNotAuthorized, w.ActorID, w.RequiredRoles)
		}
	}

	doc.UpdatedAt = now
	query := `
		UPDATE documents SET
			statut = ?, reference = ?, current_validation_step = ?,
			submitted_at = ?, validated_by = ?, validated_at = ?,
			rejected_by = ?, rejected_at = ?, rejection_reason = ?,
			differe_by = ?, differe_at = ?, differe_motif = ?, differe_date_reprise = ?,
			updated_at = ?
		WHERE id = ? AND statut = ? AND current_validation_step = ?
	`
	result, err := exec.ExecContext(ctx, query,
		doc.Statut,
		nullString(doc.Reference),
		doc.CurrentValidationStep,
		nullTime(doc.SubmittedAt),
		doc.ValidatedBy,
		nullTime(doc.ValidatedAt),
		doc.RejectedBy,
		nullTime(doc.RejectedAt),
		doc.RejectionReason,
		doc.DeferredBy,
		nullTime(doc.DeferredAt),
		doc.DeferMotif,
		nullTime(doc.DeferResumptionDate),
		doc.UpdatedAt,
		doc.ID,
		w.ExpectedStatut,
		w.ExpectedStep,
	)
	if err != nil {
		r.logger.Error("Failed to apply transition",
			zap.String("id", doc.ID),
			zap.String("to", doc.Statut.String()),
			zap.Error(err))
		return fmt.Errorf("failed to apply transition: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s changed since it was read as %s step %d",
			workflow.ErrConcurrentModification, doc.ID, w.ExpectedStatut, w.ExpectedStep)
	}
	return nil
}

// SetDossier links a document to its dossier
func (r *DocumentRepository) SetDossier(ctx context.Context, documentID, dossierID string) error {
	query := `UPDATE documents SET dossier_id = ?, updated_at = ? WHERE id = ?`
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query, dossierID, r.now().UTC(), documentID)
	if err != nil {
		r.logger.Error("Failed to set dossier", zap.String("id", documentID), zap.Error(err))
		return fmt.Errorf("failed to set dossier: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: document %s", workflow.ErrNotFound, documentID)
	}
	return nil
}

func (r *DocumentRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Document, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list documents", zap.Error(err))
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// holdsRole checks user_roles, then delegations in force at now
func holdsRole(ctx context.Context, exec executor, userID string, docType workflow.DocType, roles []workflow.Role, now time.Time) (bool, error) {
	direct := make([]interface{}, 0, len(roles)+2)
	direct = append(direct, userID, workflow.RoleAdmin)
	delegated := make([]interface{}, 0, len(roles)+4)
	delegated = append(delegated, userID)
	for _, role := range roles {
		direct = append(direct, role)
		delegated = append(delegated, role)
	}
	delegated = append(delegated, docType, now, now)

	query := `
		SELECT EXISTS (
			SELECT 1 FROM user_roles WHERE user_id = ? AND role IN (` + placeholders(len(roles)+1) + `)
		) OR EXISTS (
			SELECT 1 FROM delegations
			WHERE delegate_id = ? AND active = 1
				AND role IN (` + placeholders(len(roles)) + `)
				AND (doc_type = '' OR doc_type = ?)
				AND starts_at <= ? AND ends_at > ?
		)
	`
	var ok bool
	args := append(direct, delegated...)
	if err := exec.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check roles of %s: %w", userID, err)
	}
	return ok, nil
}

func scanDocument(s rowScanner) (*entity.Document, error) {
	var doc entity.Document
	var reference sql.NullString
	var articles string
	var dateSouhaitee, submittedAt, validatedAt, rejectedAt, deferredAt, resumption sql.NullTime

	err := s.Scan(
		&doc.ID,
		&doc.DocType,
		&reference,
		&doc.Exercice,
		&doc.Statut,
		&doc.CreatedBy,
		&doc.Demandeur,
		&doc.Direction,
		&doc.Objet,
		&doc.Justification,
		&doc.Urgence,
		&dateSouhaitee,
		&doc.Beneficiaire,
		&doc.Montant,
		&articles,
		&doc.ParentID,
		&doc.DossierID,
		&doc.BudgetLineID,
		&doc.CurrentValidationStep,
		&doc.Legacy,
		&submittedAt,
		&doc.ValidatedBy,
		&validatedAt,
		&doc.RejectedBy,
		&rejectedAt,
		&doc.RejectionReason,
		&doc.DeferredBy,
		&deferredAt,
		&doc.DeferMotif,
		&resumption,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Reference = reference.String
	if articles != "" {
		if err := json.Unmarshal([]byte(articles), &doc.ListeArticles); err != nil {
			return nil, fmt.Errorf("invalid articles on %s: %w", doc.ID, err)
		}
	}
	doc.DateSouhaitee = timePtr(dateSouhaitee)
	doc.SubmittedAt = timePtr(submittedAt)
	doc.ValidatedAt = timePtr(validatedAt)
	doc.RejectedAt = timePtr(rejectedAt)
	doc.DeferredAt = timePtr(deferredAt)
	doc.DeferResumptionDate = timePtr(resumption)
	return &doc, nil
}

func articlesOrEmpty(a []entity.Article) []entity.Article {
	if a == nil {
		return []entity.Article{}
	}
	return a
}

// Verify interface compliance
var _ port.DocumentRepository = (*DocumentRepository)(nil)
