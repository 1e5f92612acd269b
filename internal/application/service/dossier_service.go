package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/application/sequence"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/event"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// DossierService links chain documents to their spending case
type DossierService interface {
	// CreateFromNoteSEF opens the dossier of a validated Note SEF.
	// Errors wrap workflow.ErrDownstreamCreationFailed.
	CreateFromNoteSEF(ctx context.Context, doc *entity.Document, actorID string) (*entity.Dossier, error)

	// CreateDossierHook has the signature of a post-commit effect hook
	CreateDossierHook(ctx context.Context, doc *entity.Document, actorID string) error

	// OnStatusChanged is the dispatcher handler advancing the dossier stages
	OnStatusChanged(ctx context.Context, evt *event.Event) error

	GetDossier(ctx context.Context, idOrNumero string) (*entity.Dossier, error)
	ListEtapes(ctx context.Context, dossierID string) ([]*entity.DossierEtape, error)
}

type dossierServiceImpl struct {
	dossierRepo port.DossierRepository
	docRepo     port.DocumentRepository
	txManager   port.TransactionManager
	generator   *sequence.Generator
	registry    *workflow.Registry
	publish     func(ctx context.Context, evt *event.Event)
	logger      Logger
	now         func() time.Time
}

// NewDossierService creates a new DossierService. publish may be nil.
func NewDossierService(
	dossierRepo port.DossierRepository,
	docRepo port.DocumentRepository,
	txManager port.TransactionManager,
	generator *sequence.Generator,
	registry *workflow.Registry,
	publish func(ctx context.Context, evt *event.Event),
	logger Logger,
) DossierService {
	return &dossierServiceImpl{
		dossierRepo: dossierRepo,
		docRepo:     docRepo,
		txManager:   txManager,
		generator:   generator,
		registry:    registry,
		publish:     publish,
		logger:      logger,
		now:         time.Now,
	}
}

// CreateFromNoteSEF allocates the dossier numero, then inserts the dossier, links the
// note and records its stage in one transaction
func (s *dossierServiceImpl) CreateFromNoteSEF(ctx context.Context, doc *entity.Document, actorID string) (*entity.Dossier, error) {
	if doc.DocType != workflow.DocNoteSEF {
		return nil, fmt.Errorf("%w: %s cannot open a dossier", workflow.ErrDownstreamCreationFailed, doc.DocType)
	}
	if doc.DossierID != "" {
		existing, err := s.dossierRepo.GetByID(ctx, doc.DossierID)
		if err != nil {
			return nil, fmt.Errorf("%w: get dossier: %v", workflow.ErrDownstreamCreationFailed, err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	now := s.now()
	exercice := doc.Exercice
	if exercice == 0 {
		exercice = now.Year()
	}

	numero := ""
	ref, err := s.generator.ForDossier(ctx, exercice, doc.Direction)
	if err != nil {
		numero = temporaryNumero(exercice, doc.Direction)
		s.logger.Error("Dossier numbering failed, using temporary numero",
			"error", err,
			"document_id", doc.ID,
			"numero", numero,
		)
	} else {
		numero = ref.FullCode
	}

	dossier := &entity.Dossier{
		ID:             uuid.NewString(),
		Numero:         numero,
		Exercice:       exercice,
		TypeDossier:    entity.DossierTypeSEF,
		Objet:          doc.Objet,
		Direction:      doc.Direction,
		Demandeur:      doc.Demandeur,
		Beneficiaire:   doc.Beneficiaire,
		StatutGlobal:   entity.DossierStatusEnCours,
		EtapeCourante:  entity.StageNoteSEF,
		MontantEstime:  doc.Montant,
		MontantEngage:  decimal.Zero,
		MontantLiquide: decimal.Zero,
		MontantPaye:    decimal.Zero,
		NoteSEFID:      doc.ID,
		CreatedBy:      actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.dossierRepo.Create(txCtx, dossier); err != nil {
			return fmt.Errorf("create dossier: %w", err)
		}
		if err := s.docRepo.SetDossier(txCtx, doc.ID, dossier.ID); err != nil {
			return fmt.Errorf("link note: %w", err)
		}
		return s.dossierRepo.UpsertEtape(txCtx, &entity.DossierEtape{
			DossierID: dossier.ID,
			TypeEtape: entity.StageNoteSEF,
			EntityID:  doc.ID,
			Reference: doc.Reference,
			Statut:    workflow.StatusValide,
			Montant:   doc.Montant,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		s.logger.Error("Failed to create dossier", "error", err, "document_id", doc.ID)
		return nil, fmt.Errorf("%w: %v", workflow.ErrDownstreamCreationFailed, err)
	}

	doc.DossierID = dossier.ID
	s.logger.Info("Dossier created",
		"dossier_id", dossier.ID,
		"numero", dossier.Numero,
		"document_id", doc.ID,
	)

	if s.publish != nil {
		s.publish(ctx, event.NewEvent(event.TypeDossierCreated, doc.ID, string(doc.DocType), map[string]interface{}{
			event.KeyDossierID: dossier.ID,
			event.KeyReference: dossier.Numero,
			event.KeyActorID:   actorID,
		}))
	}

	return dossier, nil
}

func (s *dossierServiceImpl) CreateDossierHook(ctx context.Context, doc *entity.Document, actorID string) error {
	_, err := s.CreateFromNoteSEF(ctx, doc, actorID)
	return err
}

// temporaryNumero is the fallback numero used when the counter is unavailable
func temporaryNumero(exercice int, direction string) string {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir == "" {
		dir = sequence.DefaultOrgUnit
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ARTI/%d/%s/TMP%s", exercice, dir, suffix)
}

// OnStatusChanged mirrors the document status into its stage row. A validated
// document advances the current stage and a closed règlement ends the dossier.
func (s *dossierServiceImpl) OnStatusChanged(ctx context.Context, evt *event.Event) error {
	doc, err := s.docRepo.GetByID(ctx, evt.DocumentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if doc == nil || doc.DossierID == "" {
		return nil
	}
	stage, ok := entity.StageFor(doc.DocType)
	if !ok {
		return nil
	}
	def, err := s.registry.Definition(doc.DocType)
	if err != nil {
		return err
	}

	dossier, err := s.dossierRepo.GetByID(ctx, doc.DossierID)
	if err != nil {
		return fmt.Errorf("get dossier: %w", err)
	}
	if dossier == nil {
		s.logger.Error("Document linked to a missing dossier", "document_id", doc.ID, "dossier_id", doc.DossierID)
		return nil
	}

	now := s.now()
	validated := def.IsValidated(doc.Statut)
	if validated && stageIndex(stage) > stageIndex(dossier.EtapeCourante) {
		dossier.EtapeCourante = stage
	}
	if validated {
		switch doc.DocType {
		case workflow.DocEngagement:
			dossier.MontantEngage = doc.Montant
		case workflow.DocLiquidation:
			dossier.MontantLiquide = doc.Montant
		case workflow.DocReglement:
			dossier.MontantPaye = doc.Montant
		}
	}
	if doc.DocType == workflow.DocReglement && doc.Statut == workflow.StatusCloture {
		dossier.StatutGlobal = entity.DossierStatusTermine
	}
	dossier.UpdatedAt = now

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.dossierRepo.UpsertEtape(txCtx, &entity.DossierEtape{
			DossierID: dossier.ID,
			TypeEtape: stage,
			EntityID:  doc.ID,
			Reference: doc.Reference,
			Statut:    doc.Statut,
			Montant:   doc.Montant,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("upsert etape: %w", err)
		}
		return s.dossierRepo.Update(txCtx, dossier)
	})
	if err != nil {
		s.logger.Error("Failed to advance dossier", "error", err, "document_id", doc.ID, "dossier_id", dossier.ID)
		return err
	}

	s.logger.Info("Dossier stage updated",
		"dossier_id", dossier.ID,
		"stage", stage,
		"statut", doc.Statut,
		"etape_courante", dossier.EtapeCourante,
	)
	return nil
}

func stageIndex(s entity.SpendingStage) int {
	for i, st := range entity.SpendingStages {
		if st == s {
			return i
		}
	}
	return -1
}

// GetDossier accepts a dossier id or numero
func (s *dossierServiceImpl) GetDossier(ctx context.Context, idOrNumero string) (*entity.Dossier, error) {
	dossier, err := s.dossierRepo.GetByID(ctx, idOrNumero)
	if err != nil {
		return nil, fmt.Errorf("get dossier: %w", err)
	}
	if dossier == nil {
		dossier, err = s.dossierRepo.GetByNumero(ctx, idOrNumero)
		if err != nil {
			return nil, fmt.Errorf("get dossier by numero: %w", err)
		}
	}
	if dossier == nil {
		return nil, fmt.Errorf("%w: dossier %s", workflow.ErrNotFound, idOrNumero)
	}
	return dossier, nil
}

func (s *dossierServiceImpl) ListEtapes(ctx context.Context, dossierID string) ([]*entity.DossierEtape, error) {
	return s.dossierRepo.ListEtapes(ctx, dossierID)
}
