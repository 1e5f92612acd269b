package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/sygfp/internal/application/port"
	appwf "github.com/garyjia/sygfp/internal/application/workflow"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// SpendingService builds the timeline of a spending case
type SpendingService interface {
	// Timeline accepts a dossier id or numero
	Timeline(ctx context.Context, caseRef, actorID string) (*entity.SpendingCase, error)
}

type spendingServiceImpl struct {
	dossiers DossierService
	docRepo  port.DocumentRepository
	registry *workflow.Registry
	engine   appwf.Engine
	logger   Logger
}

// NewSpendingService creates a new SpendingService. engine may be nil, in
// which case no next action is computed.
func NewSpendingService(
	dossiers DossierService,
	docRepo port.DocumentRepository,
	registry *workflow.Registry,
	engine appwf.Engine,
	logger Logger,
) SpendingService {
	return &spendingServiceImpl{
		dossiers: dossiers,
		docRepo:  docRepo,
		registry: registry,
		engine:   engine,
		logger:   logger,
	}
}

func (s *spendingServiceImpl) Timeline(ctx context.Context, caseRef, actorID string) (*entity.SpendingCase, error) {
	dossier, err := s.dossiers.GetDossier(ctx, caseRef)
	if err != nil {
		return nil, err
	}

	docs, err := s.docRepo.ListByDossier(ctx, dossier.ID)
	if err != nil {
		s.logger.Error("Failed to list dossier documents", "error", err, "dossier_id", dossier.ID)
		return nil, fmt.Errorf("list dossier documents: %w", err)
	}

	latest := make(map[entity.SpendingStage]*entity.Document)
	for _, d := range docs {
		stage, ok := entity.StageFor(d.DocType)
		if !ok {
			continue
		}
		if cur, seen := latest[stage]; !seen || d.UpdatedAt.After(cur.UpdatedAt) {
			latest[stage] = d
		}
	}
	montant := s.caseAmount(dossier, latest)

	sc := &entity.SpendingCase{
		DossierID:    dossier.ID,
		Numero:       dossier.Numero,
		Exercice:     dossier.Exercice,
		Objet:        dossier.Objet,
		StatutGlobal: dossier.StatutGlobal,
	}

	done := 0
	current := -1
	for i, stage := range entity.SpendingStages {
		view := entity.SpendingStageView{Stage: stage, Label: stage.Label()}
		doc := latest[stage]
		switch {
		case doc != nil:
			view.Status = s.stageStatus(doc)
			view.Data = &entity.SpendingStepData{
				EntityID:  doc.ID,
				Reference: doc.Reference,
				Statut:    doc.Statut,
				Montant:   doc.Montant,
				Date:      stageDate(doc),
			}
		case stage == entity.StagePassationMarche && s.marcheSkippable(montant):
			view.Status = entity.StepStatusSkipped
		default:
			view.Status = entity.StepStatusPending
		}

		switch view.Status {
		case entity.StepStatusCompleted:
			sc.Completed++
			done++
		case entity.StepStatusSkipped:
			// counted once every earlier stage is behind the case
			if current < 0 {
				done++
			}
		default:
			if current < 0 {
				current = i
			}
		}
		sc.Stages = append(sc.Stages, view)
	}

	sc.Progress = done * 100 / len(entity.SpendingStages)
	if current >= 0 {
		sc.CurrentStage = entity.SpendingStages[current]
		if current+1 < len(entity.SpendingStages) {
			sc.NextStage = entity.SpendingStages[current+1]
		}
		if doc := latest[sc.CurrentStage]; doc != nil && s.engine != nil && actorID != "" {
			next, err := s.engine.GetNextAction(ctx, doc.ID, actorID)
			if err != nil {
				s.logger.Error("Failed to compute next action", "error", err, "document_id", doc.ID)
			} else {
				sc.NextAction = next
			}
		}
	}

	return sc, nil
}

// stageStatus maps a document status onto the timeline
func (s *spendingServiceImpl) stageStatus(doc *entity.Document) entity.SpendingStepStatus {
	def, err := s.registry.Definition(doc.DocType)
	if err == nil && def.IsValidated(doc.Statut) {
		return entity.StepStatusCompleted
	}
	switch doc.Statut {
	case workflow.StatusRejete, workflow.StatusAnnule:
		return entity.StepStatusRejected
	case workflow.StatusDiffere:
		return entity.StepStatusDeferred
	default:
		return entity.StepStatusInProgress
	}
}

// caseAmount is the estimate, else the largest amount validated before the
// procurement stage. Drafts never move it.
func (s *spendingServiceImpl) caseAmount(dossier *entity.Dossier, latest map[entity.SpendingStage]*entity.Document) decimal.Decimal {
	if dossier.MontantEstime.IsPositive() {
		return dossier.MontantEstime
	}
	montant := decimal.Zero
	for _, stage := range entity.SpendingStages {
		if stage == entity.StagePassationMarche {
			break
		}
		doc := latest[stage]
		if doc == nil || s.stageStatus(doc) != entity.StepStatusCompleted {
			continue
		}
		if doc.Montant.GreaterThan(montant) {
			montant = doc.Montant
		}
	}
	return montant
}

func (s *spendingServiceImpl) marcheSkippable(montant decimal.Decimal) bool {
	return montant.IsPositive() && montant.LessThan(s.registry.Thresholds().MarcheRequired)
}

func stageDate(doc *entity.Document) *time.Time {
	if doc.ValidatedAt != nil {
		return doc.ValidatedAt
	}
	if doc.SubmittedAt != nil {
		return doc.SubmittedAt
	}
	t := doc.CreatedAt
	return &t
}
