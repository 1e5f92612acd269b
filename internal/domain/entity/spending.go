package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// SpendingStage is one stage of a spending case timeline
type SpendingStage string

const (
	StageNoteSEF         SpendingStage = "note_sef"
	StageNoteAEF         SpendingStage = "note_aef"
	StageImputation      SpendingStage = "imputation"
	StagePassationMarche SpendingStage = "passation_marche"
	StageEngagement      SpendingStage = "engagement"
	StageLiquidation     SpendingStage = "liquidation"
	StageOrdonnancement  SpendingStage = "ordonnancement"
	StageReglement       SpendingStage = "reglement"
)

// SpendingStages lists the timeline stages in order
var SpendingStages = []SpendingStage{
	StageNoteSEF,
	StageNoteAEF,
	StageImputation,
	StagePassationMarche,
	StageEngagement,
	StageLiquidation,
	StageOrdonnancement,
	StageReglement,
}

var stageDocTypes = map[SpendingStage]workflow.DocType{
	StageNoteSEF:         workflow.DocNoteSEF,
	StageNoteAEF:         workflow.DocNoteAEF,
	StageImputation:      workflow.DocImputation,
	StagePassationMarche: workflow.DocMarche,
	StageEngagement:      workflow.DocEngagement,
	StageLiquidation:     workflow.DocLiquidation,
	StageOrdonnancement:  workflow.DocOrdonnancement,
	StageReglement:       workflow.DocReglement,
}

var stageLabels = map[SpendingStage]string{
	StageNoteSEF:         "Note SEF",
	StageNoteAEF:         "Note AEF",
	StageImputation:      "Imputation",
	StagePassationMarche: "Passation de marché",
	StageEngagement:      "Engagement",
	StageLiquidation:     "Liquidation",
	StageOrdonnancement:  "Ordonnancement",
	StageReglement:       "Règlement",
}

// DocType returns the document type tracked by the stage
func (s SpendingStage) DocType() workflow.DocType {
	return stageDocTypes[s]
}

// Label returns the display label of the stage
func (s SpendingStage) Label() string {
	return stageLabels[s]
}

// StageFor returns the timeline stage of a document type.
// The expression de besoin has no stage of its own.
func StageFor(d workflow.DocType) (SpendingStage, bool) {
	for s, dt := range stageDocTypes {
		if dt == d {
			return s, true
		}
	}
	return "", false
}

// SpendingStepStatus is the state of one stage in the timeline
type SpendingStepStatus string

const (
	StepStatusPending    SpendingStepStatus = "pending"
	StepStatusInProgress SpendingStepStatus = "in_progress"
	StepStatusCompleted  SpendingStepStatus = "completed"
	StepStatusRejected   SpendingStepStatus = "rejected"
	StepStatusDeferred   SpendingStepStatus = "deferred"
	StepStatusSkipped    SpendingStepStatus = "skipped"
)

// SpendingStepData is what the timeline knows about one stage document
type SpendingStepData struct {
	EntityID  string          `json:"entity_id"`
	Reference string          `json:"reference,omitempty"`
	Statut    workflow.Status `json:"statut"`
	Montant   decimal.Decimal `json:"montant"`
	Date      *time.Time      `json:"date,omitempty"`
}

// SpendingStageView is one stage of the timeline
type SpendingStageView struct {
	Stage  SpendingStage      `json:"stage"`
	Label  string             `json:"label"`
	Status SpendingStepStatus `json:"status"`
	Data   *SpendingStepData  `json:"data,omitempty"`
}

// NextAction is the recommended next transition for a user
type NextAction struct {
	DocumentID    string           `json:"document_id,omitempty"`
	DocType       workflow.DocType `json:"doc_type,omitempty"`
	Action        workflow.Action  `json:"action"`
	Label         string           `json:"label"`
	ToStatus      workflow.Status  `json:"to_status"`
	RequiresMotif bool             `json:"requires_motif"`
}

// SpendingCase is the timeline of one dossier
type SpendingCase struct {
	DossierID    string              `json:"dossier_id"`
	Numero       string              `json:"numero"`
	Exercice     int                 `json:"exercice"`
	Objet        string              `json:"objet"`
	StatutGlobal string              `json:"statut_global"`
	Stages       []SpendingStageView `json:"stages"`
	Completed    int                 `json:"completed"`
	Progress     int                 `json:"progress"`
	CurrentStage SpendingStage       `json:"current_stage,omitempty"`
	NextStage    SpendingStage       `json:"next_stage,omitempty"`
	NextAction   *NextAction         `json:"next_action,omitempty"`
}
