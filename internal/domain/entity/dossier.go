package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// Dossier is the case record linking every document of one spending chain
type Dossier struct {
	ID            string        `json:"id"`
	Numero        string        `json:"numero"`
	Exercice      int           `json:"exercice"`
	TypeDossier   string        `json:"type_dossier"`
	Objet         string        `json:"objet"`
	Direction     string        `json:"direction,omitempty"`
	Demandeur     string        `json:"demandeur,omitempty"`
	Beneficiaire  string        `json:"beneficiaire,omitempty"`
	StatutGlobal  string        `json:"statut_global"`
	EtapeCourante SpendingStage `json:"etape_courante"`

	MontantEstime  decimal.Decimal `json:"montant_estime"`
	MontantEngage  decimal.Decimal `json:"montant_engage"`
	MontantLiquide decimal.Decimal `json:"montant_liquide"`
	MontantPaye    decimal.Decimal `json:"montant_paye"`

	NoteSEFID string    `json:"note_sef_id,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DossierEtape links one stage document to its dossier
type DossierEtape struct {
	ID        int64           `json:"id"`
	DossierID string          `json:"dossier_id"`
	TypeEtape SpendingStage   `json:"type_etape"`
	EntityID  string          `json:"entity_id"`
	Reference string          `json:"reference,omitempty"`
	Statut    workflow.Status `json:"statut"`
	Montant   decimal.Decimal `json:"montant"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
