package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// Document is one spending-chain document (note, imputation, engagement, ...)
type Document struct {
	ID        string           `json:"id"`
	DocType   workflow.DocType `json:"doc_type"`
	Reference string           `json:"reference,omitempty"`
	Exercice  int              `json:"exercice"`
	Statut    workflow.Status  `json:"statut"`

	CreatedBy string `json:"created_by"`
	Demandeur string `json:"demandeur,omitempty"`
	Direction string `json:"direction,omitempty"`

	Objet         string          `json:"objet,omitempty"`
	Justification string          `json:"justification,omitempty"`
	Urgence       string          `json:"urgence,omitempty"`
	DateSouhaitee *time.Time      `json:"date_souhaitee,omitempty"`
	Beneficiaire  string          `json:"beneficiaire,omitempty"`
	Montant       decimal.Decimal `json:"montant"`
	ListeArticles []Article       `json:"liste_articles,omitempty"`

	ParentID     string `json:"parent_id,omitempty"`
	DossierID    string `json:"dossier_id,omitempty"`
	BudgetLineID string `json:"budget_line_id,omitempty"`

	CurrentValidationStep int  `json:"current_validation_step"`
	Legacy                bool `json:"legacy,omitempty"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ValidatedBy string     `json:"validated_by,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`

	RejectedBy      string     `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	DeferredBy          string     `json:"differe_by,omitempty"`
	DeferredAt          *time.Time `json:"differe_at,omitempty"`
	DeferMotif          string     `json:"differe_motif,omitempty"`
	DeferResumptionDate *time.Time `json:"differe_date_reprise,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Article is one line of an expression de besoin
type Article struct {
	Designation  string          `json:"designation"`
	Quantite     decimal.Decimal `json:"quantite"`
	Unite        string          `json:"unite,omitempty"`
	PrixUnitaire decimal.Decimal `json:"prix_unitaire"`
}

// Total returns quantite times prix unitaire
func (a Article) Total() decimal.Decimal {
	return a.Quantite.Mul(a.PrixUnitaire)
}

// MissingFields returns the names of the given fields that are empty
func (d *Document) MissingFields(fields []string) []string {
	var missing []string
	for _, f := range fields {
		if !d.hasField(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

func (d *Document) hasField(name string) bool {
	switch name {
	case "objet":
		return strings.TrimSpace(d.Objet) != ""
	case "direction":
		return strings.TrimSpace(d.Direction) != ""
	case "demandeur":
		return strings.TrimSpace(d.Demandeur) != ""
	case "urgence":
		return strings.TrimSpace(d.Urgence) != ""
	case "justification":
		return strings.TrimSpace(d.Justification) != ""
	case "date_souhaitee":
		return d.DateSouhaitee != nil
	case "beneficiaire":
		return strings.TrimSpace(d.Beneficiaire) != ""
	case "montant":
		return d.Montant.IsPositive()
	case "budget_line_id":
		return d.BudgetLineID != ""
	case "liste_articles":
		return len(d.ListeArticles) > 0
	default:
		return false
	}
}

// IsOwner reports whether the user created or requested the document
func (d *Document) IsOwner(userID string) bool {
	return userID != "" && (d.CreatedBy == userID || d.Demandeur == userID)
}

// Stakeholders returns creator and demandeur without duplicates
func (d *Document) Stakeholders() []string {
	out := []string{}
	if d.CreatedBy != "" {
		out = append(out, d.CreatedBy)
	}
	if d.Demandeur != "" && d.Demandeur != d.CreatedBy {
		out = append(out, d.Demandeur)
	}
	return out
}

// DisplayRef returns the reference, or a placeholder before numbering
func (d *Document) DisplayRef() string {
	if d.Reference != "" {
		return d.Reference
	}
	return d.DocType.Label() + " (brouillon)"
}
