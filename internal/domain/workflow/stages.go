package workflow

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PrerequisiteNotValidated is the code returned when a previous step is not validated
const PrerequisiteNotValidated = "PREREQUIS_NON_VALIDE"

// StageConfig describes one of the nine steps of the spending chain
type StageConfig struct {
	Number     int
	Code       string
	Label      string
	LabelShort string
	Table      string

	// Owners may create and edit documents of this step
	Owners     []Role
	Validators []Role

	Prerequisites         []DocType
	PrerequisitesOptional bool
	Description           string
}

var chainSteps = map[DocType]StageConfig{
	DocNoteSEF: {
		Number:      1,
		Code:        "NOTE_SEF",
		Label:       "Note Sans Engagement Financier",
		LabelShort:  "Note SEF",
		Table:       "notes_sef",
		Owners:      []Role{RoleAgent, RoleOperateur, RoleChefService, RoleDirecteur, RoleAdmin},
		Validators:  []Role{RoleDG, RoleAdmin},
		Description: "Demande sans impact budgétaire immédiat",
	},
	DocNoteAEF: {
		Number:                2,
		Code:                  "NOTE_AEF",
		Label:                 "Note Avec Engagement Financier",
		LabelShort:            "Note AEF",
		Table:                 "notes_dg",
		Owners:                []Role{RoleAgent, RoleOperateur, RoleChefService, RoleDirecteur, RoleAdmin},
		Validators:            []Role{RoleDirecteur, RoleDG, RoleAdmin},
		Prerequisites:         []DocType{DocNoteSEF},
		PrerequisitesOptional: true,
		Description:           "Demande avec engagement financier prévu",
	},
	DocImputation: {
		Number:        3,
		Code:          "IMPUTATION",
		Label:         "Imputation Budgétaire",
		LabelShort:    "Imputation",
		Table:         "imputations",
		Owners:        []Role{RoleCB, RoleAdmin},
		Validators:    []Role{RoleCB, RoleAdmin},
		Prerequisites: []DocType{DocNoteAEF},
		Description:   "Affectation aux lignes budgétaires",
	},
	DocExpressionBesoin: {
		Number:        4,
		Code:          "EXPRESSION_BESOIN",
		Label:         "Expression de Besoin",
		LabelShort:    "Exp. Besoin",
		Table:         "expressions_besoin",
		Owners:        []Role{RoleAgent, RoleChefService, RoleDAAF, RoleAdmin},
		Validators:    []Role{RoleCB, RoleDG, RoleAdmin},
		Prerequisites: []DocType{DocImputation},
		Description:   "Formalisation détaillée du besoin",
	},
	DocMarche: {
		Number:                5,
		Code:                  "PASSATION_MARCHE",
		Label:                 "Passation de Marché",
		LabelShort:            "Marché",
		Table:                 "marches",
		Owners:                []Role{RoleDAAF, RoleCommissionMarches, RoleAdmin},
		Validators:            []Role{RoleDG, RoleCommissionMarches, RoleAdmin},
		Prerequisites:         []DocType{DocExpressionBesoin},
		PrerequisitesOptional: true,
		Description:           "Procédure de passation si montant > seuil",
	},
	DocEngagement: {
		Number:        6,
		Code:          "ENGAGEMENT",
		Label:         "Engagement Budgétaire",
		LabelShort:    "Engagement",
		Table:         "budget_engagements",
		Owners:        []Role{RoleDAAF, RoleCB, RoleAdmin},
		Validators:    []Role{RoleSAF, RoleCB, RoleDAF, RoleDG, RoleAdmin},
		Prerequisites: []DocType{DocExpressionBesoin},
		Description:   "Réservation des crédits budgétaires",
	},
	DocLiquidation: {
		Number:        7,
		Code:          "LIQUIDATION",
		Label:         "Liquidation",
		LabelShort:    "Liquidation",
		Table:         "budget_liquidations",
		Owners:        []Role{RoleDAAF, RoleSDCT, RoleAdmin},
		Validators:    []Role{RoleSDCT, RoleDAAF, RoleDG, RoleAdmin},
		Prerequisites: []DocType{DocEngagement},
		Description:   "Constatation du service fait",
	},
	DocOrdonnancement: {
		Number:        8,
		Code:          "ORDONNANCEMENT",
		Label:         "Ordonnancement",
		LabelShort:    "Ordo.",
		Table:         "ordonnancements",
		Owners:        []Role{RoleDAAF, RoleAdmin},
		Validators:    []Role{RoleDAAF, RoleDG, RoleAdmin},
		Prerequisites: []DocType{DocLiquidation},
		Description:   "Ordre de paiement",
	},
	DocReglement: {
		Number:        9,
		Code:          "REGLEMENT",
		Label:         "Règlement",
		LabelShort:    "Règlement",
		Table:         "reglements",
		Owners:        []Role{RoleTresorerie, RoleAgentComptable, RoleAdmin},
		Validators:    []Role{RoleTresorerie, RoleAgentComptable, RoleAdmin},
		Prerequisites: []DocType{DocOrdonnancement},
		Description:   "Exécution du paiement effectif",
	},
}

// Stage returns the chain configuration of a document type
func Stage(d DocType) (StageConfig, bool) {
	s, ok := chainSteps[d]
	return s, ok
}

// Steps returns the nine chain steps in order
func Steps() []StageConfig {
	out := make([]StageConfig, 0, len(AllDocTypes))
	for _, d := range AllDocTypes {
		out = append(out, chainSteps[d])
	}
	return out
}

// PrerequisiteResult is the outcome of a prerequisite check
type PrerequisiteResult struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Err returns a PrerequisiteError when the check failed
func (r PrerequisiteResult) Err() error {
	if r.Valid {
		return nil
	}
	return &PrerequisiteError{Code: r.Code, Message: r.Message}
}

// CheckPrerequisites verifies that the steps required before entering a
// document type are validated in the dossier.
func CheckPrerequisites(step DocType, dossierState map[DocType]Status, montant decimal.Decimal, th Thresholds) PrerequisiteResult {
	config, ok := chainSteps[step]
	if !ok {
		return PrerequisiteResult{Message: fmt.Sprintf("Étape inconnue: %s", step), Code: PrerequisiteNotValidated}
	}

	if len(config.Prerequisites) == 0 {
		return PrerequisiteResult{Valid: true}
	}

	if config.PrerequisitesOptional {
		switch step {
		case DocMarche:
			if montant.IsPositive() && montant.LessThan(th.MarcheRequired) {
				return PrerequisiteResult{Valid: true, Message: "Marché non requis (montant < seuil)"}
			}
		case DocNoteAEF:
			return PrerequisiteResult{Valid: true, Message: "Note SEF optionnelle"}
		}
	}

	for _, prereq := range config.Prerequisites {
		status, found := dossierState[prereq]
		if !found || !status.IsValidated() {
			return PrerequisiteResult{
				Message: fmt.Sprintf("L'étape \"%s\" doit être validée avant de créer %s", chainSteps[prereq].LabelShort, config.LabelShort),
				Code:    PrerequisiteNotValidated,
			}
		}
	}

	return PrerequisiteResult{Valid: true}
}
