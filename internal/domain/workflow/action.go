package workflow

// Action is a user-triggered request to move a document between statuses
type Action string

const (
	ActionSubmit   Action = "SUBMIT"
	ActionValidate Action = "VALIDATE"
	ActionReject   Action = "REJECT"
	ActionDefer    Action = "DEFER"
	ActionResubmit Action = "RESUBMIT"
	ActionRevise   Action = "REVISE"

	ActionForwardDir  Action = "FORWARD_DIR"
	ActionImpute      Action = "IMPUTE"
	ActionSatisfy     Action = "SATISFY"
	ActionForwardDG   Action = "FORWARD_DG"
	ActionValidateDG  Action = "VALIDATE_DG"
	ActionPrepareSign Action = "PREPARE_SIGN"
	ActionSign        Action = "SIGN"
	ActionPay         Action = "PAY"
	ActionClose       Action = "CLOSE"

	ActionPublish            Action = "PUBLISH"
	ActionCloseBids          Action = "CLOSE_BIDS"
	ActionStartEvaluation    Action = "START_EVALUATION"
	ActionAttribute          Action = "ATTRIBUTE"
	ActionApproveAttribution Action = "APPROVE_ATTRIBUTION"
	ActionRejectAttribution  Action = "REJECT_ATTRIBUTION"
	ActionSignContract       Action = "SIGN_CONTRACT"
	ActionCancel             Action = "CANCEL"
)

// HistoryAction is the verb stored in the document history
type HistoryAction string

const (
	HistoryCreation     HistoryAction = "creation"
	HistoryModification HistoryAction = "modification"
	HistorySoumission   HistoryAction = "soumission"
	HistoryValidation   HistoryAction = "validation"
	HistoryRejet        HistoryAction = "rejet"
	HistoryReport       HistoryAction = "report"
	HistoryResoumission HistoryAction = "resoumission"
	HistoryCorrection   HistoryAction = "correction"
	HistoryImputation   HistoryAction = "imputation"
	HistoryTransmission HistoryAction = "transmission"
	HistorySignature    HistoryAction = "signature"
	HistoryPaiement     HistoryAction = "paiement"
	HistoryCloture      HistoryAction = "cloture"
	HistoryAnnulation   HistoryAction = "annulation"
	HistoryPassation    HistoryAction = "passation"
	HistorySatisfaction HistoryAction = "satisfaction"
)

type actionMeta struct {
	label   string
	history HistoryAction
}

var actions = map[Action]actionMeta{
	ActionSubmit:             {"Soumettre", HistorySoumission},
	ActionValidate:           {"Valider", HistoryValidation},
	ActionReject:             {"Rejeter", HistoryRejet},
	ActionDefer:              {"Différer", HistoryReport},
	ActionResubmit:           {"Resoumettre", HistoryResoumission},
	ActionRevise:             {"Corriger", HistoryCorrection},
	ActionForwardDir:         {"Transmettre au Directeur", HistoryTransmission},
	ActionImpute:             {"Imputer", HistoryImputation},
	ActionSatisfy:            {"Marquer satisfaite", HistorySatisfaction},
	ActionForwardDG:          {"Transmettre au DG", HistoryTransmission},
	ActionValidateDG:         {"Valider (DG)", HistoryValidation},
	ActionPrepareSign:        {"Préparer signature", HistoryTransmission},
	ActionSign:               {"Signer", HistorySignature},
	ActionPay:                {"Confirmer paiement", HistoryPaiement},
	ActionClose:              {"Clôturer", HistoryCloture},
	ActionPublish:            {"Publier", HistoryPassation},
	ActionCloseBids:          {"Clôturer les offres", HistoryPassation},
	ActionStartEvaluation:    {"Démarrer l'évaluation", HistoryPassation},
	ActionAttribute:          {"Attribuer", HistoryPassation},
	ActionApproveAttribution: {"Approuver l'attribution", HistoryValidation},
	ActionRejectAttribution:  {"Rejeter l'attribution", HistoryRejet},
	ActionSignContract:       {"Signer le marché", HistorySignature},
	ActionCancel:             {"Annuler", HistoryAnnulation},
}

// IsValid returns true if the action is known
func (a Action) IsValid() bool {
	_, ok := actions[a]
	return ok
}

// Label returns the display label of the action
func (a Action) Label() string {
	if m, ok := actions[a]; ok {
		return m.label
	}
	return string(a)
}

// HistoryAction returns the history verb recorded for the action
func (a Action) HistoryAction() HistoryAction {
	if m, ok := actions[a]; ok {
		return m.history
	}
	return HistoryModification
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}
