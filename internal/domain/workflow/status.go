package workflow

// Status is the lifecycle status of a spending-chain document
type Status string

const (
	StatusBrouillon      Status = "brouillon"
	StatusSoumis         Status = "soumis"
	StatusAValider       Status = "a_valider"
	StatusVerifie        Status = "verifie"
	StatusVisaSAF        Status = "visa_saf"
	StatusVisaCB         Status = "visa_cb"
	StatusVisaDAAF       Status = "visa_daaf"
	StatusEnValidationDG Status = "en_validation_dg"
	StatusValide         Status = "valide"
	StatusRejete         Status = "rejete"
	StatusDiffere        Status = "differe"
	StatusImpute         Status = "impute"
	StatusSatisfaite     Status = "satisfaite"
	StatusEnSignature    Status = "en_signature"
	StatusSigne          Status = "signe"
	StatusPaye           Status = "paye"
	StatusCloture        Status = "cloture"
	StatusAnnule         Status = "annule"

	// Procurement lifecycle
	StatusPublie       Status = "publie"
	StatusEnEvaluation Status = "en_evaluation"
	StatusAttribue     Status = "attribue"
	StatusApprouve     Status = "approuve"
)

var validStatuses = map[Status]bool{
	StatusBrouillon:      true,
	StatusSoumis:         true,
	StatusAValider:       true,
	StatusVerifie:        true,
	StatusVisaSAF:        true,
	StatusVisaCB:         true,
	StatusVisaDAAF:       true,
	StatusEnValidationDG: true,
	StatusValide:         true,
	StatusRejete:         true,
	StatusDiffere:        true,
	StatusImpute:         true,
	StatusSatisfaite:     true,
	StatusEnSignature:    true,
	StatusSigne:          true,
	StatusPaye:           true,
	StatusCloture:        true,
	StatusAnnule:         true,
	StatusPublie:         true,
	StatusEnEvaluation:   true,
	StatusAttribue:       true,
	StatusApprouve:       true,
}

// validatedStatuses mark a document whose stage is considered done
var validatedStatuses = map[Status]bool{
	StatusValide:     true,
	StatusImpute:     true,
	StatusSatisfaite: true,
	StatusSigne:      true,
	StatusPaye:       true,
	StatusCloture:    true,
	StatusApprouve:   true,
}

var terminalStatuses = map[Status]bool{
	StatusCloture: true,
	StatusAnnule:  true,
}

// IsValid returns true if the status is a known document status
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsValidated returns true if the status means the stage was validated
func (s Status) IsValidated() bool {
	return validatedStatuses[s]
}

// IsTerminal returns true for statuses that end the whole chain.
// Per-document terminality is decided by the Definition.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}
