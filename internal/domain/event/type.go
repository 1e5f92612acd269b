package event

// Type identifies the type of domain event
type Type string

const (
	TypeDocumentCreated    Type = "document.created"
	TypeStatusChanged      Type = "document.status_changed"
	TypeValidationStepDone Type = "validation.step_approved"
	TypeDossierCreated     Type = "dossier.created"
	TypeAttachmentUploaded Type = "attachment.uploaded"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeDocumentCreated,
		TypeStatusChanged,
		TypeValidationStepDone,
		TypeDossierCreated,
		TypeAttachmentUploaded:
		return true
	default:
		return false
	}
}

// Payload keys shared by publishers and handlers
const (
	KeyAction     = "action"
	KeyOldStatut  = "old_statut"
	KeyNewStatut  = "new_statut"
	KeyActorID    = "actor_id"
	KeyStepOrder  = "step_order"
	KeyPointer    = "step_pointer"
	KeyMotifRule  = "requires_motif"
	KeyCreatedBy  = "created_by"
	KeyDemandeur  = "demandeur"
	KeyComment    = "comment"
	KeyMotif      = "motif"
	KeyDossierID  = "dossier_id"
	KeyReference  = "reference"
	KeyStorageKey = "storage_key"
)
