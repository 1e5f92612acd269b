package entity

// Dossier global status constants
const (
	DossierStatusEnCours = "en_cours"
	DossierStatusTermine = "termine"
	DossierStatusAnnule  = "annule"
)

// Dossier type constants
const (
	DossierTypeSEF    = "SEF"
	DossierTypeAEF    = "AEF"
	DossierTypeDirect = "DIRECT"
)

// Notification type constants
const (
	NotificationTypeValidation = "validation"
	NotificationTypeDecision   = "decision"
	NotificationTypeInfo       = "info"
)

// Validation provenance constants
const (
	ViaDirect     = "direct"
	ViaAdmin      = "admin"
	ViaDelegation = "delegation"
	ViaInterim    = "interim"
)
