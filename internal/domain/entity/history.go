package entity

import (
	"time"

	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// HistoryEntry is one immutable line of a document audit trail
type HistoryEntry struct {
	ID          int64                  `json:"id"`
	DocumentID  string                 `json:"document_id"`
	DocType     workflow.DocType       `json:"doc_type"`
	Action      workflow.HistoryAction `json:"action"`
	OldStatut   workflow.Status        `json:"old_statut,omitempty"`
	NewStatut   workflow.Status        `json:"new_statut,omitempty"`
	PerformedBy string                 `json:"performed_by"`
	PerformedAt time.Time              `json:"performed_at"`
	Commentaire string                 `json:"commentaire,omitempty"`
}

// ChangesStatus reports whether the entry records a status change
func (h *HistoryEntry) ChangesStatus() bool {
	return h.OldStatut != h.NewStatut
}
