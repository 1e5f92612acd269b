package entity

import (
	"time"

	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// Attachment is a file stored alongside a document
type Attachment struct {
	ID         string           `json:"id"`
	DocumentID string           `json:"document_id"`
	DocType    workflow.DocType `json:"doc_type"`
	Exercice   int              `json:"exercice"`
	FileName   string           `json:"file_name"`
	StorageKey string           `json:"storage_key"`
	Size       int64            `json:"size"`
	MimeType   string           `json:"mime_type"`
	UploadedBy string           `json:"uploaded_by"`
	CreatedAt  time.Time        `json:"created_at"`
}
