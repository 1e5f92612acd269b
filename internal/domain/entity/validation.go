package entity

import (
	"time"

	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// ValidationStepStatus is the decision recorded on a step
type ValidationStepStatus string

const (
	StepApproved ValidationStepStatus = "approved"
	StepRejected ValidationStepStatus = "rejected"
	StepPending  ValidationStepStatus = "pending"
)

// ValidationStep records one approval decision on a document
type ValidationStep struct {
	ID          int64                `json:"id"`
	DocumentID  string               `json:"document_id"`
	StepOrder   int                  `json:"step_order"`
	Role        workflow.Role        `json:"role"`
	Status      ValidationStepStatus `json:"status"`
	ValidatedBy string               `json:"validated_by,omitempty"`
	ValidatedAt *time.Time           `json:"validated_at,omitempty"`
	Comments    string               `json:"comments,omitempty"`

	// Via tells how the validator held the role: direct, admin, delegation or interim
	Via        string `json:"via,omitempty"`
	OnBehalfOf string `json:"on_behalf_of,omitempty"`
	Legacy     bool   `json:"legacy,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
