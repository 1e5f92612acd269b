package entity

import "time"

// WorkflowDefinition is an admin-configured validation chain for one entity type
type WorkflowDefinition struct {
	ID          int64     `json:"id"`
	EntityType  string    `json:"entity_type"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	Steps       []WfStep  `json:"steps"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WfStep is one ordered step of a configured workflow
type WfStep struct {
	ID                int64              `json:"id"`
	WorkflowID        int64              `json:"workflow_id"`
	StepOrder         int                `json:"step_order"`
	Label             string             `json:"label"`
	RoleRequired      string             `json:"role_required"`
	RoleAlternatif    string             `json:"role_alternatif,omitempty"`
	DirectionRequired string             `json:"direction_required,omitempty"`
	DelaiMaxHeures    int                `json:"delai_max_heures,omitempty"`
	TargetStatus      string             `json:"target_status,omitempty"`
	Permissions       []WfStepPermission `json:"permissions,omitempty"`
}

// WfStepPermission lets a role run an action on a step
type WfStepPermission struct {
	StepID     int64  `json:"step_id"`
	ActionCode string `json:"action_code"`
	RoleCode   string `json:"role_code"`
	IsPrimary  bool   `json:"is_primary"`
}

// WfRole is a role known to the workflow configuration
type WfRole struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// WfService is an organizational unit
type WfService struct {
	Code      string `json:"code"`
	Label     string `json:"label"`
	Direction string `json:"direction,omitempty"`
}

// WfAction is a reusable action of the catalog
type WfAction struct {
	Code                string `json:"code"`
	Label               string `json:"label"`
	RequiresMotif       bool   `json:"requires_motif"`
	RequiresDateReprise bool   `json:"requires_date_reprise"`
	IsTerminal          bool   `json:"is_terminal"`
}

// PrimaryAction returns the primary action configured for a step, if any
func (s *WfStep) PrimaryAction() (string, bool) {
	for _, p := range s.Permissions {
		if p.IsPrimary {
			return p.ActionCode, true
		}
	}
	return "", false
}
