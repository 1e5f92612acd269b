package entity

import (
	"time"

	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// User is an application account
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Direction  string    `json:"direction,omitempty"`
	LarkOpenID string    `json:"lark_open_id,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// DelegationKind distinguishes a delegation from an interim
type DelegationKind string

const (
	DelegationKindDelegation DelegationKind = "delegation"
	DelegationKindInterim    DelegationKind = "interim"
)

// Delegation grants a user the validation authority of another user for a period
type Delegation struct {
	ID         int64            `json:"id"`
	GrantorID  string           `json:"grantor_id"`
	DelegateID string           `json:"delegate_id"`
	Kind       DelegationKind   `json:"kind"`
	Role       workflow.Role    `json:"role"`
	DocType    workflow.DocType `json:"doc_type,omitempty"`
	StartsAt   time.Time        `json:"starts_at"`
	EndsAt     time.Time        `json:"ends_at"`
	Active     bool             `json:"active"`
	Motif      string           `json:"motif,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// IsActiveAt returns true if the delegation is in force at t
func (d *Delegation) IsActiveAt(t time.Time) bool {
	return d.Active && !t.Before(d.StartsAt) && t.Before(d.EndsAt)
}

// Covers returns true if the delegation applies to the document type.
// An empty scope covers every type.
func (d *Delegation) Covers(docType workflow.DocType) bool {
	return d.DocType == "" || d.DocType == docType
}
