package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// Capability is what an actor tries to do: act on a document type with one of the roles
type Capability struct {
	DocType workflow.DocType
	Roles   []workflow.Role
}

// Decision tells whether a capability is held and how
type Decision struct {
	Allowed   bool          `json:"allowed"`
	Via       string        `json:"via,omitempty"`
	GrantorID string        `json:"grantor_id,omitempty"`
	Role      workflow.Role `json:"role,omitempty"`
}

// Resolver answers role and capability questions for a user
type Resolver struct {
	identity    port.IdentityProvider
	delegations port.DelegationProvider
	now         func() time.Time
}

// NewResolver creates a resolver. delegations may be nil.
func NewResolver(identity port.IdentityProvider, delegations port.DelegationProvider) *Resolver {
	return &Resolver{
		identity:    identity,
		delegations: delegations,
		now:         time.Now,
	}
}

// Roles returns the roles held directly by the user
func (r *Resolver) Roles(ctx context.Context, userID string) ([]workflow.Role, error) {
	if userID == "" {
		return nil, workflow.ErrNotAuthenticated
	}
	roles, err := r.identity.GetUserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles of %s: %w", userID, err)
	}
	return roles, nil
}

// HasRole reports whether the user holds the role directly
func (r *Resolver) HasRole(ctx context.Context, userID string, role workflow.Role) (bool, error) {
	roles, err := r.Roles(ctx, userID)
	if err != nil {
		return false, err
	}
	return workflow.ContainsRole(roles, role), nil
}

// HasAnyRole reports whether the user holds one of the roles directly
func (r *Resolver) HasAnyRole(ctx context.Context, userID string, roles ...workflow.Role) (bool, error) {
	held, err := r.Roles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if workflow.ContainsRole(held, role) {
			return true, nil
		}
	}
	return false, nil
}

// IsAdmin reports whether the user is an administrator
func (r *Resolver) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return r.HasRole(ctx, userID, workflow.RoleAdmin)
}

// CanPerform checks direct membership, then admin override, then delegations.
// A missing match is not an error.
func (r *Resolver) CanPerform(ctx context.Context, userID string, c Capability) (Decision, error) {
	held, err := r.Roles(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	if len(c.Roles) == 0 {
		return Decision{Allowed: true, Via: entity.ViaDirect}, nil
	}

	for _, role := range c.Roles {
		if workflow.ContainsRole(held, role) {
			return Decision{Allowed: true, Via: entity.ViaDirect, Role: role}, nil
		}
	}

	if workflow.ContainsRole(held, workflow.RoleAdmin) {
		return Decision{Allowed: true, Via: entity.ViaAdmin, Role: workflow.RoleAdmin}, nil
	}

	if r.delegations == nil {
		return Decision{}, nil
	}

	delegations, err := r.delegations.GetActiveDelegations(ctx, userID, c.DocType, r.now())
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load delegations of %s: %w", userID, err)
	}

	for _, d := range delegations {
		if !d.IsActiveAt(r.now()) || !d.Covers(c.DocType) {
			continue
		}
		if workflow.ContainsRole(c.Roles, d.Role) {
			via := entity.ViaDelegation
			if d.Kind == entity.DelegationKindInterim {
				via = entity.ViaInterim
			}
			return Decision{Allowed: true, Via: via, GrantorID: d.GrantorID, Role: d.Role}, nil
		}
	}

	return Decision{}, nil
}

// EffectiveRoles returns direct roles plus roles held through active delegations
func (r *Resolver) EffectiveRoles(ctx context.Context, userID string, docType workflow.DocType) ([]workflow.Role, error) {
	held, err := r.Roles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if r.delegations == nil {
		return held, nil
	}

	delegations, err := r.delegations.GetActiveDelegations(ctx, userID, docType, r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load delegations of %s: %w", userID, err)
	}

	out := append([]workflow.Role{}, held...)
	for _, d := range delegations {
		if d.IsActiveAt(r.now()) && d.Covers(docType) && !workflow.ContainsRole(out, d.Role) {
			out = append(out, d.Role)
		}
	}
	return out, nil
}
