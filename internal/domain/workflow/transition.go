package workflow

import (
	"github.com/shopspring/decimal"
)

// Effect is a side effect attached to a transition
type Effect string

const (
	EffectAssignReference Effect = "assign_reference"
	EffectStampSubmitted  Effect = "stamp_submitted"
	EffectStampValidated  Effect = "stamp_validated"
	EffectStampRejected   Effect = "stamp_rejected"
	EffectStampDeferred   Effect = "stamp_deferred"
	EffectClearDeferral   Effect = "clear_deferral"
	EffectReserveCredit   Effect = "reserve_credit"
	EffectCreditCheck     Effect = "credit_check"
	EffectCreateDossier   Effect = "create_dossier"
)

// TransitionContext carries the facts conditions and resolvers look at
type TransitionContext struct {
	DocType     DocType
	From        Status
	Montant     decimal.Decimal
	ActorRoles  []Role
	CurrentStep int
	Legacy      bool
}

// Condition returns nil when the transition may proceed
type Condition func(tc TransitionContext) error

// Transition is one entry of a document transition table
type Transition struct {
	From   Status
	Action Action
	To     Status

	// Resolve overrides To when the target depends on the document
	Resolve func(tc TransitionContext) Status

	Roles                []Role
	OwnerOnly            bool
	RequiresMotif        bool
	AllowsResumptionDate bool

	// StepOrder is set when the transition approves validation step N
	StepOrder int
	// StepDecision marks reject/defer decisions taken at the current step
	StepDecision bool

	// ChecksFields makes the required fields of the document mandatory
	ChecksFields bool

	Primary   bool
	Condition Condition
	Effects   []Effect
}

// Label returns the display label of the transition
func (t Transition) Label() string {
	return t.Action.Label()
}

// Target returns the status the transition leads to
func (t Transition) Target(tc TransitionContext) Status {
	if t.Resolve != nil {
		return t.Resolve(tc)
	}
	return t.To
}

// HasEffect reports whether the transition carries the effect
func (t Transition) HasEffect(e Effect) bool {
	for _, x := range t.Effects {
		if x == e {
			return true
		}
	}
	return false
}

// Check evaluates the transition condition
func (t Transition) Check(tc TransitionContext) error {
	if t.Condition == nil {
		return nil
	}
	return t.Condition(tc)
}

// TransitionOption configures a transition in the builder
type TransitionOption func(*Transition)

// WithRoles sets the roles allowed to fire the transition
func WithRoles(roles ...Role) TransitionOption {
	return func(t *Transition) {
		t.Roles = append(t.Roles, roles...)
	}
}

// OwnerOnly restricts the transition to the document creator or an admin
func OwnerOnly() TransitionOption {
	return func(t *Transition) {
		t.OwnerOnly = true
	}
}

// RequireMotif makes a non-blank motive mandatory
func RequireMotif() TransitionOption {
	return func(t *Transition) {
		t.RequiresMotif = true
	}
}

// AllowResumptionDate accepts an optional resumption date
func AllowResumptionDate() TransitionOption {
	return func(t *Transition) {
		t.AllowsResumptionDate = true
	}
}

// ForStep records the transition as approval of validation step n
func ForStep(n int) TransitionOption {
	return func(t *Transition) {
		t.StepOrder = n
	}
}

// StepDecision records a rejected step on the current pointer
func StepDecision() TransitionOption {
	return func(t *Transition) {
		t.StepDecision = true
	}
}

// CheckRequiredFields validates the required fields before the transition
func CheckRequiredFields() TransitionOption {
	return func(t *Transition) {
		t.ChecksFields = true
	}
}

// Primary marks the transition as the recommended next action
func Primary() TransitionOption {
	return func(t *Transition) {
		t.Primary = true
	}
}

// When guards the transition with a condition
func When(c Condition) TransitionOption {
	return func(t *Transition) {
		t.Condition = c
	}
}

// WithEffects attaches side effects
func WithEffects(effects ...Effect) TransitionOption {
	return func(t *Transition) {
		t.Effects = append(t.Effects, effects...)
	}
}

// ResolveWith computes the target status from the context
func ResolveWith(fn func(tc TransitionContext) Status) TransitionOption {
	return func(t *Transition) {
		t.Resolve = fn
	}
}
