package workflow

import (
	"context"
	"fmt"
)

// Definition is the transition table of one document type
type Definition struct {
	docType        DocType
	entry          Status
	order          []Status
	transitions    map[Status][]Transition
	chain          []ChainStep
	legacyChain    []ChainStep
	requiredFields []string
	validated      map[Status]bool
}

// DocType returns the document type the definition governs
func (d *Definition) DocType() DocType {
	return d.docType
}

// Transitions returns the transitions leaving a status, in declaration order
func (d *Definition) Transitions(from Status) []Transition {
	return append([]Transition{}, d.transitions[from]...)
}

// Lookup returns the transitions for a (status, action) pair
func (d *Definition) Lookup(from Status, action Action) []Transition {
	var out []Transition
	for _, t := range d.transitions[from] {
		if t.Action == action {
			out = append(out, t)
		}
	}
	return out
}

// Select picks the first transition for the pair whose condition passes
func (d *Definition) Select(from Status, action Action, tc TransitionContext) (Transition, error) {
	candidates := d.Lookup(from, action)
	if len(candidates) == 0 {
		return Transition{}, fmt.Errorf("%w: cannot %s a %s document from status %s", ErrInvalidTransition, action, d.docType, from)
	}

	var lastErr error
	for _, t := range candidates {
		if err := t.Check(tc); err != nil {
			lastErr = err
			continue
		}
		return t, nil
	}

	return Transition{}, fmt.Errorf("%w: %s from %s: %w", ErrGuardFailed, action, from, lastErr)
}

// Statuses returns every status with outgoing transitions, in declaration order
func (d *Definition) Statuses() []Status {
	return append([]Status{}, d.order...)
}

// IsTerminal returns true when no transition leaves the status
func (d *Definition) IsTerminal(s Status) bool {
	return len(d.transitions[s]) == 0
}

// IsValidated reports whether the status means the stage is done
func (d *Definition) IsValidated(s Status) bool {
	if d.validated != nil {
		return d.validated[s]
	}
	return s.IsValidated()
}

// Chain returns the sequential validation steps
func (d *Definition) Chain() []ChainStep {
	return append([]ChainStep{}, d.chain...)
}

// LegacyChain returns the read-only historical steps
func (d *Definition) LegacyChain() []ChainStep {
	return append([]ChainStep{}, d.legacyChain...)
}

// RequiredFields returns the fields that must be filled before submission
func (d *Definition) RequiredFields() []string {
	return append([]string{}, d.requiredFields...)
}

// StepAt returns the chain step with the given order
func (d *Definition) StepAt(order int) (ChainStep, bool) {
	for _, s := range d.chain {
		if s.Order == order {
			return s, true
		}
	}
	return ChainStep{}, false
}

// StatusBeforeStep returns the status a document waits in for step n
func (d *Definition) StatusBeforeStep(n int) Status {
	return statusBeforeStep(d.entry, d.chain, n)
}

func statusBeforeStep(entry Status, chain []ChainStep, n int) Status {
	if n <= 1 || len(chain) == 0 {
		return entry
	}
	if n > len(chain) {
		return chain[len(chain)-1].Status
	}
	return chain[n-2].Status
}

// Machine returns a state machine positioned on the given status
func (d *Definition) Machine(current Status) StateMachine {
	if !current.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", current))
	}
	return &stateMachine{currentState: current, definition: d}
}

type transitionContextKey struct{}

// WithTransitionContext attaches the facts used to evaluate conditions
func WithTransitionContext(ctx context.Context, tc TransitionContext) context.Context {
	return context.WithValue(ctx, transitionContextKey{}, tc)
}

// TransitionContextFrom extracts the facts attached to ctx
func TransitionContextFrom(ctx context.Context) TransitionContext {
	tc, _ := ctx.Value(transitionContextKey{}).(TransitionContext)
	return tc
}
