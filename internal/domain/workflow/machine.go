package workflow

import "context"

// StateMachine tracks the status of one document and validates transitions
type StateMachine interface {
	// State returns the current status
	State() Status

	// CanFire returns true if the action is declared for the current status
	CanFire(action Action) bool

	// Fire applies the action, returning the transition taken
	Fire(ctx context.Context, action Action) (Transition, error)

	// PermittedActions returns the actions declared for the current status
	PermittedActions() []Action
}

type stateMachine struct {
	currentState Status
	definition   *Definition
}

func (m *stateMachine) State() Status {
	return m.currentState
}

// CanFire ignores conditions, which need a TransitionContext
func (m *stateMachine) CanFire(action Action) bool {
	return len(m.definition.Lookup(m.currentState, action)) > 0
}

func (m *stateMachine) Fire(ctx context.Context, action Action) (Transition, error) {
	tc := TransitionContextFrom(ctx)
	tc.DocType = m.definition.docType
	tc.From = m.currentState

	t, err := m.definition.Select(m.currentState, action, tc)
	if err != nil {
		return Transition{}, err
	}

	m.currentState = t.Target(tc)
	return t, nil
}

func (m *stateMachine) PermittedActions() []Action {
	seen := make(map[Action]bool)
	var actions []Action
	for _, t := range m.definition.transitions[m.currentState] {
		if !seen[t.Action] {
			seen[t.Action] = true
			actions = append(actions, t.Action)
		}
	}
	return actions
}
