package workflow

import (
	"fmt"
)

// ChainStep is one sequential validation step of a document
type ChainStep struct {
	Order    int
	Action   Action
	Role     Role
	AltRoles []Role
	Label    string

	// Status reached once the step is approved
	Status Status

	DirectionRequired string
	DelaiMaxHeures    int
	Effects           []Effect
	Condition         Condition

	// Secondary steps are not offered as the next action
	Secondary bool
}

// Roles returns the primary and alternate roles of the step
func (s ChainStep) Roles() []Role {
	return append([]Role{s.Role}, s.AltRoles...)
}

// StateConfiguration configures transitions leaving a specific status
type StateConfiguration interface {
	// Permit allows an action to move the document to the target status
	Permit(action Action, to Status, opts ...TransitionOption) StateConfiguration
}

// Builder assembles a Definition for one document type
type Builder struct {
	docType        DocType
	entry          Status
	order          []Status
	configurations map[Status]*stateConfig
	chain          []ChainStep
	legacyChain    []ChainStep
	requiredFields []string
	validated      map[Status]bool
}

type stateConfig struct {
	fromState   Status
	transitions []Transition
}

// NewBuilder creates a builder for the given document type
func NewBuilder(docType DocType) *Builder {
	return &Builder{
		docType:        docType,
		entry:          StatusSoumis,
		configurations: make(map[Status]*stateConfig),
	}
}

// Configure returns a state configuration for the given status
func (b *Builder) Configure(status Status) StateConfiguration {
	if !status.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", status))
	}

	config, exists := b.configurations[status]
	if !exists {
		config = &stateConfig{fromState: status}
		b.configurations[status] = config
		b.order = append(b.order, status)
	}

	return config
}

// Chain sets the sequential validation steps
func (b *Builder) Chain(steps ...ChainStep) *Builder {
	b.chain = steps
	return b
}

// LegacyChain sets read-only steps shown for historical records
func (b *Builder) LegacyChain(steps ...ChainStep) *Builder {
	b.legacyChain = steps
	return b
}

// RequireFields sets the fields checked on submission
func (b *Builder) RequireFields(fields ...string) *Builder {
	b.requiredFields = fields
	return b
}

// Entry sets the status a submitted document lands in before step 1
func (b *Builder) Entry(status Status) *Builder {
	b.entry = status
	return b
}

// Validated overrides which statuses count as a validated stage
func (b *Builder) Validated(statuses ...Status) *Builder {
	b.validated = make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		b.validated[s] = true
	}
	return b
}

// Permit allows an action to move the document to the target status
func (c *stateConfig) Permit(action Action, to Status, opts ...TransitionOption) StateConfiguration {
	if !to.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", to))
	}
	if !action.IsValid() {
		panic(fmt.Sprintf("invalid action: %s", action))
	}

	t := Transition{From: c.fromState, Action: action, To: to}
	for _, opt := range opts {
		opt(&t)
	}
	c.transitions = append(c.transitions, t)

	return c
}

// Build returns an immutable Definition
func (b *Builder) Build() *Definition {
	transitions := make(map[Status][]Transition, len(b.configurations))
	for status, config := range b.configurations {
		transitions[status] = append([]Transition{}, config.transitions...)
	}

	return &Definition{
		docType:        b.docType,
		entry:          b.entry,
		order:          append([]Status{}, b.order...),
		transitions:    transitions,
		chain:          append([]ChainStep{}, b.chain...),
		legacyChain:    append([]ChainStep{}, b.legacyChain...),
		requiredFields: append([]string{}, b.requiredFields...),
		validated:      b.validated,
	}
}
