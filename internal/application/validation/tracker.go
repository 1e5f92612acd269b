package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/application/rbac"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// StepProgress is one slot of a document validation chain
type StepProgress struct {
	Order    int                         `json:"order"`
	Role     workflow.Role               `json:"role"`
	Roles    []workflow.Role             `json:"roles"`
	Label    string                      `json:"label"`
	Status   entity.ValidationStepStatus `json:"status"`
	Current  bool                        `json:"current"`
	ReadOnly bool                        `json:"read_only,omitempty"`
	Latest   *entity.ValidationStep      `json:"latest,omitempty"`
}

// Tracker records sequential validation decisions and moves the step pointer
type Tracker struct {
	steps    port.ValidationStepRepository
	registry *workflow.Registry
	now      func() time.Time
}

// NewTracker creates a validation step tracker
func NewTracker(steps port.ValidationStepRepository, registry *workflow.Registry) *Tracker {
	return &Tracker{steps: steps, registry: registry, now: time.Now}
}

// Pointer returns the first non-approved step of the document
func Pointer(doc *entity.Document) int {
	if doc.CurrentValidationStep < 1 {
		return 1
	}
	return doc.CurrentValidationStep
}

// Approve records approval of stepOrder and returns the new pointer.
// Only the step under the pointer can be approved.
func (t *Tracker) Approve(ctx context.Context, doc *entity.Document, stepOrder int, actorID string, d rbac.Decision, comment string) (int, error) {
	if doc.Legacy {
		return 0, fmt.Errorf("%w: legacy validation history of %s is read-only", workflow.ErrInvalidTransition, doc.ID)
	}

	pointer := Pointer(doc)
	if stepOrder != pointer {
		return 0, fmt.Errorf("%w: step %d cannot be approved while step %d is pending", workflow.ErrInvalidTransition, stepOrder, pointer)
	}

	role, err := t.stepRole(doc.DocType, stepOrder, d)
	if err != nil {
		return 0, err
	}

	now := t.now()
	step := &entity.ValidationStep{
		DocumentID:  doc.ID,
		StepOrder:   stepOrder,
		Role:        role,
		Status:      entity.StepApproved,
		ValidatedBy: actorID,
		ValidatedAt: &now,
		Comments:    comment,
		Via:         d.Via,
		OnBehalfOf:  d.GrantorID,
	}
	if err := t.steps.Create(ctx, step); err != nil {
		return 0, fmt.Errorf("failed to record validation step: %w", err)
	}

	return pointer + 1, nil
}

// Reject records a rejected decision at the current pointer. The pointer does not move.
func (t *Tracker) Reject(ctx context.Context, doc *entity.Document, actorID string, d rbac.Decision, comment string) error {
	if doc.Legacy {
		return fmt.Errorf("%w: legacy validation history of %s is read-only", workflow.ErrInvalidTransition, doc.ID)
	}

	pointer := Pointer(doc)
	role, err := t.stepRole(doc.DocType, pointer, d)
	if err != nil {
		return err
	}

	now := t.now()
	step := &entity.ValidationStep{
		DocumentID:  doc.ID,
		StepOrder:   pointer,
		Role:        role,
		Status:      entity.StepRejected,
		ValidatedBy: actorID,
		ValidatedAt: &now,
		Comments:    comment,
		Via:         d.Via,
		OnBehalfOf:  d.GrantorID,
	}
	if err := t.steps.Create(ctx, step); err != nil {
		return fmt.Errorf("failed to record rejected step: %w", err)
	}
	return nil
}

// Progress returns the chain slots of the document with their latest decision
func (t *Tracker) Progress(ctx context.Context, doc *entity.Document) ([]StepProgress, error) {
	def, err := t.registry.Definition(doc.DocType)
	if err != nil {
		return nil, err
	}

	chain := def.Chain()
	if doc.Legacy {
		chain = def.LegacyChain()
	}

	records, err := t.steps.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load validation steps: %w", err)
	}

	latest := make(map[int]*entity.ValidationStep)
	for _, r := range records {
		latest[r.StepOrder] = r
	}

	pointer := Pointer(doc)
	out := make([]StepProgress, 0, len(chain))
	for _, s := range chain {
		p := StepProgress{
			Order:    s.Order,
			Role:     s.Role,
			Roles:    s.Roles(),
			Label:    s.Label,
			Status:   entity.StepPending,
			ReadOnly: doc.Legacy,
			Latest:   latest[s.Order],
		}
		if p.Latest != nil {
			p.Status = p.Latest.Status
		}
		if !doc.Legacy && s.Order == pointer && !def.IsTerminal(doc.Statut) {
			p.Current = true
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *Tracker) stepRole(docType workflow.DocType, order int, d rbac.Decision) (workflow.Role, error) {
	def, err := t.registry.Definition(docType)
	if err != nil {
		return "", err
	}
	step, ok := def.StepAt(order)
	if !ok {
		return "", fmt.Errorf("%w: %s has no validation step %d", workflow.ErrInvalidTransition, docType, order)
	}
	if d.Role != "" && workflow.ContainsRole(step.Roles(), d.Role) {
		return d.Role, nil
	}
	return step.Role, nil
}
