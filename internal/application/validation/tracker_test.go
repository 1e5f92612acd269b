package validation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/sygfp/internal/application/rbac"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

type mockStepRepo struct {
	mu          sync.Mutex
	steps       []*entity.ValidationStep
	errOnCreate error
}

func (m *mockStepRepo) Create(ctx context.Context, step *entity.ValidationStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errOnCreate != nil {
		return m.errOnCreate
	}
	step.ID = int64(len(m.steps) + 1)
	m.steps = append(m.steps, step)
	return nil
}

func (m *mockStepRepo) ListByDocument(ctx context.Context, documentID string) ([]*entity.ValidationStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ValidationStep
	for _, s := range m.steps {
		if s.DocumentID == documentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func newTracker() (*Tracker, *mockStepRepo) {
	repo := &mockStepRepo{}
	return NewTracker(repo, workflow.NewRegistry(workflow.DefaultThresholds())), repo
}

func TestTracker_ApproveIsMonotonic(t *testing.T) {
	tracker, repo := newTracker()
	doc := &entity.Document{ID: "eng-1", DocType: workflow.DocEngagement, CurrentValidationStep: 1}
	ctx := context.Background()
	direct := rbac.Decision{Allowed: true, Via: entity.ViaDirect}

	_, err := tracker.Approve(ctx, doc, 2, "cb", direct, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition, "step 2 before step 1")
	assert.Empty(t, repo.steps)

	previous := doc.CurrentValidationStep
	for order := 1; order <= 4; order++ {
		next, err := tracker.Approve(ctx, doc, order, "user", direct, "ok")
		require.NoError(t, err)
		assert.Greater(t, next, previous)
		previous = next
		doc.CurrentValidationStep = next
	}
	assert.Equal(t, 5, doc.CurrentValidationStep)
	assert.Len(t, repo.steps, 4)
	assert.Equal(t, workflow.RoleCB, repo.steps[1].Role)

	_, err = tracker.Approve(ctx, doc, 3, "daf", direct, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition, "going back is refused")
}

func TestTracker_ApproveRecordsDelegation(t *testing.T) {
	tracker, repo := newTracker()
	doc := &entity.Document{ID: "sef-1", DocType: workflow.DocNoteSEF}

	_, err := tracker.Approve(context.Background(), doc, 1, "interim", rbac.Decision{
		Allowed: true, Via: entity.ViaInterim, GrantorID: "dg", Role: workflow.RoleDG,
	}, "")
	require.NoError(t, err)

	require.Len(t, repo.steps, 1)
	assert.Equal(t, entity.ViaInterim, repo.steps[0].Via)
	assert.Equal(t, "dg", repo.steps[0].OnBehalfOf)
	assert.Equal(t, entity.StepApproved, repo.steps[0].Status)
}

func TestTracker_Reject(t *testing.T) {
	tracker, repo := newTracker()
	doc := &entity.Document{ID: "eb-1", DocType: workflow.DocExpressionBesoin, CurrentValidationStep: 2}

	require.NoError(t, tracker.Reject(context.Background(), doc, "dg", rbac.Decision{Via: entity.ViaDirect}, "hors budget"))

	require.Len(t, repo.steps, 1)
	assert.Equal(t, 2, repo.steps[0].StepOrder)
	assert.Equal(t, entity.StepRejected, repo.steps[0].Status)
	assert.Equal(t, workflow.RoleDG, repo.steps[0].Role)
}

func TestTracker_LegacyIsReadOnly(t *testing.T) {
	tracker, repo := newTracker()
	doc := &entity.Document{ID: "eb-old", DocType: workflow.DocExpressionBesoin, Legacy: true, Statut: workflow.StatusValide}
	repo.steps = []*entity.ValidationStep{
		{DocumentID: "eb-old", StepOrder: 1, Role: workflow.RoleChefService, Status: entity.StepApproved, Legacy: true},
		{DocumentID: "eb-old", StepOrder: 2, Role: workflow.RoleDirecteur, Status: entity.StepApproved, Legacy: true},
	}

	_, err := tracker.Approve(context.Background(), doc, 1, "cb", rbac.Decision{}, "")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.ErrorIs(t, tracker.Reject(context.Background(), doc, "cb", rbac.Decision{}, "x"), workflow.ErrInvalidTransition)

	progress, err := tracker.Progress(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, progress, 3)
	for _, p := range progress {
		assert.True(t, p.ReadOnly)
		assert.False(t, p.Current)
	}
	assert.Equal(t, entity.StepApproved, progress[1].Status)
	assert.Equal(t, entity.StepPending, progress[2].Status)
}

func TestTracker_Progress(t *testing.T) {
	tracker, repo := newTracker()
	doc := &entity.Document{ID: "eng-1", DocType: workflow.DocEngagement, Statut: workflow.StatusVisaSAF, CurrentValidationStep: 2}
	repo.steps = []*entity.ValidationStep{
		{DocumentID: "eng-1", StepOrder: 1, Role: workflow.RoleSAF, Status: entity.StepApproved},
	}

	progress, err := tracker.Progress(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, progress, 4)
	assert.Equal(t, entity.StepApproved, progress[0].Status)
	assert.True(t, progress[1].Current)
	assert.Equal(t, "Visa CB", progress[1].Label)
	assert.Equal(t, []workflow.Role{workflow.RoleDAF, workflow.RoleDAAF}, progress[2].Roles)
}

func TestTracker_RepositoryError(t *testing.T) {
	tracker, repo := newTracker()
	repo.errOnCreate = errors.New("disk full")

	_, err := tracker.Approve(context.Background(), &entity.Document{ID: "x", DocType: workflow.DocNoteSEF}, 1, "dg", rbac.Decision{}, "")
	assert.Error(t, err)
}
