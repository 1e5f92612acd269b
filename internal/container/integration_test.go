package container

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appwf "github.com/garyjia/sygfp/internal/application/workflow"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

func TestNoteSEFLifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Close() })

	repos := c.Repositories()
	require.NoError(t, repos.User.Create(ctx,
		&entity.User{ID: "u-agent", Email: "agent@arti.ci", FullName: "Agent", Direction: "DAAF", Active: true},
		workflow.RoleAgent))
	require.NoError(t, repos.User.Create(ctx,
		&entity.User{ID: "u-dg", Email: "dg@arti.ci", FullName: "DG", Active: true},
		workflow.RoleDG))

	engine := c.WorkflowEngine()
	services := c.Services()
	souhaitee := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	doc, err := engine.Create(ctx, "u-agent", appwf.Draft{
		DocType:       workflow.DocNoteSEF,
		Exercice:      2025,
		Objet:         "Mission de supervision à Bouaké",
		Justification: "Contrôle des chantiers régionaux",
		Urgence:       "normale",
		Demandeur:     "u-agent",
		Direction:     "DAAF",
		DateSouhaitee: &souhaitee,
	})
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusBrouillon, doc.Statut)

	t.Run("only the owner submits", func(t *testing.T) {
		_, err := engine.Submit(ctx, doc.ID, "u-dg")
		assert.True(t, errors.Is(err, workflow.ErrNotAuthorized), "%v", err)
	})

	out, err := engine.Submit(ctx, doc.ID, "u-agent")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusSoumis, out.Document.Statut)
	assert.NotEmpty(t, out.Document.Reference)

	// Notifications are written by the async subscriber
	require.Eventually(t, func() bool {
		n, err := services.Notification.CountUnread(ctx, "u-dg")
		return err == nil && n > 0
	}, 2*time.Second, 20*time.Millisecond)

	t.Run("the creator cannot validate", func(t *testing.T) {
		_, err := engine.Validate(ctx, doc.ID, "u-agent", "")
		assert.True(t, errors.Is(err, workflow.ErrNotAuthorized), "%v", err)
	})

	out, err = engine.Validate(ctx, doc.ID, "u-dg", "Accord")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusValide, out.Document.Statut)
	assert.Empty(t, out.Warnings)

	stored, err := engine.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.DossierID, "validating a note SEF opens the dossier")

	dossier, err := services.Dossier.GetDossier(ctx, stored.DossierID)
	require.NoError(t, err)
	assert.Equal(t, 2025, dossier.Exercice)

	sc, err := services.Spending.Timeline(ctx, dossier.Numero, "u-agent")
	require.NoError(t, err)
	require.Len(t, sc.Stages, len(entity.SpendingStages))
	assert.Equal(t, entity.StepStatusCompleted, sc.Stages[0].Status)

	history, err := engine.History(ctx, doc.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(history), 2)
	last := history[len(history)-1]
	assert.Equal(t, workflow.StatusValide, last.NewStatut)
	assert.Equal(t, "u-dg", last.PerformedBy)

	t.Run("a validated note is final", func(t *testing.T) {
		_, err := engine.Validate(ctx, doc.ID, "u-dg", "")
		assert.Error(t, err)
	})

	require.Eventually(t, func() bool {
		n, err := services.Notification.CountUnread(ctx, "u-agent")
		return err == nil && n > 0
	}, 2*time.Second, 20*time.Millisecond)
}
