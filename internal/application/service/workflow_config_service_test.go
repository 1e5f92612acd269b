package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

func TestChainFromConfig(t *testing.T) {
	registry := workflow.NewRegistry(workflow.DefaultThresholds())
	def := &entity.WorkflowDefinition{
		EntityType: "engagement",
		Steps: []entity.WfStep{
			{StepOrder: 2, Label: "Visa CB", RoleRequired: "CB", TargetStatus: "visa_cb"},
			{StepOrder: 1, Label: "Visa SAF", RoleRequired: "SAF", TargetStatus: "visa_saf"},
			{StepOrder: 3, Label: "DG", RoleRequired: "DG", RoleAlternatif: "DAAF",
				Permissions: []entity.WfStepPermission{{ActionCode: "VALIDATE", RoleCode: "DG", IsPrimary: true}}},
		},
	}

	steps := ChainFromConfig(def, registry.DefaultChain(workflow.DocEngagement))
	require.Len(t, steps, 3)
	assert.Equal(t, workflow.RoleSAF, steps[0].Role)
	assert.Equal(t, []workflow.Effect{workflow.EffectCreditCheck}, steps[1].Effects, "credit check follows the CB role")
	assert.Equal(t, workflow.StatusValide, steps[2].Status, "last step defaults to valide")
	assert.Equal(t, []workflow.Role{workflow.RoleDAAF}, steps[2].AltRoles)
	assert.Equal(t, workflow.ActionValidate, steps[2].Action)

	sef := &entity.WorkflowDefinition{EntityType: "note_sef", Steps: []entity.WfStep{
		{StepOrder: 1, RoleRequired: "DIRECTEUR"},
		{StepOrder: 2, RoleRequired: "DG"},
	}}
	steps = ChainFromConfig(sef, registry.DefaultChain(workflow.DocNoteSEF))
	assert.Equal(t, workflow.StatusAValider, steps[0].Status)
	assert.Equal(t, []workflow.Effect{workflow.EffectCreateDossier}, steps[1].Effects, "dossier creation moves to the last step")
}

func TestWorkflowConfigService_SyncChains(t *testing.T) {
	registry := workflow.NewRegistry(workflow.DefaultThresholds())
	repo := &mockDefinitionRepo{listActiveFunc: func(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
		return []*entity.WorkflowDefinition{
			{EntityType: "note_sef", Steps: []entity.WfStep{
				{StepOrder: 1, RoleRequired: "CHEF_SERVICE"},
				{StepOrder: 2, RoleRequired: "DIRECTEUR"},
				{StepOrder: 3, RoleRequired: "DG"},
			}},
			{EntityType: "imputation", Steps: []entity.WfStep{{StepOrder: 1, RoleRequired: "CB"}}},
			{EntityType: "ordonnancement", Steps: []entity.WfStep{{StepOrder: 2, RoleRequired: "DG"}}},
			{EntityType: "facture", Steps: []entity.WfStep{{StepOrder: 1, RoleRequired: "DG"}}},
		}, nil
	}}
	svc := NewWorkflowConfigService(repo, registry, &testLogger{})

	res, err := svc.SyncChains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []workflow.DocType{workflow.DocNoteSEF}, res.Applied)
	assert.Contains(t, res.Skipped, "imputation")
	assert.Contains(t, res.Skipped, "ordonnancement", "orders must start at 1")
	assert.Contains(t, res.Skipped, "facture")

	chain, err := svc.Chain(workflow.DocNoteSEF)
	require.NoError(t, err)
	assert.Len(t, chain, 3)

	ord, err := svc.Chain(workflow.DocOrdonnancement)
	require.NoError(t, err)
	assert.Len(t, ord, 2, "the built-in chain stays in force")
}
