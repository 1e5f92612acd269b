package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// ChainSyncResult reports what a configuration sync applied
type ChainSyncResult struct {
	Applied []workflow.DocType `json:"applied"`
	Skipped map[string]string  `json:"skipped,omitempty"`
}

// WorkflowConfigService syncs admin-configured validation chains into the registry
type WorkflowConfigService interface {
	// SyncChains overrides the chain of every active configurable definition.
	// Invalid definitions are skipped and reported, the built-in chain stays in force.
	SyncChains(ctx context.Context) (*ChainSyncResult, error)

	// Chain returns the chain in force for a document type
	Chain(docType workflow.DocType) ([]workflow.ChainStep, error)
}

type workflowConfigServiceImpl struct {
	definitionRepo port.WorkflowDefinitionRepository
	registry       *workflow.Registry
	logger         Logger
}

// NewWorkflowConfigService creates a new WorkflowConfigService
func NewWorkflowConfigService(definitionRepo port.WorkflowDefinitionRepository, registry *workflow.Registry, logger Logger) WorkflowConfigService {
	return &workflowConfigServiceImpl{
		definitionRepo: definitionRepo,
		registry:       registry,
		logger:         logger,
	}
}

func (s *workflowConfigServiceImpl) SyncChains(ctx context.Context) (*ChainSyncResult, error) {
	defs, err := s.definitionRepo.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to list workflow definitions", "error", err)
		return nil, fmt.Errorf("list workflow definitions: %w", err)
	}

	result := &ChainSyncResult{Skipped: map[string]string{}}
	for _, def := range defs {
		docType, ok := workflow.ParseDocType(def.EntityType)
		if !ok {
			result.Skipped[def.EntityType] = "unknown entity type"
			continue
		}
		if !s.registry.Configurable(docType) {
			result.Skipped[def.EntityType] = "chain is not configurable"
			continue
		}

		steps := ChainFromConfig(def, s.registry.DefaultChain(docType))
		if err := s.registry.OverrideChain(docType, steps); err != nil {
			s.logger.Error("Rejected workflow definition", "error", err, "entity_type", def.EntityType, "workflow_id", def.ID)
			result.Skipped[def.EntityType] = err.Error()
			continue
		}
		result.Applied = append(result.Applied, docType)
	}

	s.logger.Info("Workflow chains synced", "applied", len(result.Applied), "skipped", len(result.Skipped))
	return result, nil
}

func (s *workflowConfigServiceImpl) Chain(docType workflow.DocType) ([]workflow.ChainStep, error) {
	def, err := s.registry.Definition(docType)
	if err != nil {
		return nil, err
	}
	return def.Chain(), nil
}

// ChainFromConfig converts configured steps into chain steps. Effects of the
// built-in chain follow their role, and the effects of the built-in last step
// move to the configured last step.
func ChainFromConfig(def *entity.WorkflowDefinition, builtin []workflow.ChainStep) []workflow.ChainStep {
	cfg := append([]entity.WfStep{}, def.Steps...)
	sort.SliceStable(cfg, func(i, j int) bool { return cfg[i].StepOrder < cfg[j].StepOrder })

	effectsByRole := make(map[workflow.Role][]workflow.Effect)
	var lastEffects []workflow.Effect
	for i, b := range builtin {
		if i == len(builtin)-1 {
			lastEffects = b.Effects
			continue
		}
		effectsByRole[b.Role] = append(effectsByRole[b.Role], b.Effects...)
	}

	steps := make([]workflow.ChainStep, 0, len(cfg))
	for i, c := range cfg {
		step := workflow.ChainStep{
			Order:             c.StepOrder,
			Role:              workflow.Role(c.RoleRequired),
			Label:             c.Label,
			Status:            workflow.Status(c.TargetStatus),
			DirectionRequired: c.DirectionRequired,
			DelaiMaxHeures:    c.DelaiMaxHeures,
			Effects:           append([]workflow.Effect{}, effectsByRole[workflow.Role(c.RoleRequired)]...),
		}
		if c.RoleAlternatif != "" {
			step.AltRoles = []workflow.Role{workflow.Role(c.RoleAlternatif)}
		}
		if code, ok := c.PrimaryAction(); ok {
			if a := workflow.Action(code); a.IsValid() && a != workflow.ActionReject && a != workflow.ActionDefer {
				step.Action = a
			}
		}

		last := i == len(cfg)-1
		if step.Status == "" {
			step.Status = workflow.StatusAValider
			if last {
				step.Status = workflow.StatusValide
			}
		}
		if last {
			step.Effects = append(step.Effects, lastEffects...)
		}
		steps = append(steps, step)
	}
	return steps
}
