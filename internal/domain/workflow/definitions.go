package workflow

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Thresholds holds the amounts that switch workflow branches
type Thresholds struct {
	// MarcheRequired is the amount from which a procurement procedure is mandatory
	MarcheRequired decimal.Decimal
	// DGValidation is the amount from which a liquidation goes to the DG
	DGValidation decimal.Decimal
}

// DefaultThresholds returns the thresholds in FCFA
func DefaultThresholds() Thresholds {
	return Thresholds{
		MarcheRequired: decimal.NewFromInt(5_000_000),
		DGValidation:   decimal.NewFromInt(50_000_000),
	}
}

type definitionFactory func(th Thresholds, chain []ChainStep) *Definition

type builtin struct {
	factory      definitionFactory
	chain        []ChainStep
	configurable bool
}

var builtins = map[DocType]builtin{
	DocNoteSEF: {
		factory: noteSEFDefinition,
		chain: []ChainStep{
			{Order: 1, Role: RoleDG, Label: "Validation DG", Status: StatusValide, Effects: []Effect{EffectCreateDossier}},
		},
		configurable: true,
	},
	DocNoteAEF: {
		factory: noteAEFDefinition,
		chain: []ChainStep{
			{Order: 1, Role: RoleDG, AltRoles: []Role{RoleDirecteur}, Label: "Validation", Status: StatusValide},
		},
		configurable: true,
	},
	DocImputation: {
		factory: imputationDefinition,
		chain: []ChainStep{
			{Order: 1, Action: ActionImpute, Role: RoleCB, Label: "Imputation CB", Status: StatusImpute},
		},
	},
	DocExpressionBesoin: {
		factory: expressionBesoinDefinition,
		chain: []ChainStep{
			{Order: 1, Role: RoleCB, Label: "Vérification CB", Status: StatusVerifie},
			{Order: 2, Role: RoleDG, Label: "Validation DG", Status: StatusValide},
		},
		configurable: true,
	},
	DocMarche: {
		factory: marcheDefinition,
	},
	DocEngagement: {
		factory: engagementDefinition,
		chain: []ChainStep{
			{Order: 1, Role: RoleSAF, Label: "Visa SAF", Status: StatusVisaSAF},
			{Order: 2, Role: RoleCB, Label: "Visa CB", Status: StatusVisaCB, Effects: []Effect{EffectCreditCheck}},
			{Order: 3, Role: RoleDAF, AltRoles: []Role{RoleDAAF}, Label: "Visa DAF", Status: StatusVisaDAAF},
			{Order: 4, Role: RoleDG, Label: "Validation DG", Status: StatusValide},
		},
		configurable: true,
	},
	DocLiquidation: {
		factory: liquidationDefinition,
		chain: []ChainStep{
			{Order: 1, Role: RoleSDCT, AltRoles: []Role{RoleDAAF, RoleDG}, Label: "Validation", Status: StatusValide},
		},
	},
	DocOrdonnancement: {
		factory: ordonnancementDefinition,
		chain: []ChainStep{
			{Order: 1, Action: ActionPrepareSign, Role: RoleDAAF, Label: "Préparation signature", Status: StatusEnSignature},
			{Order: 2, Action: ActionSign, Role: RoleDG, Label: "Signature DG", Status: StatusSigne},
		},
		configurable: true,
	},
	DocReglement: {
		factory: reglementDefinition,
		chain: []ChainStep{
			{Order: 1, Action: ActionPay, Role: RoleTresorerie, AltRoles: []Role{RoleAgentComptable}, Label: "Paiement", Status: StatusPaye},
		},
		configurable: true,
	},
}

// legacyExpressionBesoinChain is the former three-step hierarchy kept for display
var legacyExpressionBesoinChain = []ChainStep{
	{Order: 1, Role: RoleChefService, Label: "Chef de service", Status: StatusSoumis},
	{Order: 2, Role: RoleDirecteur, Label: "Directeur", Status: StatusVerifie},
	{Order: 3, Role: RoleCB, Label: "Contrôle budgétaire", Status: StatusValide},
}

// atStep guards a step rule on the validation pointer
func atStep(order int, extra Condition) Condition {
	return func(tc TransitionContext) error {
		current := tc.CurrentStep
		if current == 0 {
			current = 1
		}
		if current != order {
			return fmt.Errorf("%w: step %d is pending, not step %d", ErrInvalidTransition, current, order)
		}
		if extra != nil {
			return extra(tc)
		}
		return nil
	}
}

// stepRules declares the approve, reject and defer rules of one chain step
func stepRules(b *Builder, from Status, step ChainStep, last bool) {
	action := step.Action
	if action == "" {
		action = ActionValidate
	}

	effects := append([]Effect{}, step.Effects...)
	if last {
		effects = append(effects, EffectStampValidated)
	}

	approve := []TransitionOption{
		WithRoles(step.Roles()...),
		ForStep(step.Order),
		When(atStep(step.Order, step.Condition)),
		WithEffects(effects...),
	}
	if !step.Secondary {
		approve = append(approve, Primary())
	}

	b.Configure(from).
		Permit(action, step.Status, approve...).
		Permit(ActionReject, StatusRejete,
			WithRoles(step.Roles()...), RequireMotif(), StepDecision(),
			When(atStep(step.Order, nil)), WithEffects(EffectStampRejected)).
		Permit(ActionDefer, StatusDiffere,
			WithRoles(step.Roles()...), RequireMotif(), AllowResumptionDate(), StepDecision(),
			When(atStep(step.Order, nil)), WithEffects(EffectStampDeferred))
}

// chainRules compiles an ordered validation chain into rules
func chainRules(b *Builder, entry Status, chain []ChainStep) {
	for i, step := range chain {
		stepRules(b, statusBeforeStep(entry, chain, step.Order), step, i == len(chain)-1)
	}
}

// commonRules declares submit, resubmit and revise for owner-driven documents
func commonRules(b *Builder, entry Status, chain []ChainStep) {
	resume := func(tc TransitionContext) Status {
		return statusBeforeStep(entry, chain, tc.CurrentStep)
	}

	b.Configure(StatusBrouillon).
		Permit(ActionSubmit, entry, OwnerOnly(), Primary(), CheckRequiredFields(), ResolveWith(resume),
			WithEffects(EffectAssignReference, EffectStampSubmitted))
	b.Configure(StatusDiffere).
		Permit(ActionResubmit, entry, OwnerOnly(), Primary(), ResolveWith(resume),
			WithEffects(EffectClearDeferral, EffectStampSubmitted))
	b.Configure(StatusRejete).
		Permit(ActionRevise, StatusBrouillon, OwnerOnly())
}

func noteSEFDefinition(_ Thresholds, chain []ChainStep) *Definition {
	b := NewBuilder(DocNoteSEF).
		Chain(chain...).
		RequireFields("objet", "direction", "demandeur", "urgence", "justification", "date_souhaitee")
	commonRules(b, StatusSoumis, chain)
	chainRules(b, StatusSoumis, chain)
	return b.Build()
}

func noteAEFDefinition(_ Thresholds, chain []ChainStep) *Definition {
	b := NewBuilder(DocNoteAEF).
		Chain(chain...).
		RequireFields("objet", "direction", "montant")
	commonRules(b, StatusSoumis, chain)

	b.Configure(StatusSoumis).
		Permit(ActionForwardDir, StatusAValider, WithRoles(RoleChefService))
	chainRules(b, StatusSoumis, chain)
	if len(chain) == 1 {
		stepRules(b, StatusAValider, chain[0], true)
	}
	return b.Build()
}

func imputationDefinition(_ Thresholds, chain []ChainStep) *Definition {
	b := NewBuilder(DocImputation).
		Entry(StatusBrouillon).
		Chain(chain...).
		RequireFields("budget_line_id", "montant")

	b.Configure(StatusBrouillon).
		Permit(ActionImpute, StatusImpute,
			WithRoles(RoleCB), ForStep(1), Primary(), CheckRequiredFields(),
			WithEffects(EffectAssignReference, EffectReserveCredit, EffectStampValidated)).
		Permit(ActionReject, StatusRejete,
			WithRoles(RoleCB), RequireMotif(), StepDecision(), WithEffects(EffectStampRejected))
	b.Configure(StatusRejete).
		Permit(ActionRevise, StatusBrouillon, OwnerOnly())
	return b.Build()
}

func expressionBesoinDefinition(_ Thresholds, chain []ChainStep) *Definition {
	b := NewBuilder(DocExpressionBesoin).
		Chain(chain...).
		LegacyChain(legacyExpressionBesoinChain...).
		RequireFields("objet", "direction", "liste_articles")
	commonRules(b, StatusSoumis, chain)
	chainRules(b, StatusSoumis, chain)

	b.Configure(StatusValide).
		Permit(ActionSatisfy, StatusSatisfaite, WithRoles(RoleDAAF), Primary())
	return b.Build()
}

func marcheDefinition(_ Thresholds, _ []ChainStep) *Definition {
	b := NewBuilder(DocMarche).
		Entry(StatusBrouillon).
		RequireFields("objet", "montant").
		Validated(StatusApprouve, StatusSigne)

	daaf := WithRoles(RoleDAAF)
	commission := WithRoles(RoleDAAF, RoleCommissionMarches)
	dg := WithRoles(RoleDG)

	b.Configure(StatusBrouillon).
		Permit(ActionPublish, StatusPublie, daaf, Primary(), CheckRequiredFields(),
			WithEffects(EffectAssignReference, EffectStampSubmitted)).
		Permit(ActionCancel, StatusAnnule, daaf, RequireMotif())
	b.Configure(StatusPublie).
		Permit(ActionCloseBids, StatusCloture, daaf, Primary()).
		Permit(ActionCancel, StatusAnnule, daaf, RequireMotif())
	b.Configure(StatusCloture).
		Permit(ActionStartEvaluation, StatusEnEvaluation, commission, Primary())
	b.Configure(StatusEnEvaluation).
		Permit(ActionAttribute, StatusAttribue, commission, Primary())
	b.Configure(StatusAttribue).
		Permit(ActionApproveAttribution, StatusApprouve, dg, Primary(), WithEffects(EffectStampValidated)).
		Permit(ActionRejectAttribution, StatusEnEvaluation, dg, RequireMotif())
	b.Configure(StatusApprouve).
		Permit(ActionSignContract, StatusSigne, dg, Primary())
	return b.Build()
}

func engagementDefinition(_ Thresholds, chain []ChainStep) *Definition {
	b := NewBuilder(DocEngagement).
		Chain(chain...).
		RequireFields("objet", "montant", "budget_line_id")
	commonRules(b, StatusSoumis, chain)
	chainRules(b, StatusSoumis, chain)
	return b.Build()
}

func liquidationDefinition(th Thresholds, chain []ChainStep) *Definition {
	b := NewBuilder(DocLiquidation).
		Chain(chain...).
		RequireFields("montant")
	commonRules(b, StatusSoumis, chain)

	below := func(tc TransitionContext) error {
		if tc.Montant.GreaterThanOrEqual(th.DGValidation) {
			return fmt.Errorf("montant %s requires DG validation", tc.Montant)
		}
		return nil
	}
	atOrAbove := func(tc TransitionContext) error {
		if tc.Montant.LessThan(th.DGValidation) {
			return fmt.Errorf("montant %s is below the DG threshold", tc.Montant)
		}
		return nil
	}

	validators := WithRoles(RoleSDCT, RoleDAAF, RoleDG)
	b.Configure(StatusSoumis).
		Permit(ActionValidate, StatusValide, validators, ForStep(1), Primary(), When(below),
			WithEffects(EffectStampValidated)).
		Permit(ActionForwardDG, StatusEnValidationDG, WithRoles(RoleSDCT, RoleDAAF), Primary(), When(atOrAbove)).
		Permit(ActionReject, StatusRejete, validators, RequireMotif(), StepDecision(), WithEffects(EffectStampRejected)).
		Permit(ActionDefer, StatusDiffere, validators, RequireMotif(), AllowResumptionDate(), StepDecision(),
			WithEffects(EffectStampDeferred))

	dg := WithRoles(RoleDG)
	b.Configure(StatusEnValidationDG).
		Permit(ActionValidateDG, StatusValide, dg, ForStep(1), Primary(), WithEffects(EffectStampValidated)).
		Permit(ActionReject, StatusRejete, dg, RequireMotif(), StepDecision(), WithEffects(EffectStampRejected)).
		Permit(ActionDefer, StatusDiffere, dg, RequireMotif(), AllowResumptionDate(), StepDecision(),
			WithEffects(EffectStampDeferred))
	return b.Build()
}

func ordonnancementDefinition(_ Thresholds, chain []ChainStep) *Definition {
	b := NewBuilder(DocOrdonnancement).
		Chain(chain...).
		RequireFields("montant", "beneficiaire")
	commonRules(b, StatusSoumis, chain)
	chainRules(b, StatusSoumis, chain)
	return b.Build()
}

func reglementDefinition(_ Thresholds, chain []ChainStep) *Definition {
	b := NewBuilder(DocReglement).
		Chain(chain...).
		RequireFields("montant")
	commonRules(b, StatusSoumis, chain)
	chainRules(b, StatusSoumis, chain)

	b.Configure(StatusPaye).
		Permit(ActionClose, StatusCloture, WithRoles(RoleTresorerie), Primary())
	return b.Build()
}

// Registry holds the definition of every document type
type Registry struct {
	mu          sync.RWMutex
	thresholds  Thresholds
	definitions map[DocType]*Definition
}

// NewRegistry builds the built-in definitions
func NewRegistry(th Thresholds) *Registry {
	r := &Registry{
		thresholds:  th,
		definitions: make(map[DocType]*Definition, len(builtins)),
	}
	for docType, def := range builtins {
		r.definitions[docType] = def.factory(th, def.chain)
	}
	return r
}

// Thresholds returns the thresholds the definitions were built with
func (r *Registry) Thresholds() Thresholds {
	return r.thresholds
}

// Definition returns the definition of a document type
func (r *Registry) Definition(docType DocType) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[docType]
	if !ok {
		return nil, fmt.Errorf("%w: no workflow for document type %q", ErrNotFound, docType)
	}
	return def, nil
}

// OverrideChain replaces the validation chain of a document type
func (r *Registry) OverrideChain(docType DocType, steps []ChainStep) error {
	b, ok := builtins[docType]
	if !ok {
		return fmt.Errorf("%w: no workflow for document type %q", ErrNotFound, docType)
	}
	if !b.configurable {
		return fmt.Errorf("%w: the validation chain of %s cannot be configured", ErrInvalidState, docType)
	}
	if err := validateChain(steps); err != nil {
		return err
	}

	def := b.factory(r.thresholds, steps)

	r.mu.Lock()
	r.definitions[docType] = def
	r.mu.Unlock()
	return nil
}

// ResetChain restores the built-in chain of a document type
func (r *Registry) ResetChain(docType DocType) {
	b, ok := builtins[docType]
	if !ok {
		return
	}

	r.mu.Lock()
	r.definitions[docType] = b.factory(r.thresholds, b.chain)
	r.mu.Unlock()
}

// DefaultChain returns the built-in chain of a document type
func (r *Registry) DefaultChain(docType DocType) []ChainStep {
	return append([]ChainStep{}, builtins[docType].chain...)
}

// Configurable reports whether the chain of the document type may be overridden
func (r *Registry) Configurable(docType DocType) bool {
	return builtins[docType].configurable
}

func validateChain(steps []ChainStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: empty validation chain", ErrInvalidState)
	}
	for i, s := range steps {
		if s.Order != i+1 {
			return fmt.Errorf("%w: step %d has order %d", ErrInvalidState, i+1, s.Order)
		}
		if s.Role == "" {
			return fmt.Errorf("%w: step %d has no role", ErrInvalidState, s.Order)
		}
		if !s.Status.IsValid() {
			return fmt.Errorf("%w: step %d reaches unknown status %q", ErrInvalidState, s.Order, s.Status)
		}
		if s.Action != "" && !s.Action.IsValid() {
			return fmt.Errorf("%w: step %d uses unknown action %q", ErrInvalidState, s.Order, s.Action)
		}
	}
	if last := steps[len(steps)-1]; !last.Status.IsValidated() {
		return fmt.Errorf("%w: last step must reach a validated status, got %s", ErrInvalidState, last.Status)
	}
	return nil
}
