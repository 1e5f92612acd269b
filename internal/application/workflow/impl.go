package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/sygfp/internal/application/dispatcher"
	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/application/rbac"
	"github.com/garyjia/sygfp/internal/application/sequence"
	"github.com/garyjia/sygfp/internal/application/validation"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/event"
	domainwf "github.com/garyjia/sygfp/internal/domain/workflow"
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	registry  *domainwf.Registry
	docs      port.DocumentRepository
	history   port.HistoryRepository
	txManager port.TransactionManager
	resolver  *rbac.Resolver
	generator *sequence.Generator
	tracker   *validation.Tracker

	budgets    port.BudgetRepository
	identity   port.IdentityProvider
	dispatcher dispatcher.Dispatcher
	hooks      map[domainwf.Effect][]EffectHook
	logger     Logger
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithBudgets enables the credit check of imputations
func WithBudgets(b port.BudgetRepository) EngineOption {
	return func(e *engineImpl) {
		e.budgets = b
	}
}

// WithIdentity enables the direction check of direction-bound steps
func WithIdentity(i port.IdentityProvider) EngineOption {
	return func(e *engineImpl) {
		e.identity = i
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEffectHook registers a post-commit hook for transitions carrying the effect
func WithEffectHook(effect domainwf.Effect, hook EffectHook) EngineOption {
	return func(e *engineImpl) {
		e.hooks[effect] = append(e.hooks[effect], hook)
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	registry *domainwf.Registry,
	docs port.DocumentRepository,
	history port.HistoryRepository,
	txManager port.TransactionManager,
	resolver *rbac.Resolver,
	generator *sequence.Generator,
	tracker *validation.Tracker,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		registry:  registry,
		docs:      docs,
		history:   history,
		txManager: txManager,
		resolver:  resolver,
		generator: generator,
		tracker:   tracker,
		hooks:     make(map[domainwf.Effect][]EffectHook),
		logger:    nopLogger{},
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Create inserts a new brouillon document
func (e *engineImpl) Create(ctx context.Context, actorID string, draft Draft) (*entity.Document, error) {
	if actorID == "" {
		return nil, domainwf.ErrNotAuthenticated
	}
	if _, err := e.registry.Definition(draft.DocType); err != nil {
		return nil, err
	}

	if stage, ok := domainwf.Stage(draft.DocType); ok && len(stage.Owners) > 0 {
		d, err := e.resolver.CanPerform(ctx, actorID, rbac.Capability{DocType: draft.DocType, Roles: stage.Owners})
		if err != nil {
			return nil, err
		}
		if !d.Allowed {
			return nil, fmt.Errorf("%w: %s cannot create %s", domainwf.ErrNotAuthorized, actorID, draft.DocType)
		}
	}

	if draft.Montant.IsNegative() {
		return nil, &domainwf.ValidationError{Reason: "Le montant ne peut pas être négatif"}
	}

	res, err := e.CheckPrerequisites(ctx, draft.DocType, draft.DossierID, draft.Montant)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}

	now := e.now()
	exercice := draft.Exercice
	if exercice == 0 {
		exercice = now.Year()
	}

	doc := &entity.Document{
		ID:                    uuid.NewString(),
		DocType:               draft.DocType,
		Exercice:              exercice,
		Statut:                domainwf.StatusBrouillon,
		CreatedBy:             actorID,
		Demandeur:             draft.Demandeur,
		Direction:             draft.Direction,
		Objet:                 strings.TrimSpace(draft.Objet),
		Justification:         draft.Justification,
		Urgence:               draft.Urgence,
		DateSouhaitee:         draft.DateSouhaitee,
		Beneficiaire:          draft.Beneficiaire,
		Montant:               draft.Montant,
		ListeArticles:         draft.ListeArticles,
		ParentID:              draft.ParentID,
		DossierID:             draft.DossierID,
		BudgetLineID:          draft.BudgetLineID,
		CurrentValidationStep: 1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if doc.Demandeur == "" {
		doc.Demandeur = actorID
	}

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.docs.Create(txCtx, doc); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		return e.history.Create(txCtx, &entity.HistoryEntry{
			DocumentID:  doc.ID,
			DocType:     doc.DocType,
			Action:      domainwf.HistoryCreation,
			NewStatut:   doc.Statut,
			PerformedBy: actorID,
			PerformedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Document created", "document_id", doc.ID, "doc_type", doc.DocType, "actor_id", actorID)
	e.emit(ctx, event.NewEvent(event.TypeDocumentCreated, doc.ID, string(doc.DocType), map[string]interface{}{
		event.KeyActorID:   actorID,
		event.KeyDossierID: doc.DossierID,
	}))

	return doc, nil
}

// UpdateDraft edits a brouillon document
func (e *engineImpl) UpdateDraft(ctx context.Context, actorID, documentID string, patch Patch) (*entity.Document, error) {
	if actorID == "" {
		return nil, domainwf.ErrNotAuthenticated
	}
	doc, _, err := e.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Statut != domainwf.StatusBrouillon {
		return nil, fmt.Errorf("%w: %s is %s, only drafts can be edited", domainwf.ErrInvalidTransition, doc.ID, doc.Statut)
	}
	if !doc.IsOwner(actorID) {
		admin, err := e.resolver.IsAdmin(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, fmt.Errorf("%w: %s is not the owner of %s", domainwf.ErrNotAuthorized, actorID, doc.ID)
		}
	}

	applyPatch(doc, patch)
	if doc.Montant.IsNegative() {
		return nil, &domainwf.ValidationError{Reason: "Le montant ne peut pas être négatif"}
	}
	now := e.now()
	doc.UpdatedAt = now

	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.docs.UpdateDraft(txCtx, doc); err != nil {
			return fmt.Errorf("failed to update draft: %w", err)
		}
		return e.history.Create(txCtx, &entity.HistoryEntry{
			DocumentID:  doc.ID,
			DocType:     doc.DocType,
			Action:      domainwf.HistoryModification,
			OldStatut:   doc.Statut,
			NewStatut:   doc.Statut,
			PerformedBy: actorID,
			PerformedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func applyPatch(doc *entity.Document, p Patch) {
	if p.Objet != nil {
		doc.Objet = strings.TrimSpace(*p.Objet)
	}
	if p.Justification != nil {
		doc.Justification = *p.Justification
	}
	if p.Urgence != nil {
		doc.Urgence = *p.Urgence
	}
	if p.Demandeur != nil {
		doc.Demandeur = *p.Demandeur
	}
	if p.Direction != nil {
		doc.Direction = *p.Direction
	}
	if p.Beneficiaire != nil {
		doc.Beneficiaire = *p.Beneficiaire
	}
	if p.DateSouhaitee != nil {
		doc.DateSouhaitee = p.DateSouhaitee
	}
	if p.Montant != nil {
		doc.Montant = *p.Montant
	}
	if p.ListeArticles != nil {
		doc.ListeArticles = p.ListeArticles
	}
	if p.BudgetLineID != nil {
		doc.BudgetLineID = *p.BudgetLineID
	}
}

func (e *engineImpl) Get(ctx context.Context, documentID string) (*entity.Document, error) {
	doc, _, err := e.load(ctx, documentID)
	return doc, err
}

func (e *engineImpl) History(ctx context.Context, documentID string) ([]*entity.HistoryEntry, error) {
	entries, err := e.history.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history of %s: %w", documentID, err)
	}
	return entries, nil
}

func (e *engineImpl) Submit(ctx context.Context, documentID, actorID string) (*Outcome, error) {
	return e.Apply(ctx, Command{DocumentID: documentID, ActorID: actorID, Action: domainwf.ActionSubmit})
}

// Validate approves the step under the pointer. Types without a VALIDATE
// rule use the action of their step rule (IMPUTE, PREPARE_SIGN, PAY, ...).
func (e *engineImpl) Validate(ctx context.Context, documentID, actorID, comment string) (*Outcome, error) {
	doc, def, err := e.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return e.Apply(ctx, Command{
		DocumentID: documentID,
		ActorID:    actorID,
		Action:     validateAction(def, doc.Statut),
		Comment:    comment,
	})
}

func validateAction(def *domainwf.Definition, from domainwf.Status) domainwf.Action {
	if len(def.Lookup(from, domainwf.ActionValidate)) > 0 {
		return domainwf.ActionValidate
	}
	for _, t := range def.Transitions(from) {
		if t.StepOrder > 0 {
			return t.Action
		}
	}
	return domainwf.ActionValidate
}

func (e *engineImpl) Reject(ctx context.Context, documentID, actorID, motif string) (*Outcome, error) {
	return e.Apply(ctx, Command{DocumentID: documentID, ActorID: actorID, Action: domainwf.ActionReject, Motif: motif})
}

func (e *engineImpl) Defer(ctx context.Context, documentID, actorID, motif string, resumptionDate *time.Time) (*Outcome, error) {
	return e.Apply(ctx, Command{
		DocumentID:     documentID,
		ActorID:        actorID,
		Action:         domainwf.ActionDefer,
		Motif:          motif,
		ResumptionDate: resumptionDate,
	})
}

func (e *engineImpl) Resubmit(ctx context.Context, documentID, actorID string) (*Outcome, error) {
	return e.Apply(ctx, Command{DocumentID: documentID, ActorID: actorID, Action: domainwf.ActionResubmit})
}

// Apply runs one transition. Checks happen in a fixed order: legality,
// motif, required fields, authorization, condition, credit.
func (e *engineImpl) Apply(ctx context.Context, cmd Command) (*Outcome, error) {
	if cmd.ActorID == "" {
		return nil, domainwf.ErrNotAuthenticated
	}

	doc, def, err := e.load(ctx, cmd.DocumentID)
	if err != nil {
		return nil, err
	}

	candidates := def.Lookup(doc.Statut, cmd.Action)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: cannot %s a %s document from status %s",
			domainwf.ErrInvalidTransition, cmd.Action, doc.DocType, doc.Statut)
	}

	if requiresMotif(candidates) && strings.TrimSpace(cmd.Motif) == "" {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrMotifRequired, cmd.Action.Label())
	}
	if checksFields(candidates) {
		if missing := doc.MissingFields(def.RequiredFields()); len(missing) > 0 {
			return nil, &domainwf.ValidationError{Missing: missing}
		}
	}

	roles, err := e.resolver.EffectiveRoles(ctx, cmd.ActorID, doc.DocType)
	if err != nil {
		return nil, err
	}
	tc := domainwf.TransitionContext{
		DocType:     doc.DocType,
		From:        doc.Statut,
		Montant:     doc.Montant,
		ActorRoles:  roles,
		CurrentStep: validation.Pointer(doc),
		Legacy:      doc.Legacy,
	}

	t, selectErr := def.Select(doc.Statut, cmd.Action, tc)
	if selectErr != nil {
		if err := e.authorizeAny(ctx, cmd.ActorID, doc, candidates); err != nil {
			return nil, err
		}
		return nil, selectErr
	}

	if doc.Legacy && (t.StepOrder > 0 || t.StepDecision) {
		return nil, fmt.Errorf("%w: legacy validation history of %s is read-only", domainwf.ErrInvalidTransition, doc.ID)
	}

	decision, err := e.authorize(ctx, cmd.ActorID, doc, def, t)
	if err != nil {
		return nil, err
	}

	if t.HasEffect(domainwf.EffectReserveCredit) || t.HasEffect(domainwf.EffectCreditCheck) {
		if err := e.checkCredit(ctx, doc, t); err != nil {
			return nil, err
		}
	}

	return e.commit(ctx, cmd, doc, t, tc, decision)
}

func requiresMotif(ts []domainwf.Transition) bool {
	for _, t := range ts {
		if t.RequiresMotif {
			return true
		}
	}
	return false
}

func checksFields(ts []domainwf.Transition) bool {
	for _, t := range ts {
		if t.ChecksFields {
			return true
		}
	}
	return false
}

func (e *engineImpl) commit(ctx context.Context, cmd Command, doc *entity.Document, t domainwf.Transition, tc domainwf.TransitionContext, decision rbac.Decision) (*Outcome, error) {
	from := doc.Statut
	to := t.Target(tc)
	now := e.now()

	next := *doc
	next.Statut = to
	next.UpdatedAt = now

	comment := cmd.Comment
	if t.RequiresMotif {
		comment = strings.TrimSpace(cmd.Motif)
	}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if t.HasEffect(domainwf.EffectAssignReference) && next.Reference == "" {
			ref, err := e.generator.ForDocument(txCtx, doc.DocType, doc.Exercice)
			if err != nil {
				return err
			}
			next.Reference = ref.FullCode
		}

		if e.budgets != nil {
			if err := e.bookCredit(txCtx, doc, t); err != nil {
				return err
			}
		}

		switch {
		case t.StepOrder > 0:
			pointer, err := e.tracker.Approve(txCtx, doc, t.StepOrder, cmd.ActorID, decision, cmd.Comment)
			if err != nil {
				return err
			}
			next.CurrentValidationStep = pointer
		case t.StepDecision && t.Action == domainwf.ActionReject:
			if err := e.tracker.Reject(txCtx, doc, cmd.ActorID, decision, comment); err != nil {
				return err
			}
		}

		stamp(&next, t, cmd, now)

		write := port.TransitionWrite{
			Document:       &next,
			ExpectedStatut: from,
			ExpectedStep:   doc.CurrentValidationStep,
			ActorID:        cmd.ActorID,
		}
		if !t.OwnerOnly {
			write.RequiredRoles = t.Roles
		}
		if err := e.docs.ApplyTransition(txCtx, write); err != nil {
			return err
		}

		return e.history.Create(txCtx, &entity.HistoryEntry{
			DocumentID:  doc.ID,
			DocType:     doc.DocType,
			Action:      t.Action.HistoryAction(),
			OldStatut:   from,
			NewStatut:   to,
			PerformedBy: cmd.ActorID,
			PerformedAt: now,
			Commentaire: comment,
		})
	})
	if err != nil {
		e.logger.Error("Transition failed",
			"document_id", doc.ID,
			"action", t.Action,
			"from", from,
			"error", err,
		)
		return nil, err
	}

	e.logger.Info("Transition applied",
		"document_id", doc.ID,
		"doc_type", doc.DocType,
		"action", t.Action,
		"from", from,
		"to", to,
		"actor_id", cmd.ActorID,
		"via", decision.Via,
	)

	payload := map[string]interface{}{
		event.KeyAction:    t.Action,
		event.KeyOldStatut: from,
		event.KeyNewStatut: to,
		event.KeyActorID:   cmd.ActorID,
		event.KeyReference: next.Reference,
		event.KeyDossierID: next.DossierID,
		event.KeyPointer:   next.CurrentValidationStep,
		event.KeyMotifRule: t.RequiresMotif,
		event.KeyCreatedBy: next.CreatedBy,
		event.KeyDemandeur: next.Demandeur,
	}
	if comment != "" {
		payload[event.KeyComment] = comment
	}
	if t.RequiresMotif {
		payload[event.KeyMotif] = comment
	}
	if t.StepOrder > 0 {
		payload[event.KeyStepOrder] = t.StepOrder
	}
	statusEvent := event.NewEvent(event.TypeStatusChanged, doc.ID, string(doc.DocType), payload)
	e.emit(ctx, statusEvent)
	if t.StepOrder > 0 {
		e.emit(ctx, event.NewEventWithCorrelation(event.TypeValidationStepDone, doc.ID, string(doc.DocType), payload, statusEvent.CorrelationID))
	}

	out := &Outcome{Document: &next, Transition: t}
	ran := false
	for _, effect := range t.Effects {
		for _, hook := range e.hooks[effect] {
			ran = true
			if err := hook(ctx, &next, cmd.ActorID); err != nil {
				e.logger.Error("Post-commit effect failed",
					"document_id", doc.ID,
					"effect", effect,
					"error", err,
				)
				out.Warnings = append(out.Warnings, fmt.Errorf("%w: %s: %w", domainwf.ErrDownstreamCreationFailed, effect, err))
			}
		}
	}

	if ran {
		if fresh, err := e.docs.GetByID(ctx, doc.ID); err == nil && fresh != nil {
			out.Document = fresh
		}
	}

	return out, nil
}

func stamp(doc *entity.Document, t domainwf.Transition, cmd Command, now time.Time) {
	motif := strings.TrimSpace(cmd.Motif)
	for _, effect := range t.Effects {
		switch effect {
		case domainwf.EffectStampSubmitted:
			doc.SubmittedAt = &now
		case domainwf.EffectStampValidated:
			doc.ValidatedBy = cmd.ActorID
			doc.ValidatedAt = &now
		case domainwf.EffectStampRejected:
			doc.RejectedBy = cmd.ActorID
			doc.RejectedAt = &now
			doc.RejectionReason = motif
		case domainwf.EffectStampDeferred:
			doc.DeferredBy = cmd.ActorID
			doc.DeferredAt = &now
			doc.DeferMotif = motif
			if t.AllowsResumptionDate {
				doc.DeferResumptionDate = cmd.ResumptionDate
			}
		case domainwf.EffectClearDeferral:
			doc.DeferredBy = ""
			doc.DeferredAt = nil
			doc.DeferMotif = ""
			doc.DeferResumptionDate = nil
		}
	}
}

// authorize resolves how the actor holds the transition
func (e *engineImpl) authorize(ctx context.Context, actorID string, doc *entity.Document, def *domainwf.Definition, t domainwf.Transition) (rbac.Decision, error) {
	if t.OwnerOnly {
		if doc.IsOwner(actorID) {
			return rbac.Decision{Allowed: true, Via: entity.ViaDirect}, nil
		}
		admin, err := e.resolver.IsAdmin(ctx, actorID)
		if err != nil {
			return rbac.Decision{}, err
		}
		if !admin {
			return rbac.Decision{}, fmt.Errorf("%w: only the owner of %s may %s", domainwf.ErrNotAuthorized, doc.ID, t.Action)
		}
		return rbac.Decision{Allowed: true, Via: entity.ViaAdmin, Role: domainwf.RoleAdmin}, nil
	}

	d, err := e.resolver.CanPerform(ctx, actorID, rbac.Capability{DocType: doc.DocType, Roles: t.Roles})
	if err != nil {
		return rbac.Decision{}, err
	}
	if !d.Allowed {
		return rbac.Decision{}, fmt.Errorf("%w: %s lacks %v to %s", domainwf.ErrNotAuthorized, actorID, t.Roles, t.Action)
	}

	order := t.StepOrder
	if order == 0 && t.StepDecision {
		order = validation.Pointer(doc)
	}
	if step, ok := def.StepAt(order); ok && step.DirectionRequired != "" && d.Via != entity.ViaAdmin && e.identity != nil {
		user, err := e.identity.GetUser(ctx, actorID)
		if err != nil {
			return rbac.Decision{}, fmt.Errorf("failed to load user %s: %w", actorID, err)
		}
		if user == nil || user.Direction != step.DirectionRequired {
			return rbac.Decision{}, fmt.Errorf("%w: step %d is reserved to direction %s", domainwf.ErrNotAuthorized, order, step.DirectionRequired)
		}
	}

	return d, nil
}

// authorizeAny reports ErrNotAuthorized when the actor holds none of the candidates
func (e *engineImpl) authorizeAny(ctx context.Context, actorID string, doc *entity.Document, candidates []domainwf.Transition) error {
	var roles []domainwf.Role
	for _, t := range candidates {
		if t.OwnerOnly {
			if doc.IsOwner(actorID) {
				return nil
			}
			continue
		}
		if len(t.Roles) == 0 {
			return nil
		}
		roles = append(roles, t.Roles...)
	}

	if len(roles) == 0 {
		admin, err := e.resolver.IsAdmin(ctx, actorID)
		if err != nil {
			return err
		}
		if admin {
			return nil
		}
		return fmt.Errorf("%w: only the owner of %s may act", domainwf.ErrNotAuthorized, doc.ID)
	}

	d, err := e.resolver.CanPerform(ctx, actorID, rbac.Capability{DocType: doc.DocType, Roles: roles})
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s lacks %v", domainwf.ErrNotAuthorized, actorID, roles)
	}
	return nil
}

// checkCredit fails fast when the line cannot absorb the document amount.
// Imputations need free credit; engagements may also use what the dossier
// imputations reserved.
func (e *engineImpl) checkCredit(ctx context.Context, doc *entity.Document, t domainwf.Transition) error {
	if e.budgets == nil {
		return nil
	}
	if doc.BudgetLineID == "" {
		return &domainwf.ValidationError{Missing: []string{"budget_line_id"}}
	}
	line, err := e.budgets.GetByID(ctx, doc.BudgetLineID)
	if err != nil {
		return fmt.Errorf("failed to load budget line %s: %w", doc.BudgetLineID, err)
	}
	if line == nil {
		return &domainwf.ValidationError{Reason: fmt.Sprintf("Ligne budgétaire %s introuvable", doc.BudgetLineID)}
	}

	available := line.Disponible()
	if t.HasEffect(domainwf.EffectCreditCheck) {
		released, err := e.reservedFor(ctx, doc)
		if err != nil {
			return err
		}
		available = available.Add(line.Releasable(released))
	}
	if available.LessThan(doc.Montant) {
		return insufficientCredit(available, doc.Montant)
	}
	return nil
}

// bookCredit reserves the imputation amount or engages the engagement amount
func (e *engineImpl) bookCredit(ctx context.Context, doc *entity.Document, t domainwf.Transition) error {
	var (
		ok  bool
		err error
	)
	switch {
	case t.HasEffect(domainwf.EffectReserveCredit):
		ok, err = e.budgets.Reserve(ctx, doc.BudgetLineID, doc.Montant)
	case t.HasEffect(domainwf.EffectCreditCheck):
		var released decimal.Decimal
		released, err = e.reservedFor(ctx, doc)
		if err != nil {
			return err
		}
		ok, err = e.budgets.Engage(ctx, doc.BudgetLineID, doc.Montant, released)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to book credit: %w", err)
	}
	if !ok {
		return &domainwf.ValidationError{Reason: "Crédit insuffisant sur la ligne budgétaire"}
	}
	return nil
}

// reservedFor returns the credit booked by the dossier imputations on the
// document line that no other engagement of the dossier has converted yet,
// capped to the document amount
func (e *engineImpl) reservedFor(ctx context.Context, doc *entity.Document) (decimal.Decimal, error) {
	if doc.DossierID == "" {
		return decimal.Zero, nil
	}
	docs, err := e.docs.ListByDossier(ctx, doc.DossierID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list documents of dossier %s: %w", doc.DossierID, err)
	}

	engagedAfter := e.creditStep(doc.DocType)
	reserved := decimal.Zero
	for _, d := range docs {
		if d.ID == doc.ID || d.BudgetLineID != doc.BudgetLineID {
			continue
		}
		switch {
		case d.DocType == domainwf.DocImputation && d.Statut == domainwf.StatusImpute:
			reserved = reserved.Add(d.Montant)
		case d.DocType == doc.DocType && engagedAfter > 0 && d.CurrentValidationStep > engagedAfter:
			reserved = reserved.Sub(d.Montant)
		}
	}
	if !reserved.IsPositive() {
		return decimal.Zero, nil
	}
	return decimal.Min(reserved, doc.Montant), nil
}

// creditStep returns the order of the chain step engaging credit, 0 if none
func (e *engineImpl) creditStep(docType domainwf.DocType) int {
	def, err := e.registry.Definition(docType)
	if err != nil {
		return 0
	}
	for _, step := range def.Chain() {
		for _, effect := range step.Effects {
			if effect == domainwf.EffectCreditCheck {
				return step.Order
			}
		}
	}
	return 0
}

func insufficientCredit(available, montant decimal.Decimal) error {
	return &domainwf.ValidationError{Reason: fmt.Sprintf("Crédit insuffisant: disponible %s, demandé %s",
		available.StringFixed(0), montant.StringFixed(0))}
}

// GetAvailableTransitions lists the actions the roles may take on the document now
func (e *engineImpl) GetAvailableTransitions(ctx context.Context, documentID string, actorRoles []domainwf.Role) ([]AvailableTransition, error) {
	doc, def, err := e.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return available(def, doc, actorRoles, ""), nil
}

// available filters the transitions out of the document status. Owner-only
// transitions are kept when ownerID owns the document or ownerID is empty.
func available(def *domainwf.Definition, doc *entity.Document, roles []domainwf.Role, ownerID string) []AvailableTransition {
	tc := domainwf.TransitionContext{
		DocType:     doc.DocType,
		From:        doc.Statut,
		Montant:     doc.Montant,
		ActorRoles:  roles,
		CurrentStep: validation.Pointer(doc),
		Legacy:      doc.Legacy,
	}

	seen := make(map[domainwf.Action]bool)
	var out []AvailableTransition
	for _, t := range def.Transitions(doc.Statut) {
		if seen[t.Action] {
			continue
		}
		if t.OwnerOnly {
			if ownerID != "" && !doc.IsOwner(ownerID) && !domainwf.ContainsRole(roles, domainwf.RoleAdmin) {
				continue
			}
		} else if len(t.Roles) > 0 && !domainwf.AnyRole(roles, t.Roles) {
			continue
		}
		if t.Check(tc) != nil {
			continue
		}
		if doc.Legacy && (t.StepOrder > 0 || t.StepDecision) {
			continue
		}
		seen[t.Action] = true
		out = append(out, AvailableTransition{
			Action:               t.Action,
			Label:                t.Label(),
			ToStatus:             t.Target(tc),
			RequiresMotif:        t.RequiresMotif,
			AllowsResumptionDate: t.AllowsResumptionDate,
			Primary:              t.Primary,
			StepOrder:            t.StepOrder,
			OwnerOnly:            t.OwnerOnly,
		})
	}
	return out
}

var nextActionPriority = []domainwf.Status{
	domainwf.StatusSoumis,
	domainwf.StatusValide,
	domainwf.StatusImpute,
	domainwf.StatusSigne,
	domainwf.StatusPaye,
}

// GetNextAction returns the primary transition, then the first one reaching a
// priority status, then the first available one
func (e *engineImpl) GetNextAction(ctx context.Context, documentID, actorID string) (*entity.NextAction, error) {
	doc, def, err := e.load(ctx, documentID)
	if err != nil {
		return nil, err
	}
	roles, err := e.resolver.EffectiveRoles(ctx, actorID, doc.DocType)
	if err != nil {
		return nil, err
	}

	ts := available(def, doc, roles, actorID)
	if len(ts) == 0 {
		return nil, nil
	}

	pick := func(t AvailableTransition) *entity.NextAction {
		return &entity.NextAction{
			DocumentID:    doc.ID,
			DocType:       doc.DocType,
			Action:        t.Action,
			Label:         t.Label,
			ToStatus:      t.ToStatus,
			RequiresMotif: t.RequiresMotif,
		}
	}

	for _, t := range ts {
		if t.Primary {
			return pick(t), nil
		}
	}
	for _, s := range nextActionPriority {
		for _, t := range ts {
			if t.ToStatus == s {
				return pick(t), nil
			}
		}
	}
	return pick(ts[0]), nil
}

// CheckPrerequisites evaluates the chain prerequisites against the dossier documents
func (e *engineImpl) CheckPrerequisites(ctx context.Context, step domainwf.DocType, dossierID string, montant decimal.Decimal) (domainwf.PrerequisiteResult, error) {
	state := make(map[domainwf.DocType]domainwf.Status)
	if dossierID != "" {
		docs, err := e.docs.ListByDossier(ctx, dossierID)
		if err != nil {
			return domainwf.PrerequisiteResult{}, fmt.Errorf("failed to list documents of dossier %s: %w", dossierID, err)
		}
		for _, d := range docs {
			def, err := e.registry.Definition(d.DocType)
			if err != nil {
				continue
			}
			if def.IsValidated(d.Statut) {
				state[d.DocType] = domainwf.StatusValide
			} else if _, seen := state[d.DocType]; !seen {
				state[d.DocType] = d.Statut
			}
		}
	}
	return domainwf.CheckPrerequisites(step, state, montant, e.registry.Thresholds()), nil
}

func (e *engineImpl) load(ctx context.Context, documentID string) (*entity.Document, *domainwf.Definition, error) {
	doc, err := e.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get document %s: %w", documentID, err)
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("%w: document %s", domainwf.ErrNotFound, documentID)
	}
	def, err := e.registry.Definition(doc.DocType)
	if err != nil {
		return nil, nil, err
	}
	return doc, def, nil
}

func (e *engineImpl) emit(ctx context.Context, evt *event.Event) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.DispatchAsync(ctx, evt)
}
