package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// DocumentFilter narrows document listings
type DocumentFilter struct {
	DocType   workflow.DocType
	Exercice  int
	Statut    workflow.Status
	DossierID string
	CreatedBy string
	Limit     int
	Offset    int
}

// TransitionWrite is the conditional status update of one transition
type TransitionWrite struct {
	Document       *entity.Document
	ExpectedStatut workflow.Status
	ExpectedStep   int

	// ActorID and RequiredRoles are re-checked against user_roles and
	// active delegations inside the write. Empty roles skip the check.
	ActorID       string
	RequiredRoles []workflow.Role
}

// DocumentRepository defines persistence operations for Document
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	GetByReference(ctx context.Context, reference string) (*entity.Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]*entity.Document, error)
	ListByDossier(ctx context.Context, dossierID string) ([]*entity.Document, error)

	// UpdateDraft rewrites the editable fields of a brouillon document
	UpdateDraft(ctx context.Context, doc *entity.Document) error

	// ApplyTransition updates the document WHERE id, statut and step pointer
	// still hold the expected values.
	// Returns workflow.ErrConcurrentModification when no row matched and
	// workflow.ErrNotAuthorized when the role re-check fails.
	ApplyTransition(ctx context.Context, w TransitionWrite) error

	SetDossier(ctx context.Context, documentID, dossierID string) error
}

// ValidationStepRepository appends validation decisions
type ValidationStepRepository interface {
	Create(ctx context.Context, step *entity.ValidationStep) error
	ListByDocument(ctx context.Context, documentID string) ([]*entity.ValidationStep, error)
}

// HistoryRepository appends audit trail entries. Entries are never updated.
type HistoryRepository interface {
	Create(ctx context.Context, entry *entity.HistoryEntry) error
	ListByDocument(ctx context.Context, documentID string) ([]*entity.HistoryEntry, error)
}

// DossierRepository defines persistence operations for Dossier and its stage rows
type DossierRepository interface {
	Create(ctx context.Context, dossier *entity.Dossier) error
	GetByID(ctx context.Context, id string) (*entity.Dossier, error)
	GetByNumero(ctx context.Context, numero string) (*entity.Dossier, error)
	Update(ctx context.Context, dossier *entity.Dossier) error

	UpsertEtape(ctx context.Context, etape *entity.DossierEtape) error
	ListEtapes(ctx context.Context, dossierID string) ([]*entity.DossierEtape, error)
}

// NotificationSink stores in-app notifications
type NotificationSink interface {
	Insert(ctx context.Context, n *entity.Notification) error
}

// NotificationRepository lists and acknowledges notifications
type NotificationRepository interface {
	NotificationSink
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error)
	MarkRead(ctx context.Context, id int64, userID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

// IdentityProvider resolves users and their role membership
type IdentityProvider interface {
	GetUser(ctx context.Context, userID string) (*entity.User, error)
	GetUserRoles(ctx context.Context, userID string) ([]workflow.Role, error)
	ListUsersByRoles(ctx context.Context, roles []workflow.Role) ([]*entity.User, error)
}

// DelegationProvider returns the delegations in force for a delegate
type DelegationProvider interface {
	GetActiveDelegations(ctx context.Context, delegateID string, docType workflow.DocType, at time.Time) ([]*entity.Delegation, error)
}

// SequenceKey scopes a counter
type SequenceKey struct {
	DocType  string
	Exercice int
	Scope    string
}

// SequenceAllocator hands out strictly increasing numbers per key.
// Allocation must be atomic: two calls never return the same number.
type SequenceAllocator interface {
	Next(ctx context.Context, key SequenceKey) (int64, error)
}

// BudgetRepository reads, reserves and engages budget line credit
type BudgetRepository interface {
	GetByID(ctx context.Context, id string) (*entity.BudgetLine, error)

	// Reserve holds montant on the line if its free credit covers it.
	// Returns false when the credit is insufficient.
	Reserve(ctx context.Context, id string, montant decimal.Decimal) (bool, error)

	// Engage moves up to released out of the reserve and adds montant to the
	// engaged amount. Returns false when reserve plus free credit is short.
	Engage(ctx context.Context, id string, montant, released decimal.Decimal) (bool, error)
}

// AttachmentRepository defines persistence operations for Attachment
type AttachmentRepository interface {
	Create(ctx context.Context, att *entity.Attachment) error
	GetByID(ctx context.Context, id string) (*entity.Attachment, error)
	ListByDocument(ctx context.Context, documentID string) ([]*entity.Attachment, error)
	Delete(ctx context.Context, id string) error
}

// WorkflowDefinitionRepository loads admin-configured validation chains
type WorkflowDefinitionRepository interface {
	ListActive(ctx context.Context) ([]*entity.WorkflowDefinition, error)
	GetByEntityType(ctx context.Context, entityType string) (*entity.WorkflowDefinition, error)
	ListActions(ctx context.Context) ([]*entity.WfAction, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
