package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/sygfp/internal/domain/entity"
	domainwf "github.com/garyjia/sygfp/internal/domain/workflow"
)

// Engine drives spending-chain documents through their workflow
type Engine interface {
	// Create inserts a brouillon document after the chain prerequisites check
	Create(ctx context.Context, actorID string, draft Draft) (*entity.Document, error)

	// UpdateDraft edits a brouillon document. Only its creator or an admin may do it.
	UpdateDraft(ctx context.Context, actorID, documentID string, patch Patch) (*entity.Document, error)

	Get(ctx context.Context, documentID string) (*entity.Document, error)
	History(ctx context.Context, documentID string) ([]*entity.HistoryEntry, error)

	Submit(ctx context.Context, documentID, actorID string) (*Outcome, error)
	Validate(ctx context.Context, documentID, actorID, comment string) (*Outcome, error)
	Reject(ctx context.Context, documentID, actorID, motif string) (*Outcome, error)
	Defer(ctx context.Context, documentID, actorID, motif string, resumptionDate *time.Time) (*Outcome, error)
	Resubmit(ctx context.Context, documentID, actorID string) (*Outcome, error)

	// Apply runs any action declared for the document type
	Apply(ctx context.Context, cmd Command) (*Outcome, error)

	// GetAvailableTransitions lists the transitions the roles may trigger now
	GetAvailableTransitions(ctx context.Context, documentID string, actorRoles []domainwf.Role) ([]AvailableTransition, error)

	// GetNextAction returns the single recommended action for the actor, or nil
	GetNextAction(ctx context.Context, documentID, actorID string) (*entity.NextAction, error)

	// CheckPrerequisites tells whether a document of type step can be created in the dossier
	CheckPrerequisites(ctx context.Context, step domainwf.DocType, dossierID string, montant decimal.Decimal) (domainwf.PrerequisiteResult, error)
}

// Draft holds the fields of a new document
type Draft struct {
	DocType       domainwf.DocType `json:"doc_type"`
	Exercice      int              `json:"exercice"`
	Objet         string           `json:"objet"`
	Justification string           `json:"justification"`
	Urgence       string           `json:"urgence"`
	Demandeur     string           `json:"demandeur"`
	Direction     string           `json:"direction"`
	Beneficiaire  string           `json:"beneficiaire"`
	DateSouhaitee *time.Time       `json:"date_souhaitee"`
	Montant       decimal.Decimal  `json:"montant"`
	ListeArticles []entity.Article `json:"liste_articles"`
	ParentID      string           `json:"parent_id"`
	DossierID     string           `json:"dossier_id"`
	BudgetLineID  string           `json:"budget_line_id"`
}

// Patch holds the draft fields to change. Nil fields are left untouched.
type Patch struct {
	Objet         *string          `json:"objet"`
	Justification *string          `json:"justification"`
	Urgence       *string          `json:"urgence"`
	Demandeur     *string          `json:"demandeur"`
	Direction     *string          `json:"direction"`
	Beneficiaire  *string          `json:"beneficiaire"`
	DateSouhaitee *time.Time       `json:"date_souhaitee"`
	Montant       *decimal.Decimal `json:"montant"`
	ListeArticles []entity.Article `json:"liste_articles"`
	BudgetLineID  *string          `json:"budget_line_id"`
}

// Command is a request to run an action on a document
type Command struct {
	DocumentID     string          `json:"document_id"`
	ActorID        string          `json:"actor_id"`
	Action         domainwf.Action `json:"action"`
	Comment        string          `json:"comment,omitempty"`
	Motif          string          `json:"motif,omitempty"`
	ResumptionDate *time.Time      `json:"resumption_date,omitempty"`
}

// Outcome is the result of a committed transition
type Outcome struct {
	Document   *entity.Document    `json:"document"`
	Transition domainwf.Transition `json:"-"`

	// Warnings report post-commit effects that failed. The transition stays committed.
	Warnings []error `json:"-"`
}

// AvailableTransition is a transition offered to a user
type AvailableTransition struct {
	Action               domainwf.Action `json:"action"`
	Label                string          `json:"label"`
	ToStatus             domainwf.Status `json:"to_status"`
	RequiresMotif        bool            `json:"requires_motif"`
	AllowsResumptionDate bool            `json:"allows_resumption_date"`
	Primary              bool            `json:"primary"`
	StepOrder            int             `json:"step_order,omitempty"`
	OwnerOnly            bool            `json:"owner_only,omitempty"`
}

// EffectHook runs after commit for transitions carrying an effect
type EffectHook func(ctx context.Context, doc *entity.Document, actorID string) error

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
