package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

// Kind selects the reference format
type Kind string

const (
	KindDocument Kind = "document"
	KindDossier  Kind = "dossier"
	KindMarche   Kind = "marche"
)

const (
	// ScopeGlobal is the counter scope shared by a whole exercice
	ScopeGlobal = "global"

	// DefaultOrgUnit is used for dossiers without a direction
	DefaultOrgUnit = "GEN"
)

// Request describes the reference to allocate
type Request struct {
	Kind     Kind
	DocType  workflow.DocType
	Exercice int
	OrgUnit  string
	Scope    string
	At       time.Time
}

// Reference is an allocated reference code
type Reference struct {
	FullCode     string `json:"full_code"`
	NumberRaw    int64  `json:"number_raw"`
	NumberPadded string `json:"number_padded"`
}

// Generator formats numbers handed out by a SequenceAllocator
type Generator struct {
	allocator port.SequenceAllocator
	now       func() time.Time
}

// NewGenerator creates a reference generator
func NewGenerator(allocator port.SequenceAllocator) *Generator {
	return &Generator{allocator: allocator, now: time.Now}
}

// Next allocates the next reference for the request
func (g *Generator) Next(ctx context.Context, req Request) (Reference, error) {
	if req.Kind == "" {
		req.Kind = KindDocument
	}
	if req.At.IsZero() {
		req.At = g.now()
	}
	if req.Exercice == 0 {
		req.Exercice = req.At.Year()
	}

	key, err := keyFor(req)
	if err != nil {
		return Reference{}, err
	}

	n, err := g.allocator.Next(ctx, key)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %s/%d/%s: %v", workflow.ErrReferenceAllocationFailed, key.DocType, key.Exercice, key.Scope, err)
	}
	if n <= 0 {
		return Reference{}, fmt.Errorf("%w: allocator returned %d", workflow.ErrReferenceAllocationFailed, n)
	}

	padded := fmt.Sprintf("%04d", n)
	return Reference{
		FullCode:     format(req, padded),
		NumberRaw:    n,
		NumberPadded: padded,
	}, nil
}

// ForDocument allocates the reference of a chain document
func (g *Generator) ForDocument(ctx context.Context, docType workflow.DocType, exercice int) (Reference, error) {
	kind := KindDocument
	if docType == workflow.DocMarche {
		kind = KindMarche
	}
	return g.Next(ctx, Request{Kind: kind, DocType: docType, Exercice: exercice})
}

// ForDossier allocates a dossier numero scoped by direction
func (g *Generator) ForDossier(ctx context.Context, exercice int, direction string) (Reference, error) {
	return g.Next(ctx, Request{Kind: KindDossier, Exercice: exercice, OrgUnit: direction})
}

func keyFor(req Request) (port.SequenceKey, error) {
	scope := req.Scope
	switch req.Kind {
	case KindDocument:
		if !req.DocType.IsValid() {
			return port.SequenceKey{}, fmt.Errorf("%w: unknown document type %q", workflow.ErrReferenceAllocationFailed, req.DocType)
		}
		if scope == "" {
			scope = ScopeGlobal
		}
		return port.SequenceKey{DocType: string(req.DocType), Exercice: req.Exercice, Scope: scope}, nil
	case KindDossier:
		if scope == "" {
			scope = orgUnit(req.OrgUnit)
		}
		return port.SequenceKey{DocType: string(KindDossier), Exercice: req.Exercice, Scope: scope}, nil
	case KindMarche:
		if scope == "" {
			scope = ScopeGlobal
		}
		return port.SequenceKey{DocType: string(workflow.DocMarche), Exercice: req.Exercice, Scope: scope}, nil
	default:
		return port.SequenceKey{}, fmt.Errorf("%w: unknown reference kind %q", workflow.ErrReferenceAllocationFailed, req.Kind)
	}
}

func format(req Request, padded string) string {
	switch req.Kind {
	case KindDossier:
		return fmt.Sprintf("ARTI/%d/%s/%s", req.Exercice, orgUnit(req.OrgUnit), padded)
	case KindMarche:
		return fmt.Sprintf("MP/%d/%s", req.Exercice, padded)
	default:
		return fmt.Sprintf("ARTI%d%02d%02d%s", req.DocType.Step(), int(req.At.Month()), req.Exercice%100, padded)
	}
}

func orgUnit(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultOrgUnit
	}
	return code
}
