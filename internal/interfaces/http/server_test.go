package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appwf "github.com/garyjia/sygfp/internal/application/workflow"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
	"github.com/garyjia/sygfp/internal/infrastructure/storage"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// fakeEngine records the actor of each call. Unset funcs return ErrNotFound.
type fakeEngine struct {
	appwf.Engine
	get      func(id string) (*entity.Document, error)
	submit   func(id, actor string) (*appwf.Outcome, error)
	validate func(id, actor, comment string) (*appwf.Outcome, error)
	reject   func(id, actor, motif string) (*appwf.Outcome, error)
	defer_   func(id, actor, motif string, at *time.Time) (*appwf.Outcome, error)
	prereq   func(step workflow.DocType, dossierID string, montant decimal.Decimal) (workflow.PrerequisiteResult, error)
}

func (f *fakeEngine) Get(ctx context.Context, id string) (*entity.Document, error) {
	if f.get == nil {
		return nil, fmt.Errorf("%w: document %s", workflow.ErrNotFound, id)
	}
	return f.get(id)
}

func (f *fakeEngine) Submit(ctx context.Context, id, actor string) (*appwf.Outcome, error) {
	return f.submit(id, actor)
}

func (f *fakeEngine) Validate(ctx context.Context, id, actor, comment string) (*appwf.Outcome, error) {
	return f.validate(id, actor, comment)
}

func (f *fakeEngine) Reject(ctx context.Context, id, actor, motif string) (*appwf.Outcome, error) {
	return f.reject(id, actor, motif)
}

func (f *fakeEngine) Defer(ctx context.Context, id, actor, motif string, at *time.Time) (*appwf.Outcome, error) {
	return f.defer_(id, actor, motif, at)
}

func (f *fakeEngine) CheckPrerequisites(ctx context.Context, step workflow.DocType, dossierID string, montant decimal.Decimal) (workflow.PrerequisiteResult, error) {
	return f.prereq(step, dossierID, montant)
}

const testSecret = "test-jwt-secret"

func newTestServer(t *testing.T, deps Deps) (*Server, *TokenIssuer) {
	t.Helper()
	tokens := NewTokenIssuer(testSecret, "sygfp", time.Hour)
	deps.Tokens = tokens
	return NewServer(DefaultServerConfig(), deps, nopLogger{}), tokens
}

func do(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestServer(t, Deps{
		Health: func(ctx context.Context) (bool, interface{}) { return true, map[string]bool{"database": true} },
	})

	w := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)

	s, _ = newTestServer(t, Deps{
		Health: func(ctx context.Context) (bool, interface{}) { return false, nil },
	})
	w = do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestJWTAuth(t *testing.T) {
	engine := &fakeEngine{}
	s, tokens := newTestServer(t, Deps{Engine: engine})

	t.Run("missing token", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/api/v1/documents/d-1", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenIssuer("another-secret", "sygfp", time.Hour)
		token, err := other.Issue("u-1")
		require.NoError(t, err)
		w := do(t, s, http.MethodGet, "/api/v1/documents/d-1", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewTokenIssuer(testSecret, "sygfp", time.Minute)
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, err := old.Issue("u-1")
		require.NoError(t, err)
		w := do(t, s, http.MethodGet, "/api/v1/documents/d-1", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenIssuer(testSecret, "elsewhere", time.Hour)
		token, err := other.Issue("u-1")
		require.NoError(t, err)
		w := do(t, s, http.MethodGet, "/api/v1/documents/d-1", token, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token reaches the handler", func(t *testing.T) {
		token, err := tokens.Issue("u-1")
		require.NoError(t, err)
		w := do(t, s, http.MethodGet, "/api/v1/documents/d-1", token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTransitions(t *testing.T) {
	doc := &entity.Document{ID: "d-1", DocType: workflow.DocNoteSEF, Statut: workflow.StatusSoumis}

	var gotActor, gotComment string
	engine := &fakeEngine{
		submit: func(id, actor string) (*appwf.Outcome, error) {
			gotActor = actor
			return &appwf.Outcome{Document: doc}, nil
		},
		validate: func(id, actor, comment string) (*appwf.Outcome, error) {
			gotComment = comment
			valid := *doc
			valid.Statut = workflow.StatusValide
			return &appwf.Outcome{
				Document: &valid,
				Warnings: []error{fmt.Errorf("%w: dossier", workflow.ErrDownstreamCreationFailed)},
			}, nil
		},
		reject: func(id, actor, motif string) (*appwf.Outcome, error) {
			if strings.TrimSpace(motif) == "" {
				return nil, workflow.ErrMotifRequired
			}
			return nil, fmt.Errorf("%w: statut changed", workflow.ErrConcurrentModification)
		},
		defer_: func(id, actor, motif string, at *time.Time) (*appwf.Outcome, error) {
			return nil, errors.New("disk on fire")
		},
	}
	s, tokens := newTestServer(t, Deps{Engine: engine})
	token, err := tokens.Issue("dg-user")
	require.NoError(t, err)

	t.Run("submit uses the token subject as actor", func(t *testing.T) {
		w := do(t, s, http.MethodPost, "/api/v1/documents/d-1/submit", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "dg-user", gotActor)
	})

	t.Run("validate returns warnings", func(t *testing.T) {
		w := do(t, s, http.MethodPost, "/api/v1/documents/d-1/validate", token, CommentRequest{Comment: "ok"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", gotComment)

		var body struct {
			Data OutcomeResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, workflow.StatusValide, body.Data.Document.Statut)
		require.Len(t, body.Data.Warnings, 1)
	})

	t.Run("reject without motif", func(t *testing.T) {
		w := do(t, s, http.MethodPost, "/api/v1/documents/d-1/reject", token, MotifRequest{})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, decode(t, w).Error, "motif")
	})

	t.Run("reject on a stale document", func(t *testing.T) {
		w := do(t, s, http.MethodPost, "/api/v1/documents/d-1/reject", token, MotifRequest{Motif: "pièces manquantes"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("internal errors are hidden", func(t *testing.T) {
		w := do(t, s, http.MethodPost, "/api/v1/documents/d-1/defer", token, MotifRequest{Motif: "budget"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal error", decode(t, w).Error)
	})
}

func TestCheckPrerequisites(t *testing.T) {
	engine := &fakeEngine{
		prereq: func(step workflow.DocType, dossierID string, montant decimal.Decimal) (workflow.PrerequisiteResult, error) {
			return workflow.PrerequisiteResult{Valid: montant.LessThan(decimal.NewFromInt(5_000_000)), Code: "MARCHE_REQUIRED"}, nil
		},
	}
	s, tokens := newTestServer(t, Deps{Engine: engine})
	token, err := tokens.Issue("u-1")
	require.NoError(t, err)

	w := do(t, s, http.MethodGet, "/api/v1/prerequisites?doc_type=engagement&dossier_id=x&montant=7000000", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)

	w = do(t, s, http.MethodGet, "/api/v1/prerequisites?doc_type=facture", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodGet, "/api/v1/prerequisites?doc_type=engagement&montant=abc", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadFile(t *testing.T) {
	files := storage.NewLocalStorage(t.TempDir(), "http://example.test", "url-secret", zap.NewNop())
	key := "2025/engagement/eng-1/devis.pdf"
	content := []byte("%PDF-1.4")
	require.NoError(t, files.Put(context.Background(), key, bytes.NewReader(content), int64(len(content)), "application/pdf"))

	s, _ := newTestServer(t, Deps{Files: files})

	link, err := files.URL(context.Background(), key, time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)

	w := do(t, s, http.MethodGet, u.RequestURI(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "devis.pdf")

	q := u.Query()
	q.Set("sig", "forged")
	w = do(t, s, http.MethodGet, "/api/v1/files?"+q.Encode(), "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{workflow.ErrNotAuthenticated, http.StatusUnauthorized},
		{fmt.Errorf("wrap: %w", workflow.ErrNotAuthorized), http.StatusForbidden},
		{&workflow.ValidationError{Missing: []string{"objet"}}, http.StatusUnprocessableEntity},
		{&workflow.PrerequisiteError{Code: "NOTE_REQUIRED"}, http.StatusUnprocessableEntity},
		{workflow.ErrInvalidTransition, http.StatusConflict},
		{workflow.ErrGuardFailed, http.StatusConflict},
		{workflow.ErrReferenceAllocationFailed, http.StatusServiceUnavailable},
		{workflow.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
