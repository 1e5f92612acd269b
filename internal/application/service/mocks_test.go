package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/event"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

type testLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *testLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *testLogger) Error(msg string, keysAndValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

type mockDocRepo struct {
	docs       map[string]*entity.Document
	setDossier func(ctx context.Context, documentID, dossierID string) error
}

func newMockDocRepo(docs ...*entity.Document) *mockDocRepo {
	m := &mockDocRepo{docs: make(map[string]*entity.Document)}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *mockDocRepo) Create(ctx context.Context, doc *entity.Document) error {
	m.docs[doc.ID] = doc
	return nil
}

func (m *mockDocRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	return m.docs[id], nil
}

func (m *mockDocRepo) GetByReference(ctx context.Context, reference string) (*entity.Document, error) {
	for _, d := range m.docs {
		if d.Reference == reference {
			return d, nil
		}
	}
	return nil, nil
}

func (m *mockDocRepo) List(ctx context.Context, filter port.DocumentFilter) ([]*entity.Document, error) {
	var out []*entity.Document
	for _, d := range m.docs {
		if filter.DocType == "" || d.DocType == filter.DocType {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDocRepo) ListByDossier(ctx context.Context, dossierID string) ([]*entity.Document, error) {
	var out []*entity.Document
	for _, d := range m.docs {
		if d.DossierID == dossierID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDocRepo) UpdateDraft(ctx context.Context, doc *entity.Document) error {
	m.docs[doc.ID] = doc
	return nil
}

func (m *mockDocRepo) ApplyTransition(ctx context.Context, w port.TransitionWrite) error {
	m.docs[w.Document.ID] = w.Document
	return nil
}

func (m *mockDocRepo) SetDossier(ctx context.Context, documentID, dossierID string) error {
	if m.setDossier != nil {
		return m.setDossier(ctx, documentID, dossierID)
	}
	if d, ok := m.docs[documentID]; ok {
		d.DossierID = dossierID
	}
	return nil
}

type mockHistoryRepo struct {
	createFunc func(ctx context.Context, entry *entity.HistoryEntry) error
	entries    []*entity.HistoryEntry
}

func (m *mockHistoryRepo) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, entry)
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockHistoryRepo) ListByDocument(ctx context.Context, documentID string) ([]*entity.HistoryEntry, error) {
	return m.entries, nil
}

type mockDossierRepo struct {
	createFunc func(ctx context.Context, d *entity.Dossier) error
	dossiers   map[string]*entity.Dossier
	etapes     map[string]*entity.DossierEtape
}

func newMockDossierRepo(dossiers ...*entity.Dossier) *mockDossierRepo {
	m := &mockDossierRepo{
		dossiers: make(map[string]*entity.Dossier),
		etapes:   make(map[string]*entity.DossierEtape),
	}
	for _, d := range dossiers {
		m.dossiers[d.ID] = d
	}
	return m
}

func (m *mockDossierRepo) Create(ctx context.Context, d *entity.Dossier) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, d)
	}
	m.dossiers[d.ID] = d
	return nil
}

func (m *mockDossierRepo) GetByID(ctx context.Context, id string) (*entity.Dossier, error) {
	return m.dossiers[id], nil
}

func (m *mockDossierRepo) GetByNumero(ctx context.Context, numero string) (*entity.Dossier, error) {
	for _, d := range m.dossiers {
		if d.Numero == numero {
			return d, nil
		}
	}
	return nil, nil
}

func (m *mockDossierRepo) Update(ctx context.Context, d *entity.Dossier) error {
	m.dossiers[d.ID] = d
	return nil
}

func (m *mockDossierRepo) UpsertEtape(ctx context.Context, e *entity.DossierEtape) error {
	m.etapes[e.DossierID+"/"+string(e.TypeEtape)] = e
	return nil
}

func (m *mockDossierRepo) ListEtapes(ctx context.Context, dossierID string) ([]*entity.DossierEtape, error) {
	var out []*entity.DossierEtape
	for _, e := range m.etapes {
		if e.DossierID == dossierID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockNotificationRepo struct {
	insertFunc func(ctx context.Context, n *entity.Notification) error
	inserted   []*entity.Notification
}

func (m *mockNotificationRepo) Insert(ctx context.Context, n *entity.Notification) error {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, n)
	}
	m.inserted = append(m.inserted, n)
	return nil
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	var out []*entity.Notification
	for _, n := range m.inserted {
		if n.UserID == userID && (!unreadOnly || !n.IsRead()) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id int64, userID string) error {
	return nil
}

func (m *mockNotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	list, _ := m.ListByUser(ctx, userID, true, 0)
	return len(list), nil
}

func (m *mockNotificationRepo) recipients() []string {
	var out []string
	for _, n := range m.inserted {
		out = append(out, n.UserID)
	}
	return out
}

type mockIdentity struct {
	users map[string]*entity.User
	roles map[string][]workflow.Role
}

func (m *mockIdentity) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	return m.users[userID], nil
}

func (m *mockIdentity) GetUserRoles(ctx context.Context, userID string) ([]workflow.Role, error) {
	return m.roles[userID], nil
}

func (m *mockIdentity) ListUsersByRoles(ctx context.Context, roles []workflow.Role) ([]*entity.User, error) {
	var out []*entity.User
	for id, held := range m.roles {
		for _, r := range roles {
			if workflow.ContainsRole(held, r) {
				out = append(out, m.users[id])
				break
			}
		}
	}
	return out, nil
}

type mockPushSender struct {
	sendFunc func(ctx context.Context, user *entity.User, title, message string) error
	sent     []string
}

func (m *mockPushSender) Send(ctx context.Context, user *entity.User, title, message string) error {
	if m.sendFunc != nil {
		return m.sendFunc(ctx, user, title, message)
	}
	m.sent = append(m.sent, user.ID)
	return nil
}

type mockTxManager struct {
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

type mockAllocator struct {
	nextFunc func(ctx context.Context, key port.SequenceKey) (int64, error)
	n        int64
}

func (m *mockAllocator) Next(ctx context.Context, key port.SequenceKey) (int64, error) {
	if m.nextFunc != nil {
		return m.nextFunc(ctx, key)
	}
	m.n++
	return m.n, nil
}

type mockAttachmentRepo struct {
	createFunc  func(ctx context.Context, att *entity.Attachment) error
	attachments map[string]*entity.Attachment
}

func (m *mockAttachmentRepo) Create(ctx context.Context, att *entity.Attachment) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, att)
	}
	m.attachments[att.ID] = att
	return nil
}

func (m *mockAttachmentRepo) GetByID(ctx context.Context, id string) (*entity.Attachment, error) {
	return m.attachments[id], nil
}

func (m *mockAttachmentRepo) ListByDocument(ctx context.Context, documentID string) ([]*entity.Attachment, error) {
	var out []*entity.Attachment
	for _, a := range m.attachments {
		if a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAttachmentRepo) Delete(ctx context.Context, id string) error {
	delete(m.attachments, id)
	return nil
}

type mockBlobStorage struct {
	blobs map[string][]byte
}

func (m *mockBlobStorage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.blobs[key] = data
	return nil
}

func (m *mockBlobStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.blobs[key])), nil
}

func (m *mockBlobStorage) Delete(ctx context.Context, key string) error {
	delete(m.blobs, key)
	return nil
}

func (m *mockBlobStorage) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://files.test/" + key, nil
}

type mockDefinitionRepo struct {
	listActiveFunc func(ctx context.Context) ([]*entity.WorkflowDefinition, error)
}

func (m *mockDefinitionRepo) ListActive(ctx context.Context) ([]*entity.WorkflowDefinition, error) {
	return m.listActiveFunc(ctx)
}

func (m *mockDefinitionRepo) GetByEntityType(ctx context.Context, entityType string) (*entity.WorkflowDefinition, error) {
	return nil, nil
}

func (m *mockDefinitionRepo) ListActions(ctx context.Context) ([]*entity.WfAction, error) {
	return nil, nil
}

type eventRecorder struct {
	events []*event.Event
}

func (r *eventRecorder) publish(ctx context.Context, evt *event.Event) {
	r.events = append(r.events, evt)
}
