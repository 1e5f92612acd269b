package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/sygfp/internal/application/port"
	"github.com/garyjia/sygfp/internal/application/service"
	"github.com/garyjia/sygfp/internal/domain/entity"
	"github.com/garyjia/sygfp/internal/domain/workflow"
)

type stubDocs struct {
	port.DocumentRepository
	docs   []*entity.Document
	filter port.DocumentFilter
}

func (s *stubDocs) List(ctx context.Context, filter port.DocumentFilter) ([]*entity.Document, error) {
	s.filter = filter
	return s.docs, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	recipients []string
	title      string
	opts       service.NotifyOptions
}

func (n *recordingNotifier) Notify(ctx context.Context, recipients []string, title, message string, opts service.NotifyOptions) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{recipients: recipients, title: title, opts: opts})
}

func TestResumptionWorker_RunOnce(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	docs := &stubDocs{docs: []*entity.Document{
		{ID: "due", DocType: workflow.DocNoteSEF, Statut: workflow.StatusDiffere, CreatedBy: "u1", Demandeur: "u2", DeferMotif: "pièces", DeferResumptionDate: &past},
		{ID: "later", DocType: workflow.DocNoteSEF, Statut: workflow.StatusDiffere, CreatedBy: "u1", DeferResumptionDate: &future},
		{ID: "undated", DocType: workflow.DocEngagement, Statut: workflow.StatusDiffere, CreatedBy: "u3"},
	}}
	notifier := &recordingNotifier{}

	w := NewResumptionWorker(ResumptionWorkerConfig{PollInterval: time.Hour, BatchSize: 50}, docs, notifier, zap.NewNop())
	w.now = func() time.Time { return now }

	sent, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, workflow.StatusDiffere, docs.filter.Statut)
	assert.Equal(t, 50, docs.filter.Limit)

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, []string{"u1", "u2"}, notifier.calls[0].recipients)
	assert.Equal(t, "due", notifier.calls[0].opts.EntityID)

	t.Run("reminds once per resumption date", func(t *testing.T) {
		sent, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, sent)
	})

	t.Run("new date reminds again", func(t *testing.T) {
		newDate := now.Add(-time.Hour)
		docs.docs[0].DeferResumptionDate = &newDate
		sent, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sent)
		assert.Equal(t, 2, w.Sent())
	})
}

type failingWorker struct{ name string }

func (f *failingWorker) Start(ctx context.Context) error {
	return errors.New("port in use")
}

func (f *failingWorker) Stop() error {
	return nil
}

func (f *failingWorker) Name() string {
	return f.name
}

func TestManager_StartStop(t *testing.T) {
	notifier := &recordingNotifier{}
	w := NewResumptionWorker(ResumptionWorkerConfig{PollInterval: time.Hour}, &stubDocs{}, notifier, zap.NewNop())

	m := NewManager(zap.NewNop())
	m.Register(w)
	ok, detail := m.Healthy()
	assert.False(t, ok)
	assert.Equal(t, "not started", detail)

	require.NoError(t, m.StartAll(context.Background()))
	ok, _ = m.Healthy()
	assert.True(t, ok)
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.Statuses()[0].Running)
	require.NoError(t, m.StopAll())
}

func TestManager_FailedStartIsReported(t *testing.T) {
	w := NewResumptionWorker(ResumptionWorkerConfig{PollInterval: time.Hour}, &stubDocs{}, &recordingNotifier{}, zap.NewNop())

	m := NewManager(zap.NewNop())
	m.Register(w)
	m.Register(&failingWorker{name: "BrokenWorker"})

	require.NoError(t, m.StartAll(context.Background()))
	t.Cleanup(func() { _ = m.StopAll() })

	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Running)
	assert.False(t, statuses[1].Running)
	assert.EqualError(t, statuses[1].Err, "port in use")

	ok, detail := m.Healthy()
	assert.False(t, ok)
	assert.Equal(t, "stopped: BrokenWorker", detail)
}
