package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Worker is a background loop owned by the Manager
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Status is the state of one worker as reported by the health check
type Status struct {
	Name    string
	Running bool
	Err     error
}

// Manager starts workers together and stops the ones that started, newest first
type Manager struct {
	logger *zap.Logger

	mu      sync.Mutex
	workers []Worker
	status  map[string]*Status
	running bool
	cancel  context.CancelFunc
}

// NewManager creates an empty manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger,
		status: make(map[string]*Status),
	}
}

// Register adds a worker. Names must be unique.
func (m *Manager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, w)
	m.status[w.Name()] = &Status{Name: w.Name()}
}

// StartAll starts every worker. A worker that fails to start is recorded in
// its status and the others still start.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("workers already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for _, w := range m.workers {
		st := m.status[w.Name()]
		if err := w.Start(runCtx); err != nil {
			st.Running, st.Err = false, err
			m.logger.Error("Failed to start worker", zap.String("worker_name", w.Name()), zap.Error(err))
			continue
		}
		st.Running, st.Err = true, nil
	}
	m.logger.Info("Workers started", zap.Int("count", len(m.workers)))
	return nil
}

// StopAll stops the running workers in reverse registration order
func (m *Manager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	m.cancel()

	var failed []string
	for i := len(m.workers) - 1; i >= 0; i-- {
		w := m.workers[i]
		st := m.status[w.Name()]
		if !st.Running {
			continue
		}
		if err := w.Stop(); err != nil {
			st.Err = err
			failed = append(failed, w.Name())
			m.logger.Error("Failed to stop worker", zap.String("worker_name", w.Name()), zap.Error(err))
		}
		st.Running = false
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to stop workers: %s", strings.Join(failed, ", "))
	}
	return nil
}

// Statuses returns a copy of every worker status in registration order
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.workers))
	for _, w := range m.workers {
		out = append(out, *m.status[w.Name()])
	}
	return out
}

// Healthy reports whether the manager runs and every worker started
func (m *Manager) Healthy() (bool, string) {
	var down []string
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	for _, st := range m.Statuses() {
		if !st.Running {
			down = append(down, st.Name)
		}
	}
	switch {
	case !running:
		return false, "not started"
	case len(down) > 0:
		return false, "stopped: " + strings.Join(down, ", ")
	default:
		return true, ""
	}
}
