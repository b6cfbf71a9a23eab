// Package memstore provides in-memory implementations of the scan store
// interfaces (alerts, tasks, run summaries). Suitable for dev/testing.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/warden/internal/scan"
)

// Store holds alerts, tasks, and run summaries in memory.
type Store struct {
	mu     sync.RWMutex
	alerts map[string]*scan.Alert
	tasks  map[string]*scan.Task
	runs   map[string]*scan.RunSummary
	now    func() time.Time
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		alerts: make(map[string]*scan.Alert),
		tasks:  make(map[string]*scan.Task),
		runs:   make(map[string]*scan.RunSummary),
		now:    time.Now,
	}
}

// CreateAlert stores a copy of the alert.
func (s *Store) CreateAlert(_ context.Context, a *scan.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.alerts[a.ID] = &cp
	return nil
}

// ListOpenAlerts returns copies of all unresolved alerts.
func (s *Store) ListOpenAlerts(_ context.Context) ([]scan.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scan.Alert
	for _, a := range s.alerts {
		if a.ResolvedAt == nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

// ResolveAlert marks an alert resolved. Returns false if the alert is
// missing or already resolved.
func (s *Store) ResolveAlert(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.ResolvedAt != nil {
		return false, nil
	}
	t := s.now()
	a.ResolvedAt = &t
	return true, nil
}

// CreateTask stores a copy of the task.
func (s *Store) CreateTask(_ context.Context, t *scan.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

// PutRun stores a copy of the run summary.
func (s *Store) PutRun(_ context.Context, r *scan.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.runs[r.RunID] = &cp
	return nil
}

// GetRun retrieves a run summary by ID. Returns a copy.
func (s *Store) GetRun(_ context.Context, id string) (*scan.RunSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}
