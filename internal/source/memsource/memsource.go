// Package memsource provides an in-memory implementation of domain.Reader.
// Suitable for dev/testing; collections are fixed at construction.
package memsource

import (
	"context"
	"sync"

	"github.com/linnemanlabs/warden/internal/domain"
)

// Reader serves entity collections from memory.
type Reader struct {
	mu   sync.RWMutex
	snap domain.Snapshot
}

// New initializes a Reader with the given snapshot contents.
func New(snap domain.Snapshot) *Reader {
	return &Reader{snap: snap}
}

// Replace swaps the entire snapshot (tests simulate upstream edits with it).
func (r *Reader) Replace(snap domain.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = snap
}

// ListAgents implements domain.Reader.
func (r *Reader) ListAgents(_ context.Context) ([]domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Agent(nil), r.snap.Agents...), nil
}

// ListLicenses implements domain.Reader.
func (r *Reader) ListLicenses(_ context.Context) ([]domain.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.License(nil), r.snap.Licenses...), nil
}

// ListContracts implements domain.Reader.
func (r *Reader) ListContracts(_ context.Context) ([]domain.CarrierContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.CarrierContract(nil), r.snap.Contracts...), nil
}

// ListClients implements domain.Reader.
func (r *Reader) ListClients(_ context.Context) ([]domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Client(nil), r.snap.Clients...), nil
}

// ListOpenOnboardingTasks implements domain.Reader.
func (r *Reader) ListOpenOnboardingTasks(_ context.Context) ([]domain.OnboardingTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.OnboardingTask(nil), r.snap.Onboarding...), nil
}
