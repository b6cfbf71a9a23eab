// Package memledger provides an in-memory implementation of scan.Ledger.
// A single mutex makes every Reserve a true check-and-set, so concurrent
// runs in one process race safely. Suitable for dev/testing and
// single-instance deployments.
package memledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/linnemanlabs/warden/internal/scan"
)

type pair struct {
	entityID string
	ruleID   string
}

type entry struct {
	rank    int
	alertID string
}

// Ledger holds deduplication entries in memory.
type Ledger struct {
	mu      sync.Mutex
	entries map[scan.LedgerKey]*entry
	byPair  map[pair]map[string]int   // (entity, rule) -> bucket -> rank
	byAlert map[string]scan.LedgerKey // alert ID -> key
}

// New initializes an empty in-memory Ledger.
func New() *Ledger {
	return &Ledger{
		entries: make(map[scan.LedgerKey]*entry),
		byPair:  make(map[pair]map[string]int),
		byAlert: make(map[string]scan.LedgerKey),
	}
}

// Reserve implements scan.Ledger.
func (l *Ledger) Reserve(_ context.Context, key scan.LedgerKey, rank int) (scan.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d := l.decide(key, rank)
	if d == scan.DecisionAlreadyHandled {
		return d, nil
	}

	l.entries[key] = &entry{rank: rank}
	p := pair{key.EntityID, key.RuleID}
	if l.byPair[p] == nil {
		l.byPair[p] = make(map[string]int)
	}
	l.byPair[p][key.Bucket] = rank
	return d, nil
}

// Peek implements scan.Ledger.
func (l *Ledger) Peek(_ context.Context, key scan.LedgerKey, rank int) (scan.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decide(key, rank), nil
}

// Attach implements scan.Ledger.
func (l *Ledger) Attach(_ context.Context, key scan.LedgerKey, alertID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return fmt.Errorf("attach: no ledger entry for %s", key)
	}
	e.alertID = alertID
	l.byAlert[alertID] = key
	return nil
}

// Release implements scan.Ledger.
func (l *Ledger) Release(_ context.Context, key scan.LedgerKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remove(key)
	return nil
}

// ReleaseAlert implements scan.Ledger.
func (l *Ledger) ReleaseAlert(_ context.Context, alertID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key, ok := l.byAlert[alertID]
	if !ok {
		return nil
	}
	l.remove(key)
	return nil
}

// decide computes the verdict for a key under the held lock.
func (l *Ledger) decide(key scan.LedgerKey, rank int) scan.Decision {
	if _, ok := l.entries[key]; ok {
		return scan.DecisionAlreadyHandled
	}

	buckets, ok := l.byPair[pair{key.EntityID, key.RuleID}]
	if !ok || len(buckets) == 0 {
		return scan.DecisionNew
	}
	for _, r := range buckets {
		if r <= rank {
			// An equal-or-more-urgent entry is already open.
			return scan.DecisionAlreadyHandled
		}
	}
	return scan.DecisionEscalated
}

func (l *Ledger) remove(key scan.LedgerKey) {
	e, ok := l.entries[key]
	if !ok {
		return
	}
	delete(l.entries, key)
	if e.alertID != "" {
		delete(l.byAlert, e.alertID)
	}
	p := pair{key.EntityID, key.RuleID}
	if buckets := l.byPair[p]; buckets != nil {
		delete(buckets, key.Bucket)
		if len(buckets) == 0 {
			delete(l.byPair, p)
		}
	}
}
