package memory

import (
	"context"
	"sync"
)

// Ledger is an append-only in-process membership set.
type Ledger struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{members: make(map[string]struct{})}
}

// Mark adds id to the set.
func (l *Ledger) Mark(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.members[id] = struct{}{}
	return nil
}

// ContainsAny returns the subset of ids already in the set.
func (l *Ledger) ContainsAny(_ context.Context, ids []string) (map[string]struct{}, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := l.members[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// IsMember reports whether id is in the set.
func (l *Ledger) IsMember(_ context.Context, id string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.members[id]
	return ok, nil
}

// Len returns the number of members.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.members)
}
