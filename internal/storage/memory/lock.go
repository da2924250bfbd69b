package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
	"github.com/JakeFAU/catalog-crawler/internal/clock/system"
)

// Lock is an in-process lease table with clock-driven expiry.
type Lock struct {
	mu     sync.Mutex
	leases map[string]time.Time
	clock  catalog.Clock
}

// NewLock constructs a Lock. A nil clock uses the system clock.
func NewLock(clock catalog.Clock) *Lock {
	if clock == nil {
		clock = system.New()
	}
	return &Lock{
		leases: make(map[string]time.Time),
		clock:  clock,
	}
}

// TryAcquire sets the lease when absent or expired.
func (l *Lock) TryAcquire(_ context.Context, id string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if expiry, held := l.leases[id]; held && now.Before(expiry) {
		return false, nil
	}
	l.leases[id] = now.Add(ttl)
	return true, nil
}

// Release drops the lease unconditionally.
func (l *Lock) Release(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, id)
	return nil
}
