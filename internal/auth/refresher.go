package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/metrics"
)

// DefaultRefreshInterval renews tokens shortly before their one hour lifetime ends.
const DefaultRefreshInterval = 58 * time.Minute

// Refresher owns the current token and implements catalog.TokenSource.
type Refresher struct {
	provider Provider
	interval time.Duration
	logger   *zap.Logger

	mu         sync.RWMutex
	token      string
	generation uint64

	refreshMu sync.Mutex
}

// NewRefresher wraps provider. A non-positive interval uses DefaultRefreshInterval.
func NewRefresher(provider Provider, interval time.Duration, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		provider: provider,
		interval: interval,
		logger:   logger.Named("auth"),
	}
}

// Token returns the current token, fetching one on first use.
func (r *Refresher) Token(ctx context.Context) (string, error) {
	r.mu.RLock()
	token, gen := r.token, r.generation
	r.mu.RUnlock()
	if token != "" {
		return token, nil
	}
	if err := r.refreshFrom(ctx, gen); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.token, nil
}

// Refresh replaces the token unless another caller already replaced it while
// this one waited.
func (r *Refresher) Refresh(ctx context.Context) error {
	return r.refreshFrom(ctx, r.Generation())
}

// Generation counts successful refreshes.
func (r *Refresher) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

func (r *Refresher) refreshFrom(ctx context.Context, observed uint64) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	if r.Generation() != observed {
		return nil
	}
	start := time.Now()
	token, err := r.provider.Fetch(ctx)
	metrics.ObserveTokenRefresh(err)
	if err != nil {
		r.logger.Warn("token refresh failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return fmt.Errorf("refresh token: %w", err)
	}

	r.mu.Lock()
	r.token = token
	r.generation++
	gen := r.generation
	r.mu.Unlock()
	r.logger.Info("token refreshed", zap.Uint64("generation", gen), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Run refreshes the token every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Refresh(ctx)
		}
	}
}
