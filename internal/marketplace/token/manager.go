// Package token owns the marketplace access token shared by concurrent
// pipeline workers.
package token

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/meterbill/internal/clock"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	"go.uber.org/zap"
)

// Source fetches a fresh token from the vendor's auth endpoint.
type Source interface {
	FetchToken(ctx context.Context) (marketplacedomain.Token, error)
}

// Manager caches a token and its refresh cutoff. All access goes
// through one mutex so racing workers never trigger duplicate
// refreshes; the critical section is bounded by a single HTTP call.
type Manager struct {
	mu sync.Mutex

	source        Source
	clock         clock.Clock
	refreshPeriod time.Duration
	fraction      float64
	log           *zap.Logger

	token  marketplacedomain.Token
	cutoff time.Time
}

func NewManager(source Source, clk clock.Clock, refreshPeriod time.Duration, fraction float64, log *zap.Logger) *Manager {
	if fraction <= 0 || fraction >= 1 {
		fraction = 0.2
	}
	if refreshPeriod <= 0 {
		refreshPeriod = 10 * time.Minute
	}
	return &Manager{
		source:        source,
		clock:         clk,
		refreshPeriod: refreshPeriod,
		fraction:      fraction,
		log:           log.Named("marketplace.token"),
	}
}

// EnsureToken returns the cached token, refreshing it first when the
// cutoff has passed. The cutoff sits ahead of the real expiry by
// refreshPeriod*fraction so the token is renewed before it lapses.
func (m *Manager) EnsureToken(ctx context.Context) (marketplacedomain.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if !now.After(m.cutoff) {
		return m.token, nil
	}

	fetched, err := m.source.FetchToken(ctx)
	if err != nil {
		return marketplacedomain.Token{}, err
	}

	margin := time.Duration(float64(m.refreshPeriod) * m.fraction)
	m.token = fetched
	m.cutoff = fetched.ExpiresAt.Add(-margin)
	m.log.Debug("token refreshed", zap.Time("cutoff", m.cutoff))
	return m.token, nil
}

// ForceRefresh resets the cutoff so the next EnsureToken call performs
// a real fetch. Administrative operation; not on the hot path.
func (m *Manager) ForceRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoff = time.Time{}
}
