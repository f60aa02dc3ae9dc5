package token

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/meterbill/internal/clock"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	"go.uber.org/zap"
)

type sourceStub struct {
	mu      sync.Mutex
	calls   int
	token   marketplacedomain.Token
	err     error
	fetched func() marketplacedomain.Token
}

func (s *sourceStub) FetchToken(ctx context.Context) (marketplacedomain.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return marketplacedomain.Token{}, s.err
	}
	if s.fetched != nil {
		return s.fetched(), nil
	}
	return s.token, nil
}

func (s *sourceStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestEnsureTokenFetchesOnceBeforeCutoff(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	source := &sourceStub{token: marketplacedomain.Token{
		Value:     "tok-1",
		ExpiresAt: now.Add(time.Hour),
	}}
	manager := NewManager(source, clk, 10*time.Minute, 0.2, zap.NewNop())

	first, err := manager.EnsureToken(context.Background())
	if err != nil {
		t.Fatalf("ensure first: %v", err)
	}
	second, err := manager.EnsureToken(context.Background())
	if err != nil {
		t.Fatalf("ensure second: %v", err)
	}

	if first.Value != "tok-1" || second.Value != "tok-1" {
		t.Fatalf("unexpected tokens %q %q", first.Value, second.Value)
	}
	if source.Calls() != 1 {
		t.Fatalf("expected 1 fetch, got %d", source.Calls())
	}
}

func TestEnsureTokenRefreshesAfterCutoff(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	source := &sourceStub{}
	source.fetched = func() marketplacedomain.Token {
		return marketplacedomain.Token{Value: "tok", ExpiresAt: clk.Now().Add(time.Hour)}
	}
	manager := NewManager(source, clk, 10*time.Minute, 0.2, zap.NewNop())

	if _, err := manager.EnsureToken(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	// Cutoff is expiry minus 2 minutes; step past it.
	clk.Advance(59 * time.Minute)
	if _, err := manager.EnsureToken(context.Background()); err != nil {
		t.Fatalf("ensure after cutoff: %v", err)
	}
	if source.Calls() != 2 {
		t.Fatalf("expected 2 fetches, got %d", source.Calls())
	}
}

func TestForceRefreshInvalidatesCachedToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	source := &sourceStub{token: marketplacedomain.Token{
		Value:     "tok",
		ExpiresAt: now.Add(time.Hour),
	}}
	manager := NewManager(source, clk, 10*time.Minute, 0.2, zap.NewNop())

	if _, err := manager.EnsureToken(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	manager.ForceRefresh()
	if _, err := manager.EnsureToken(context.Background()); err != nil {
		t.Fatalf("ensure after force refresh: %v", err)
	}
	if source.Calls() != 2 {
		t.Fatalf("expected 2 fetches, got %d", source.Calls())
	}
}

func TestConcurrentEnsureSerializesRefresh(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	source := &sourceStub{token: marketplacedomain.Token{
		Value:     "tok",
		ExpiresAt: now.Add(time.Hour),
	}}
	manager := NewManager(source, clk, 10*time.Minute, 0.2, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = manager.EnsureToken(context.Background())
		}()
	}
	wg.Wait()

	if source.Calls() != 1 {
		t.Fatalf("expected one refresh across concurrent callers, got %d", source.Calls())
	}
}
