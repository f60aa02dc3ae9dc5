package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	"github.com/smallbiznis/meterbill/internal/marketplace/token"
	"go.uber.org/zap"
)

type countingSource struct {
	fetches int
}

func (s *countingSource) FetchToken(ctx context.Context) (marketplacedomain.Token, error) {
	s.fetches++
	return marketplacedomain.Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func testEngine(t *testing.T) (*countingSource, *token.Manager, http.Handler) {
	t.Helper()
	source := &countingSource{}
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tokens := token.NewManager(source, clk, 10*time.Minute, 0.2, zap.NewNop())
	engine := NewEngine(config.Config{Environment: "test"}, tokens, zap.NewNop())
	return source, tokens, engine
}

func TestHealthEndpoint(t *testing.T) {
	_, _, engine := testEngine(t)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTokenRefreshInvalidatesCache(t *testing.T) {
	source, tokens, engine := testEngine(t)

	if _, err := tokens.EnsureToken(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if source.fetches != 1 {
		t.Fatalf("expected 1 fetch, got %d", source.fetches)
	}

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/token/refresh", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if _, err := tokens.EnsureToken(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if source.fetches != 2 {
		t.Fatalf("expected refetch after admin refresh, got %d fetches", source.fetches)
	}
}
