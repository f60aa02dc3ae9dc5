package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/meterbill/internal/clock"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	"github.com/smallbiznis/meterbill/internal/marketplace/token"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticSource struct {
	token marketplacedomain.Token
	calls int
}

func (s *staticSource) FetchToken(ctx context.Context) (marketplacedomain.Token, error) {
	s.calls++
	return s.token, nil
}

func newTestClient(t *testing.T, server *httptest.Server) (*Client, *staticSource) {
	t.Helper()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	source := &staticSource{token: marketplacedomain.Token{
		Value:     "test-token",
		ExpiresAt: now.Add(time.Hour),
	}}
	manager := token.NewManager(source, clock.NewFakeClock(now), 10*time.Minute, 0.2, zap.NewNop())
	return New(Config{BaseURL: server.URL}, manager, zap.NewNop()), source
}

func TestPostJSONAttachesBearer(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	var out map[string]string
	require.NoError(t, c.PostJSON(context.Background(), "/submit", map[string]string{"k": "v"}, &out))
	require.Equal(t, "Bearer test-token", gotAuth)
	require.Equal(t, "accepted", out["status"])
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c, source := newTestClient(t, server)
	err := c.PostJSON(context.Background(), "/submit", map[string]string{}, nil)
	require.ErrorIs(t, err, marketplacedomain.ErrUnauthorized)

	// A follow-up call must fetch a fresh token.
	err = c.PostJSON(context.Background(), "/submit", map[string]string{}, nil)
	require.Error(t, err)
	require.Equal(t, 2, source.calls)
}

func TestNon2xxIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server)
	err := c.GetJSON(context.Background(), "/status/abc", &struct{}{})
	require.Error(t, err)
}
