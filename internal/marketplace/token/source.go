package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/meterbill/internal/clock"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
)

// HTTPSourceConfig configures the client-credentials token fetch.
type HTTPSourceConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type httpSource struct {
	cfg    HTTPSourceConfig
	client *http.Client
	clock  clock.Clock
}

// NewHTTPSource builds a Source that exchanges client credentials at
// the vendor's token endpoint.
func NewHTTPSource(cfg HTTPSourceConfig, clk clock.Clock) Source {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpSource{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		clock:  clk,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *httpSource) FetchToken(ctx context.Context) (marketplacedomain.Token, error) {
	values := url.Values{}
	values.Set("grant_type", "client_credentials")
	values.Set("client_id", s.cfg.ClientID)
	values.Set("client_secret", s.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		return marketplacedomain.Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return marketplacedomain.Token{}, fmt.Errorf("%w: %v", marketplacedomain.ErrTokenFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return marketplacedomain.Token{}, fmt.Errorf("%w: status %d", marketplacedomain.ErrTokenFetch, resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return marketplacedomain.Token{}, fmt.Errorf("%w: decode: %v", marketplacedomain.ErrTokenFetch, err)
	}
	if strings.TrimSpace(body.AccessToken) == "" {
		return marketplacedomain.Token{}, fmt.Errorf("%w: empty access token", marketplacedomain.ErrTokenFetch)
	}

	return marketplacedomain.Token{
		Value:     body.AccessToken,
		ExpiresAt: s.clock.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}, nil
}
