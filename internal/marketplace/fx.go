// Package marketplace wires the vendor-facing submission stack: token
// source, token manager, HTTP client and the configured vendor adapter.
package marketplace

import (
	"fmt"

	"github.com/smallbiznis/meterbill/internal/catalog"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/marketplace/adapters/azure"
	"github.com/smallbiznis/meterbill/internal/marketplace/adapters/redhat"
	"github.com/smallbiznis/meterbill/internal/marketplace/client"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	"github.com/smallbiznis/meterbill/internal/marketplace/token"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("marketplace",
	fx.Provide(
		provideTokenSource,
		provideTokenManager,
		provideClient,
		provideAdapter,
	),
)

func provideTokenSource(cfg config.Config, clk clock.Clock) token.Source {
	return token.NewHTTPSource(token.HTTPSourceConfig{
		TokenURL:     cfg.Vendor.TokenURL,
		ClientID:     cfg.Vendor.ClientID,
		ClientSecret: cfg.Vendor.ClientSecret,
		Timeout:      cfg.Vendor.Timeout,
	}, clk)
}

func provideTokenManager(source token.Source, clk clock.Clock, cfg config.Config, log *zap.Logger) *token.Manager {
	return token.NewManager(source, clk, cfg.Vendor.TokenRefreshPeriod, cfg.Vendor.TokenRefreshFraction, log)
}

func provideClient(cfg config.Config, tokens *token.Manager, log *zap.Logger) *client.Client {
	return client.New(client.Config{
		BaseURL: cfg.Vendor.BaseURL,
		Timeout: cfg.Vendor.Timeout,
	}, tokens, log)
}

func provideAdapter(cfg config.Config, c *client.Client, cat *catalog.Holder) (marketplacedomain.Adapter, error) {
	switch cfg.Vendor.Name {
	case redhat.VendorName:
		return redhat.New(redhat.Config{
			SubmitPath:       cfg.Vendor.SubmitPath,
			StatusPath:       cfg.Vendor.StatusPath,
			AmendmentMarkers: cfg.Vendor.AmendmentMarkers,
		}, c, cat), nil
	case azure.VendorName:
		return azure.New(azure.Config{
			SubmitPath:       cfg.Vendor.SubmitPath,
			StatusPath:       cfg.Vendor.StatusPath,
			AmendmentMarkers: cfg.Vendor.AmendmentMarkers,
		}, c, cat), nil
	default:
		return nil, fmt.Errorf("unsupported vendor %q", cfg.Vendor.Name)
	}
}
