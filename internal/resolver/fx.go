package resolver

import (
	"github.com/smallbiznis/meterbill/internal/config"
	pipelinedomain "github.com/smallbiznis/meterbill/internal/pipeline/domain"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("resolver",
	fx.Provide(func(cfg config.Config, lookup subscriptiondomain.Lookup, metrics pipelinedomain.Metrics, log *zap.Logger) *Resolver {
		return New(lookup, cfg.Vendor.Name, metrics, log)
	}),
)
