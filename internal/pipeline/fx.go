package pipeline

import (
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/mapper"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("pipeline",
	fx.Provide(
		provideMapper,
		provideConfig,
		New,
	),
)

func provideMapper(adapter marketplacedomain.Adapter, cfg config.Config, log *zap.Logger) *mapper.Mapper {
	return mapper.New(adapter, cfg.Pipeline.Granularity, log)
}

func provideConfig(cfg config.Config) Config {
	return Config{
		UsageWindow:   cfg.Pipeline.UsageWindow,
		VerifyBatches: cfg.Pipeline.VerifyBatches,
		Submit: BackoffConfig{
			InitialInterval: cfg.Pipeline.SubmitInitialInterval,
			Multiplier:      cfg.Pipeline.SubmitMultiplier,
			MaxInterval:     cfg.Pipeline.SubmitMaxInterval,
			MaxAttempts:     cfg.Pipeline.SubmitMaxAttempts,
		},
		Poll: BackoffConfig{
			InitialInterval: cfg.Pipeline.PollInitialInterval,
			Multiplier:      cfg.Pipeline.PollMultiplier,
			MaxInterval:     cfg.Pipeline.PollMaxInterval,
			MaxAttempts:     cfg.Pipeline.PollMaxAttempts,
		},
	}
}
