package emitter

import (
	"context"

	"github.com/smallbiznis/meterbill/internal/config"
	pipelinedomain "github.com/smallbiznis/meterbill/internal/pipeline/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("emitter",
	fx.Provide(
		provideEmitter,
		func(e *Emitter) pipelinedomain.Emitter { return e },
	),
)

func provideEmitter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *Emitter {
	e := New(cfg.Kafka.Brokers, cfg.Kafka.OutcomeTopic, log)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return e.Close()
		},
	})
	return e
}
