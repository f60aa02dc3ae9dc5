package ratelimit

import (
	"context"

	"github.com/smallbiznis/meterbill/internal/pipeline"
	"go.uber.org/fx"
)

var Module = fx.Module("ratelimit",
	fx.Provide(
		NewSubmitLimiter,
		func(l *SubmitLimiter) pipeline.Limiter { return l },
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, l *SubmitLimiter) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return l.Close()
		},
	})
}
