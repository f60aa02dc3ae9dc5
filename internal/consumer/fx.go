package consumer

import (
	"context"
	"time"

	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/pipeline"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("consumer",
	fx.Invoke(registerConsumers),
)

// registerConsumers starts one consumer on the usage topic and one on
// the retry topic. Both stop when the app does; a consumer error shuts
// the process down so the orchestration layer restarts it.
func registerConsumers(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg config.Config,
	orch *pipeline.Orchestrator,
	clk clock.Clock,
	log *zap.Logger,
) {
	retryWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.RetryTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}

	mainReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   cfg.Kafka.UsageTopic,
	})
	retryReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID + "-retry",
		Topic:   cfg.Kafka.RetryTopic,
	})

	main := New(Config{RedeliveryDelay: cfg.Kafka.RedeliveryDelay}, mainReader, retryWriter, orch, clk, log)
	retry := New(Config{RedeliveryDelay: cfg.Kafka.RedeliveryDelay, HonorNotBefore: true}, retryReader, retryWriter, orch, clk, log)

	runCtx, cancel := context.WithCancel(context.Background())

	run := func(name string, c *Consumer) {
		go func() {
			if err := c.Run(runCtx); err != nil {
				log.Error("consumer stopped", zap.String("consumer", name), zap.Error(err))
				_ = shutdowner.Shutdown()
			}
		}()
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			run("usage", main)
			run("retry", retry)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			_ = mainReader.Close()
			_ = retryReader.Close()
			return retryWriter.Close()
		},
	})
}
