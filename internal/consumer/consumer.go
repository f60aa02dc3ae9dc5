// Package consumer reads usage records from Kafka and drives them
// through the submission pipeline, one record at a time per partition.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/meterbill/internal/clock"
	pipelinedomain "github.com/smallbiznis/meterbill/internal/pipeline/domain"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const headerNotBefore = "not-before"

// Processor is the pipeline entry point the consumer drives.
type Processor interface {
	Process(ctx context.Context, record usagedomain.UsageRecord) pipelinedomain.Result
}

type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type redeliveryWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	// RedeliveryDelay is how long a recoverable record waits on the
	// retry topic before it is processed again.
	RedeliveryDelay time.Duration

	// HonorNotBefore makes the consumer sleep until a message's
	// not-before header. Set on the retry-topic consumer only.
	HonorNotBefore bool
}

// Consumer commits a message only after its record reached a terminal
// outcome or was handed to the retry topic. A crash in between
// re-delivers the record, which is safe: event IDs are deterministic so
// the vendor deduplicates.
type Consumer struct {
	cfg     Config
	reader  fetcher
	retry   redeliveryWriter
	proc    Processor
	clock   clock.Clock
	log     *zap.Logger
	entropy *rand.Rand
}

func New(cfg Config, reader fetcher, retry redeliveryWriter, proc Processor, clk clock.Clock, log *zap.Logger) *Consumer {
	return &Consumer{
		cfg:     cfg,
		reader:  reader,
		retry:   retry,
		proc:    proc,
		clock:   clk,
		log:     log.Named("consumer"),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run consumes until the context ends. It never recovers panics: an
// uncommitted offset after a crash is the at-least-once guarantee.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		if err := c.handle(ctx, msg); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	deliveryID := ulid.MustNew(ulid.Timestamp(c.clock.Now()), c.entropy).String()
	log := c.log.With(
		zap.String("delivery_id", deliveryID),
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	if c.cfg.HonorNotBefore {
		if err := c.waitNotBefore(ctx, msg, log); err != nil {
			return err
		}
	}

	var record usagedomain.UsageRecord
	if err := json.Unmarshal(msg.Value, &record); err != nil {
		// Poison message: committing it is the only way forward.
		log.Error("undecodable usage record, dropping", zap.Error(err))
		return nil
	}

	res := c.proc.Process(ctx, record)
	if res.Redeliver {
		return c.redeliver(ctx, msg, record, log)
	}
	if res.Outcome != nil {
		log.Info("usage record finished",
			zap.String("usage_id", record.UsageID),
			zap.String("status", string(res.Outcome.Kind)),
			zap.String("error_code", string(res.Outcome.Code)),
		)
	}
	return nil
}

func (c *Consumer) waitNotBefore(ctx context.Context, msg kafka.Message, log *zap.Logger) error {
	for _, h := range msg.Headers {
		if h.Key != headerNotBefore {
			continue
		}
		notBefore, err := time.Parse(time.RFC3339, string(h.Value))
		if err != nil {
			log.Warn("invalid not-before header, processing immediately", zap.Error(err))
			return nil
		}
		if wait := notBefore.Sub(c.clock.Now()); wait > 0 {
			log.Debug("holding retried record", zap.Duration("wait", wait))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		return nil
	}
	return nil
}

// redeliver parks the record on the retry topic. A retry publish
// failure is returned so the offset stays uncommitted and the record is
// re-fetched instead of lost.
func (c *Consumer) redeliver(ctx context.Context, msg kafka.Message, record usagedomain.UsageRecord, log *zap.Logger) error {
	if c.retry == nil {
		return errors.New("redelivery requested but no retry topic configured")
	}
	notBefore := c.clock.Now().Add(c.cfg.RedeliveryDelay)
	out := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: headerNotBefore, Value: []byte(notBefore.Format(time.RFC3339))},
		},
	}
	if err := c.retry.WriteMessages(ctx, out); err != nil {
		return err
	}
	log.Info("usage record scheduled for re-delivery",
		zap.String("usage_id", record.UsageID),
		zap.Time("not_before", notBefore),
	)
	return nil
}
