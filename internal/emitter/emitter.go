// Package emitter publishes terminal pipeline outcomes to Kafka.
package emitter

import (
	"context"
	"encoding/json"
	"time"

	pipelinedomain "github.com/smallbiznis/meterbill/internal/pipeline/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// writer is the slice of kafka.Writer the emitter needs; tests swap in
// an in-memory one.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Emitter writes one message per Outcome, keyed by usage ID so all
// outcomes for a record land on the same partition. Publish failures
// are logged and dropped: the outcome stream is observability, not the
// commit point.
type Emitter struct {
	writer writer
	log    *zap.Logger
}

func New(brokers []string, topic string, log *zap.Logger) *Emitter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Emitter{writer: w, log: log.Named("emitter")}
}

func newWithWriter(w writer, log *zap.Logger) *Emitter {
	return &Emitter{writer: w, log: log.Named("emitter")}
}

func (e *Emitter) Emit(ctx context.Context, outcome pipelinedomain.Outcome) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		e.log.Error("marshal outcome", zap.String("usage_id", outcome.UsageID), zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(outcome.UsageID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(outcome.Kind)},
		},
	}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		e.log.Error("publish outcome",
			zap.String("usage_id", outcome.UsageID),
			zap.String("status", string(outcome.Kind)),
			zap.Error(err),
		)
	}
}

func (e *Emitter) Close() error {
	return e.writer.Close()
}
