package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pipelinedomain "github.com/smallbiznis/meterbill/internal/pipeline/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type memWriter struct {
	msgs []kafka.Message
	err  error
}

func (m *memWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *memWriter) Close() error { return nil }

func sampleOutcome() pipelinedomain.Outcome {
	return pipelinedomain.Outcome{
		UsageID:    "usage-1",
		OrgID:      "org-1",
		ProductTag: "rosa",
		Metric:     "Cores",
		Vendor:     "redhat",
		Kind:       pipelinedomain.OutcomeSucceeded,
		OccurredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEmitWritesKeyedMessage(t *testing.T) {
	w := &memWriter{}
	e := newWithWriter(w, zap.NewNop())

	e.Emit(context.Background(), sampleOutcome())

	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "usage-1" {
		t.Fatalf("expected key usage-1, got %s", msg.Key)
	}

	var got pipelinedomain.Outcome
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != pipelinedomain.OutcomeSucceeded || got.Vendor != "redhat" {
		t.Fatalf("payload mismatch: %+v", got)
	}
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	w := &memWriter{err: errors.New("broker down")}
	e := newWithWriter(w, zap.NewNop())

	// Must not panic or propagate; the pipeline already reached its
	// terminal state.
	e.Emit(context.Background(), sampleOutcome())
}
