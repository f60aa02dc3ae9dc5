// Package pipeline drives one usage record from validated input to a
// terminal outcome: map, resolve, submit, verify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/mapper"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	pipelinedomain "github.com/smallbiznis/meterbill/internal/pipeline/domain"
	"github.com/smallbiznis/meterbill/internal/resolver"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"go.uber.org/zap"
)

// errStillInProgress drives the poll loop: returning it from the poll
// operation makes the retry policy re-poll.
var errStillInProgress = errors.New("batch_still_in_progress")

// Limiter throttles outbound submissions. Implementations fail open.
type Limiter interface {
	Wait(ctx context.Context, vendor string) error
}

type nopLimiter struct{}

func (nopLimiter) Wait(context.Context, string) error { return nil }

// Config parameterizes the orchestrator.
type Config struct {
	// UsageWindow bounds how long a record with no matching subscription
	// stays recoverable, measured from its snapshot time.
	UsageWindow   time.Duration
	VerifyBatches bool

	Submit BackoffConfig
	Poll   BackoffConfig
}

// Orchestrator runs the per-record state machine. Stateless across
// calls; safe for use from a single consumer goroutine per partition.
type Orchestrator struct {
	cfg      Config
	adapter  marketplacedomain.Adapter
	mapper   *mapper.Mapper
	resolver *resolver.Resolver
	emitter  pipelinedomain.Emitter
	metrics  pipelinedomain.Metrics
	limiter  Limiter
	clock    clock.Clock
	log      *zap.Logger
}

func New(
	cfg Config,
	adapter marketplacedomain.Adapter,
	m *mapper.Mapper,
	r *resolver.Resolver,
	emitter pipelinedomain.Emitter,
	metrics pipelinedomain.Metrics,
	limiter Limiter,
	clk clock.Clock,
	log *zap.Logger,
) *Orchestrator {
	if metrics == nil {
		metrics = pipelinedomain.NopMetrics{}
	}
	if limiter == nil {
		limiter = nopLimiter{}
	}
	return &Orchestrator{
		cfg:      cfg,
		adapter:  adapter,
		mapper:   m,
		resolver: r,
		emitter:  emitter,
		metrics:  metrics,
		limiter:  limiter,
		clock:    clk,
		log:      log.Named("pipeline"),
	}
}

// Process takes one usage record to a terminal state and emits exactly
// one Outcome, or asks for re-delivery when the record is recoverable.
func (o *Orchestrator) Process(ctx context.Context, record usagedomain.UsageRecord) pipelinedomain.Result {
	mapped := o.mapper.Map(record)
	if mapped == nil {
		o.metrics.IncSkipped(o.adapter.Vendor())
		return o.emit(ctx, record, pipelinedomain.OutcomeSkipped, pipelinedomain.CodeNotApplicable)
	}

	uctx, err := o.resolve(ctx, record, mapped)
	if err != nil {
		switch {
		case errors.Is(err, resolver.ErrNoSubscription):
			if o.withinUsageWindow(record) {
				o.log.Info("no subscription yet, scheduling re-delivery",
					zap.String("usage_id", record.UsageID),
					zap.String("org_id", record.OrgID),
				)
				return pipelinedomain.Result{Redeliver: true}
			}
			return o.emit(ctx, record, pipelinedomain.OutcomeFailed, pipelinedomain.CodeSubscriptionNotFound)
		case errors.Is(err, resolver.ErrSubscriptionTerminated):
			return o.emit(ctx, record, pipelinedomain.OutcomeFailed, pipelinedomain.CodeSubscriptionTerminated)
		default:
			o.log.Error("usage context lookup failed",
				zap.String("usage_id", record.UsageID),
				zap.Error(err),
			)
			return o.emit(ctx, record, pipelinedomain.OutcomeFailed, pipelinedomain.CodeUsageContextLookup)
		}
	}

	event := o.adapter.BuildEvent(record, *mapped, uctx.ExternalSubscriptionID)
	batch := marketplacedomain.UsageBatch{
		Vendor: o.adapter.Vendor(),
		Events: []marketplacedomain.UsageEvent{event},
	}

	if err := o.limiter.Wait(ctx, batch.Vendor); err != nil {
		o.log.Warn("rate limiter wait failed, proceeding", zap.Error(err))
	}

	status, err := o.submit(ctx, batch)
	if err != nil {
		o.log.Error("submission failed after all attempts",
			zap.String("usage_id", record.UsageID),
			zap.String("event_id", event.EventID),
			zap.String("subscription_id", event.SubscriptionID),
			zap.Error(err),
		)
		return o.emit(ctx, record, pipelinedomain.OutcomeFailed, pipelinedomain.CodeUnknown)
	}

	switch status.State {
	case marketplacedomain.BatchFailed:
		if o.isAmendmentOnly(status.Messages) {
			o.log.Info("batch rejected as amendment, treating as billed",
				zap.String("usage_id", record.UsageID),
				zap.String("batch_id", status.BatchID),
			)
			o.metrics.IncAccepted(batch.Vendor)
			return o.emit(ctx, record, pipelinedomain.OutcomeSucceeded, pipelinedomain.CodeNone)
		}
		o.metrics.IncRejected(batch.Vendor)
		o.log.Warn("batch rejected by vendor",
			zap.String("usage_id", record.UsageID),
			zap.String("batch_id", status.BatchID),
			zap.Strings("messages", status.Messages),
		)
		return o.emit(ctx, record, pipelinedomain.OutcomeFailed, pipelinedomain.CodeSubmissionRejected)

	default:
		if !o.cfg.VerifyBatches || status.BatchID == "" {
			o.metrics.IncAccepted(batch.Vendor)
			return o.emit(ctx, record, pipelinedomain.OutcomeSucceeded, pipelinedomain.CodeNone)
		}
		return o.verify(ctx, record, status.BatchID)
	}
}

// resolve wraps the context lookup in the submission retry policy.
// Lookup I/O errors are transient and retried; not-found and terminated
// are definitive answers, not failures.
func (o *Orchestrator) resolve(ctx context.Context, record usagedomain.UsageRecord, mapped *marketplacedomain.Mapped) (marketplacedomain.UsageContext, error) {
	var uctx marketplacedomain.UsageContext
	op := func() error {
		var err error
		uctx, err = o.resolver.Resolve(ctx, record, mapped.WindowStart, mapped.WindowEnd)
		if err == nil {
			return nil
		}
		if errors.Is(err, resolver.ErrNoSubscription) || errors.Is(err, resolver.ErrSubscriptionTerminated) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(newBackoff(o.cfg.Submit), ctx))
	return uctx, err
}

func (o *Orchestrator) submit(ctx context.Context, batch marketplacedomain.UsageBatch) (marketplacedomain.BatchStatus, error) {
	var status marketplacedomain.BatchStatus
	op := func() error {
		var err error
		status, err = o.adapter.Submit(ctx, batch)
		if err != nil {
			o.log.Warn("submit attempt failed", zap.String("vendor", batch.Vendor), zap.Error(err))
		}
		return err
	}
	err := backoff.Retry(op, backoff.WithContext(newBackoff(o.cfg.Submit), ctx))
	if err != nil {
		return marketplacedomain.BatchStatus{}, fmt.Errorf("submit batch: %w", err)
	}
	return status, nil
}

// verify polls the batch until the vendor reaches a terminal state or
// the poll budget runs out. An exhausted budget is a soft failure: the
// usage was submitted, only confirmation is missing.
func (o *Orchestrator) verify(ctx context.Context, record usagedomain.UsageRecord, batchID string) pipelinedomain.Result {
	vendor := o.adapter.Vendor()

	var last marketplacedomain.BatchStatus
	op := func() error {
		status, err := o.adapter.BatchStatus(ctx, batchID)
		if err != nil {
			return err
		}
		last = status
		switch status.State {
		case marketplacedomain.BatchAccepted:
			return nil
		case marketplacedomain.BatchInProgress:
			return errStillInProgress
		default:
			return backoff.Permanent(errors.New("batch_rejected"))
		}
	}

	err := backoff.Retry(op, backoff.WithContext(newBackoff(o.cfg.Poll), ctx))
	switch {
	case err == nil:
		o.metrics.IncAccepted(vendor)
		return o.emit(ctx, record, pipelinedomain.OutcomeSucceeded, pipelinedomain.CodeNone)

	case last.State == marketplacedomain.BatchFailed:
		if o.isAmendmentOnly(last.Messages) {
			o.metrics.IncAccepted(vendor)
			return o.emit(ctx, record, pipelinedomain.OutcomeSucceeded, pipelinedomain.CodeNone)
		}
		o.metrics.IncRejected(vendor)
		o.log.Warn("batch verification rejected",
			zap.String("usage_id", record.UsageID),
			zap.String("batch_id", batchID),
			zap.Strings("messages", last.Messages),
		)
		return o.emit(ctx, record, pipelinedomain.OutcomeFailed, pipelinedomain.CodeSubmissionRejected)

	default:
		o.metrics.IncUnverified(vendor)
		o.log.Warn("batch status never reached a terminal state",
			zap.String("usage_id", record.UsageID),
			zap.String("batch_id", batchID),
			zap.Error(err),
		)
		return o.emit(ctx, record, pipelinedomain.OutcomeFailed, pipelinedomain.CodeUnverified)
	}
}

// isAmendmentOnly reports whether every failure message is the vendor's
// amendment rejection. An empty message list is a real failure.
func (o *Orchestrator) isAmendmentOnly(messages []string) bool {
	if len(messages) == 0 {
		return false
	}
	for _, msg := range messages {
		if strings.TrimSpace(msg) == "" || !o.adapter.IsAmendmentRejection(msg) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) withinUsageWindow(record usagedomain.UsageRecord) bool {
	if record.SnapshotAt == nil {
		return false
	}
	return o.clock.Now().Sub(*record.SnapshotAt) <= o.cfg.UsageWindow
}

func (o *Orchestrator) emit(ctx context.Context, record usagedomain.UsageRecord, kind pipelinedomain.OutcomeKind, code pipelinedomain.ErrorCode) pipelinedomain.Result {
	outcome := pipelinedomain.Outcome{
		UsageID:    record.UsageID,
		OrgID:      record.OrgID,
		ProductTag: record.ProductTag,
		Metric:     record.Metric,
		Vendor:     o.adapter.Vendor(),
		Kind:       kind,
		Code:       code,
		OccurredAt: o.clock.Now(),
	}
	o.emitter.Emit(ctx, outcome)
	return pipelinedomain.Result{Outcome: &outcome}
}
