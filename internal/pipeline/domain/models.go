// Package domain defines the terminal outcomes the submission pipeline
// produces and the counters it reports.
package domain

import (
	"context"
	"time"
)

// ErrorCode classifies a terminal failure or skip. Stable across vendors.
type ErrorCode string

const (
	CodeNone                   ErrorCode = ""
	CodeNotApplicable          ErrorCode = "NOT_APPLICABLE"
	CodeSubscriptionNotFound   ErrorCode = "SUBSCRIPTION_NOT_FOUND"
	CodeSubscriptionTerminated ErrorCode = "SUBSCRIPTION_TERMINATED"
	CodeUsageContextLookup     ErrorCode = "USAGE_CONTEXT_LOOKUP_ERROR"
	CodeSubmissionRejected     ErrorCode = "SUBMISSION_REJECTED"
	CodeUnverified             ErrorCode = "UNVERIFIED"
	CodeUnknown                ErrorCode = "UNKNOWN"
)

// OutcomeKind is the terminal disposition of one usage record.
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "SUCCEEDED"
	OutcomeFailed    OutcomeKind = "FAILED"
	OutcomeSkipped   OutcomeKind = "SKIPPED"
)

// Outcome is the single durable artifact the pipeline emits per record.
type Outcome struct {
	UsageID    string      `json:"usage_id"`
	OrgID      string      `json:"org_id"`
	ProductTag string      `json:"product_tag"`
	Metric     string      `json:"metric_id"`
	Vendor     string      `json:"billing_provider"`
	Kind       OutcomeKind `json:"status"`
	Code       ErrorCode   `json:"error_code,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Result is what the orchestrator hands back to the consumer. Exactly
// one of Outcome/Redeliver is set: a redelivered record has not reached
// a terminal state yet.
type Result struct {
	Outcome   *Outcome
	Redeliver bool
}

// Metrics is the sink for the pipeline's operational counters. A no-op
// implementation is the default so tests and partial wirings never
// touch a registry.
type Metrics interface {
	IncAccepted(vendor string)
	IncRejected(vendor string)
	IncUnverified(vendor string)
	IncSkipped(vendor string)
	IncMissingSubscription(vendor string)
	IncAmbiguousSubscription(vendor string)
}

// NopMetrics discards all counter updates.
type NopMetrics struct{}

func (NopMetrics) IncAccepted(string)              {}
func (NopMetrics) IncRejected(string)              {}
func (NopMetrics) IncUnverified(string)            {}
func (NopMetrics) IncSkipped(string)               {}
func (NopMetrics) IncMissingSubscription(string)   {}
func (NopMetrics) IncAmbiguousSubscription(string) {}

// Emitter publishes terminal outcomes. Publish failures are an
// observability gap, not a pipeline failure, so Emit does not return
// an error.
type Emitter interface {
	Emit(ctx context.Context, outcome Outcome)
}
