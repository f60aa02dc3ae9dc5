// Package domain defines the marketplace-facing submission types shared
// by all vendor adapters.
package domain

import (
	"errors"
	"time"

	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
)

// Token is a marketplace bearer token with its vendor-reported expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// UsageContext carries the resolved external billing identifiers for
// one submission attempt. Never cached across attempts: subscription
// state is externally mutable.
type UsageContext struct {
	ExternalSubscriptionID string
	OrgID                  string
	AccountNumber          string
	Key                    usagedomain.UsageKey
}

// UsageEvent is one vendor-billable measurement over a fixed window
// [WindowStart, WindowEnd).
type UsageEvent struct {
	// EventID is the idempotency key for the vendor submission. It is
	// derived deterministically from the usage record so redelivery
	// produces the same event.
	EventID        string
	Dimension      string
	Quantity       float64
	WindowStart    time.Time
	WindowEnd      time.Time
	SubscriptionID string
}

// UsageBatch groups events for a single HTTP submission.
type UsageBatch struct {
	Vendor string
	Events []UsageEvent
}

// BatchState is the vendor's acknowledgement state.
type BatchState string

const (
	BatchAccepted   BatchState = "accepted"
	BatchInProgress BatchState = "in_progress"
	BatchFailed     BatchState = "failed"
)

// BatchStatus is the vendor's synchronous or polled acknowledgement.
// Transient; never persisted.
type BatchStatus struct {
	State    BatchState
	BatchID  string
	Messages []string
}

var (
	ErrUnauthorized = errors.New("marketplace_unauthorized")
	ErrSubmit       = errors.New("marketplace_submit_failed")
	ErrBatchStatus  = errors.New("marketplace_batch_status_failed")
	ErrTokenFetch   = errors.New("marketplace_token_fetch_failed")
)
