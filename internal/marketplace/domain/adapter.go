package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/meterbill/internal/catalog"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
)

// Mapped is the vendor-neutral result of mapping one usage record: the
// resolved dimension, the converted quantity and the billing window.
// The subscription identifier is attached later, after context
// resolution.
type Mapped struct {
	EventID     string
	Dimension   catalog.Dimension
	Quantity    float64
	WindowStart time.Time
	WindowEnd   time.Time
}

// Adapter is the per-vendor capability set behind the generic
// orchestrator. Implementations are stateless and safe for concurrent
// use.
type Adapter interface {
	// Vendor returns the billing provider this adapter serves.
	Vendor() string

	// MapDimension resolves the vendor dimension for (product, metric).
	// A false return means the pair is not billable on this vendor,
	// which is a normal skip, not an error.
	MapDimension(product, metric string) (catalog.Dimension, bool)

	// BuildEvent shapes the submission event for one mapped record and
	// its resolved subscription.
	BuildEvent(record usagedomain.UsageRecord, mapped Mapped, subscriptionID string) UsageEvent

	// Submit sends one batch and returns the vendor's synchronous
	// acknowledgement.
	Submit(ctx context.Context, batch UsageBatch) (BatchStatus, error)

	// BatchStatus polls the asynchronous acceptance state of a batch.
	BatchStatus(ctx context.Context, batchID string) (BatchStatus, error)

	// IsAmendmentRejection reports whether a failure message is the
	// vendor's "amendment to already-billed usage" rejection, which the
	// pipeline treats as a non-error.
	IsAmendmentRejection(message string) bool
}
