package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	pipelinedomain "github.com/smallbiznis/meterbill/internal/pipeline/domain"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"go.uber.org/zap"
)

var (
	// ErrNoSubscription means no subscription covered the usage window.
	// Callers decide whether the record is still young enough to retry.
	ErrNoSubscription = errors.New("subscription_not_found")

	// ErrSubscriptionTerminated means the matching subscription was
	// terminated before the usage window.
	ErrSubscriptionTerminated = errors.New("subscription_terminated")
)

// Resolver maps a usage record to the external subscription it should be
// billed against. Every call goes to the store; results are not cached so
// terminations take effect immediately.
type Resolver struct {
	lookup  subscriptiondomain.Lookup
	vendor  string
	metrics pipelinedomain.Metrics
	log     *zap.Logger
}

func New(lookup subscriptiondomain.Lookup, vendor string, metrics pipelinedomain.Metrics, log *zap.Logger) *Resolver {
	if metrics == nil {
		metrics = pipelinedomain.NopMetrics{}
	}
	return &Resolver{
		lookup:  lookup,
		vendor:  vendor,
		metrics: metrics,
		log:     log.Named("resolver"),
	}
}

// Resolve finds the subscription context for record over the usage window.
// When several subscriptions match, the first in stable store order wins and
// the ambiguity is counted.
func (r *Resolver) Resolve(ctx context.Context, record usagedomain.UsageRecord, windowStart, windowEnd time.Time) (marketplacedomain.UsageContext, error) {
	req := subscriptiondomain.LookupRequest{
		OrgID:         record.OrgID,
		AccountNumber: record.AccountNumber,
		Key:           record.Key(),
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
	}

	subs, err := r.lookup.FindSubscriptions(ctx, req)
	if err != nil {
		return marketplacedomain.UsageContext{}, fmt.Errorf("subscription lookup: %w", err)
	}

	if len(subs) == 0 {
		r.metrics.IncMissingSubscription(r.vendor)
		r.log.Warn("no subscription for usage record",
			zap.String("usage_id", record.UsageID),
			zap.String("org_id", record.OrgID),
			zap.String("product_tag", record.ProductTag),
		)
		return marketplacedomain.UsageContext{}, ErrNoSubscription
	}

	if len(subs) > 1 {
		r.metrics.IncAmbiguousSubscription(r.vendor)
		r.log.Warn("multiple subscriptions match usage record",
			zap.String("usage_id", record.UsageID),
			zap.String("org_id", record.OrgID),
			zap.Int("count", len(subs)),
			zap.String("chosen", subs[0].ExternalID),
		)
	}

	sub := subs[0]
	if sub.Terminated() {
		return marketplacedomain.UsageContext{}, ErrSubscriptionTerminated
	}

	return marketplacedomain.UsageContext{
		ExternalSubscriptionID: sub.ExternalID,
		OrgID:                  record.OrgID,
		AccountNumber:          record.AccountNumber,
		Key:                    record.Key(),
	}, nil
}
