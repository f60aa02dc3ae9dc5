// Package domain contains the validated internal usage record the
// pipeline consumes and the key used to match billing subscriptions.
package domain

import (
	"strings"
	"time"
)

// UsageRecord is a single unit of tallied, billable usage. Immutable;
// produced upstream by the tally engine and delivered once per queue
// message.
type UsageRecord struct {
	UsageID          string     `json:"usage_id"`
	OrgID            string     `json:"org_id"`
	AccountNumber    string     `json:"account_number,omitempty"`
	ProductTag       string     `json:"product_tag"`
	ServiceLevel     string     `json:"sla"`
	Usage            string     `json:"usage"`
	BillingProvider  string     `json:"billing_provider"`
	BillingAccountID string     `json:"billing_account_id"`
	Metric           string     `json:"metric_id"`
	Value            float64    `json:"value"`
	SnapshotAt       *time.Time `json:"snapshot_date"`
}

// Key returns the subscription-matching key for the record.
func (r UsageRecord) Key() UsageKey {
	return UsageKey{
		ProductTag:       r.ProductTag,
		ServiceLevel:     r.ServiceLevel,
		Usage:            r.Usage,
		BillingProvider:  r.BillingProvider,
		BillingAccountID: r.BillingAccountID,
		Metric:           r.Metric,
	}
}

// Eligible reports whether the record can be billed by a pipeline
// instance targeting the given vendor. Ineligible records are dropped,
// never retried.
func (r UsageRecord) Eligible(vendor string) bool {
	if !strings.EqualFold(strings.TrimSpace(r.BillingProvider), strings.TrimSpace(vendor)) {
		return false
	}
	required := []string{
		r.UsageID,
		r.OrgID,
		r.ProductTag,
		r.ServiceLevel,
		r.Usage,
		r.BillingProvider,
		r.BillingAccountID,
		r.Metric,
	}
	for _, field := range required {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return r.SnapshotAt != nil && !r.SnapshotAt.IsZero()
}

// UsageKey identifies the billing subscription a record belongs to.
type UsageKey struct {
	ProductTag       string
	ServiceLevel     string
	Usage            string
	BillingProvider  string
	BillingAccountID string
	Metric           string
}
