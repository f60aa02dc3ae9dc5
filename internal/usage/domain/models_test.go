package domain

import (
	"testing"
	"time"
)

func eligibleRecord() UsageRecord {
	snapshot := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return UsageRecord{
		UsageID:          "usage-1",
		OrgID:            "org-1",
		ProductTag:       "rosa",
		ServiceLevel:     "Premium",
		Usage:            "Production",
		BillingProvider:  "redhat",
		BillingAccountID: "acct-1",
		Metric:           "Cores",
		Value:            100,
		SnapshotAt:       &snapshot,
	}
}

func TestEligible(t *testing.T) {
	record := eligibleRecord()
	if !record.Eligible("redhat") {
		t.Fatal("expected record to be eligible")
	}
	if !record.Eligible("RedHat") {
		t.Fatal("expected vendor match to be case-insensitive")
	}
}

func TestEligibleRejectsProviderMismatch(t *testing.T) {
	record := eligibleRecord()
	if record.Eligible("azure") {
		t.Fatal("expected provider mismatch to be ineligible")
	}
}

func TestEligibleRejectsMissingFields(t *testing.T) {
	mutations := map[string]func(*UsageRecord){
		"usage_id":           func(r *UsageRecord) { r.UsageID = "" },
		"org_id":             func(r *UsageRecord) { r.OrgID = "" },
		"product_tag":        func(r *UsageRecord) { r.ProductTag = "" },
		"sla":                func(r *UsageRecord) { r.ServiceLevel = " " },
		"usage":              func(r *UsageRecord) { r.Usage = "" },
		"billing_provider":   func(r *UsageRecord) { r.BillingProvider = "" },
		"billing_account_id": func(r *UsageRecord) { r.BillingAccountID = "" },
		"metric_id":          func(r *UsageRecord) { r.Metric = "" },
		"snapshot_date":      func(r *UsageRecord) { r.SnapshotAt = nil },
	}
	for name, mutate := range mutations {
		record := eligibleRecord()
		mutate(&record)
		if record.Eligible("redhat") {
			t.Fatalf("expected record missing %s to be ineligible", name)
		}
	}
}
