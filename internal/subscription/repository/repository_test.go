package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func setupRepository(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&subscriptiondomain.Subscription{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DELETE FROM subscriptions")
	})
	return New(db, zap.NewNop()), db
}

func testKey() usagedomain.UsageKey {
	return usagedomain.UsageKey{
		ProductTag:       "rosa",
		ServiceLevel:     "Premium",
		Usage:            "Production",
		BillingProvider:  "redhat",
		BillingAccountID: "acct-1",
		Metric:           "Cores",
	}
}

func seedSubscription(t *testing.T, db *gorm.DB, node *snowflake.Node, externalID string, start time.Time, end *time.Time) subscriptiondomain.Subscription {
	t.Helper()
	sub := subscriptiondomain.Subscription{
		ID:               node.Generate(),
		OrgID:            "org-1",
		ProductTag:       "rosa",
		ServiceLevel:     "Premium",
		Usage:            "Production",
		BillingProvider:  "redhat",
		BillingAccountID: "acct-1",
		ExternalID:       externalID,
		StartDate:        start,
		EndDate:          end,
	}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	return sub
}

func TestFindSubscriptionsIntersectsWindow(t *testing.T) {
	repo, db := setupRepository(t)
	node := mustNode(t)

	windowStart := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	windowEnd := windowStart.Add(time.Hour)

	// Active during the window.
	seedSubscription(t, db, node, "sub-active", windowStart.Add(-24*time.Hour), nil)
	// Ended before the window.
	ended := windowStart.Add(-time.Hour)
	seedSubscription(t, db, node, "sub-ended", windowStart.Add(-48*time.Hour), &ended)
	// Starts after the window.
	seedSubscription(t, db, node, "sub-future", windowEnd.Add(time.Hour), nil)

	subs, err := repo.FindSubscriptions(context.Background(), subscriptiondomain.LookupRequest{
		OrgID:       "org-1",
		Key:         testKey(),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(subs))
	}
	if subs[0].ExternalID != "sub-active" {
		t.Fatalf("expected sub-active, got %s", subs[0].ExternalID)
	}
}

func TestFindSubscriptionsStableOrdering(t *testing.T) {
	repo, db := setupRepository(t)
	node := mustNode(t)

	windowStart := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seedSubscription(t, db, node, "sub-b", windowStart.Add(-time.Hour), nil)
	seedSubscription(t, db, node, "sub-a", windowStart.Add(-time.Hour), nil)

	for i := 0; i < 3; i++ {
		subs, err := repo.FindSubscriptions(context.Background(), subscriptiondomain.LookupRequest{
			OrgID:       "org-1",
			Key:         testKey(),
			WindowStart: windowStart,
			WindowEnd:   windowStart.Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(subs) != 2 || subs[0].ExternalID != "sub-a" {
			t.Fatalf("expected stable ordering with sub-a first, got %+v", subs)
		}
	}
}

func TestFindSubscriptionsValidatesRequest(t *testing.T) {
	repo, _ := setupRepository(t)

	_, err := repo.FindSubscriptions(context.Background(), subscriptiondomain.LookupRequest{
		Key:         testKey(),
		WindowStart: time.Now(),
		WindowEnd:   time.Now().Add(time.Hour),
	})
	if err != subscriptiondomain.ErrInvalidOrganization {
		t.Fatalf("expected invalid organization, got %v", err)
	}
}
