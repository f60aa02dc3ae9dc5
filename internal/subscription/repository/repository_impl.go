// Package repository implements subscription lookup against the
// relational store populated by the upstream sync job.
package repository

import (
	"context"
	"strings"

	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Repository struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(db *gorm.DB, log *zap.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.Named("subscription.repository"),
	}
}

// FindSubscriptions returns every subscription matching the usage key
// whose validity interval intersects [WindowStart, WindowEnd]. Results
// are ordered by (external_id, id) so ambiguous matches tie-break
// deterministically.
func (r *Repository) FindSubscriptions(ctx context.Context, req subscriptiondomain.LookupRequest) ([]subscriptiondomain.Subscription, error) {
	if strings.TrimSpace(req.OrgID) == "" {
		return nil, subscriptiondomain.ErrInvalidOrganization
	}
	if req.WindowStart.IsZero() || req.WindowEnd.Before(req.WindowStart) {
		return nil, subscriptiondomain.ErrInvalidWindow
	}

	var subscriptions []subscriptiondomain.Subscription
	query := r.db.WithContext(ctx).
		Where("org_id = ?", req.OrgID).
		Where("product_tag = ?", req.Key.ProductTag).
		Where("service_level = ?", req.Key.ServiceLevel).
		Where("usage = ?", req.Key.Usage).
		Where("billing_provider = ?", req.Key.BillingProvider).
		Where("billing_account_id = ?", req.Key.BillingAccountID).
		Where("start_date <= ?", req.WindowEnd).
		Where("end_date IS NULL OR end_date >= ?", req.WindowStart).
		Order("external_id, id")

	if strings.TrimSpace(req.AccountNumber) != "" {
		query = query.Where("account_number = ? OR account_number = ''", req.AccountNumber)
	}

	if err := query.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}
