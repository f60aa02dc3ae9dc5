// Package domain models externally-synced billing subscriptions and the
// lookup contract the context resolver depends on.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"gorm.io/datatypes"
)

// Subscription mirrors one external billing subscription. Rows are
// written by an upstream sync job; this service only reads them.
type Subscription struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	OrgID            string            `gorm:"type:text;not null;index:idx_subscriptions_usage_key"`
	AccountNumber    string            `gorm:"type:text"`
	ProductTag       string            `gorm:"type:text;not null;index:idx_subscriptions_usage_key"`
	ServiceLevel     string            `gorm:"type:text;not null"`
	Usage            string            `gorm:"type:text;not null"`
	BillingProvider  string            `gorm:"type:text;not null"`
	BillingAccountID string            `gorm:"type:text;not null"`
	ExternalID       string            `gorm:"type:text;not null"`
	StartDate        time.Time         `gorm:"not null"`
	EndDate          *time.Time
	TerminatedAt     *time.Time
	Metadata         datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Terminated reports whether the subscription was ended by the vendor.
// Billing against a terminated subscription is never correct.
func (s Subscription) Terminated() bool { return s.TerminatedAt != nil }

// LookupRequest describes one subscription search.
type LookupRequest struct {
	OrgID         string
	AccountNumber string
	Key           usagedomain.UsageKey
	WindowStart   time.Time
	WindowEnd     time.Time
}

// Lookup finds billing subscriptions whose validity interval intersects
// the request window, in a stable order. Implementations must not
// cache: subscription state is externally mutable.
type Lookup interface {
	FindSubscriptions(ctx context.Context, req LookupRequest) ([]Subscription, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidWindow       = errors.New("invalid_lookup_window")
)
