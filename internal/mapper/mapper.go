// Package mapper converts an internal usage record into the vendor's
// billable measurement. Pure: no I/O, no retry, deterministic output.
package mapper

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/meterbill/internal/catalog"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"go.uber.org/zap"
)

// eventNamespace scopes the deterministic event IDs so the same usage
// record always produces the same idempotency key.
var eventNamespace = uuid.MustParse("b3a4f7e2-6c1d-4a9e-8f52-0d7c9b1e4a33")

// DimensionSource is the slice of the vendor adapter the mapper needs.
type DimensionSource interface {
	Vendor() string
	MapDimension(product, metric string) (catalog.Dimension, bool)
}

type Mapper struct {
	source DimensionSource

	// granularity must match the upstream tally engine's aggregation
	// window. It is a contract, not discovered dynamically.
	granularity time.Duration

	log *zap.Logger
}

func New(source DimensionSource, granularity time.Duration, log *zap.Logger) *Mapper {
	if granularity <= 0 {
		granularity = time.Hour
	}
	return &Mapper{
		source:      source,
		granularity: granularity,
		log:         log.Named("pipeline.mapper"),
	}
}

// Map returns the mapped usage for an eligible, configured record, or
// nil when the record does not apply to this vendor. A nil result is
// a normal skip, never an error.
func (m *Mapper) Map(record usagedomain.UsageRecord) *marketplacedomain.Mapped {
	if !record.Eligible(m.source.Vendor()) {
		m.log.Warn("ineligible usage record dropped",
			zap.String("usage_id", record.UsageID),
			zap.String("org_id", record.OrgID),
			zap.String("billing_provider", record.BillingProvider),
		)
		return nil
	}

	dim, ok := m.source.MapDimension(record.ProductTag, record.Metric)
	if !ok {
		// Not configured for this vendor; does not apply.
		return nil
	}

	start := record.SnapshotAt.UTC()
	return &marketplacedomain.Mapped{
		EventID:     eventID(record.UsageID, dim.ID, start),
		Dimension:   dim,
		Quantity:    record.Value / dim.Divisor(),
		WindowStart: start,
		WindowEnd:   start.Add(m.granularity),
	}
}

func eventID(usageID, dimension string, start time.Time) string {
	seed := fmt.Sprintf("%s|%s|%d", usageID, dimension, start.UnixMilli())
	return uuid.NewSHA1(eventNamespace, []byte(seed)).String()
}
