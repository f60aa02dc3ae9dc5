// Package azure submits billable usage to an Azure-style marketplace
// batch usage API.
package azure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/meterbill/internal/catalog"
	"github.com/smallbiznis/meterbill/internal/marketplace/client"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
)

const VendorName = "azure"

// The vendor reports resubmitted usage for an already-billed hour as a
// duplicate; the pipeline treats that as expected.
var defaultAmendmentMarkers = []string{"duplicate"}

type Config struct {
	SubmitPath       string
	StatusPath       string
	AmendmentMarkers []string
}

type Adapter struct {
	cfg     Config
	client  *client.Client
	catalog *catalog.Holder
	markers []string
}

func New(cfg Config, c *client.Client, cat *catalog.Holder) *Adapter {
	if strings.TrimSpace(cfg.SubmitPath) == "" {
		cfg.SubmitPath = "/api/batchUsageEvent"
	}
	if strings.TrimSpace(cfg.StatusPath) == "" {
		cfg.StatusPath = "/api/usageEvents"
	}
	markers := cfg.AmendmentMarkers
	if len(markers) == 0 {
		markers = defaultAmendmentMarkers
	}
	return &Adapter{cfg: cfg, client: c, catalog: cat, markers: markers}
}

func (a *Adapter) Vendor() string { return VendorName }

func (a *Adapter) MapDimension(product, metric string) (catalog.Dimension, bool) {
	return a.catalog.Lookup(VendorName, product, metric)
}

func (a *Adapter) BuildEvent(record usagedomain.UsageRecord, mapped marketplacedomain.Mapped, subscriptionID string) marketplacedomain.UsageEvent {
	return marketplacedomain.UsageEvent{
		EventID:        mapped.EventID,
		Dimension:      mapped.Dimension.ID,
		Quantity:       mapped.Quantity,
		WindowStart:    mapped.WindowStart,
		WindowEnd:      mapped.WindowEnd,
		SubscriptionID: subscriptionID,
	}
}

type usageEvent struct {
	EventID            string  `json:"eventId"`
	ResourceID         string  `json:"resourceId"`
	Dimension          string  `json:"dimension"`
	Quantity           float64 `json:"quantity"`
	EffectiveStartTime string  `json:"effectiveStartTime"`
}

type submitRequest struct {
	Request []usageEvent `json:"request"`
}

type eventResult struct {
	Status       string `json:"status"`
	UsageEventID string `json:"usageEventId"`
	Message      string `json:"error,omitempty"`
}

type submitResponse struct {
	BatchID string        `json:"batchId"`
	Result  []eventResult `json:"result"`
}

func (a *Adapter) Submit(ctx context.Context, batch marketplacedomain.UsageBatch) (marketplacedomain.BatchStatus, error) {
	payload := submitRequest{Request: make([]usageEvent, 0, len(batch.Events))}
	for _, event := range batch.Events {
		payload.Request = append(payload.Request, usageEvent{
			EventID:            event.EventID,
			ResourceID:         event.SubscriptionID,
			Dimension:          event.Dimension,
			Quantity:           event.Quantity,
			EffectiveStartTime: event.WindowStart.UTC().Format(time.RFC3339),
		})
	}

	var resp submitResponse
	if err := a.client.PostJSON(ctx, a.cfg.SubmitPath, payload, &resp); err != nil {
		return marketplacedomain.BatchStatus{}, fmt.Errorf("%w: %v", marketplacedomain.ErrSubmit, err)
	}
	return normalizeStatus(resp), nil
}

func (a *Adapter) BatchStatus(ctx context.Context, batchID string) (marketplacedomain.BatchStatus, error) {
	var resp submitResponse
	if err := a.client.GetJSON(ctx, a.cfg.StatusPath+"/"+batchID, &resp); err != nil {
		return marketplacedomain.BatchStatus{}, fmt.Errorf("%w: %v", marketplacedomain.ErrBatchStatus, err)
	}
	status := normalizeStatus(resp)
	if status.BatchID == "" {
		status.BatchID = batchID
	}
	return status, nil
}

func (a *Adapter) IsAmendmentRejection(message string) bool {
	message = strings.ToLower(message)
	for _, marker := range a.markers {
		if strings.Contains(message, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// normalizeStatus folds the per-event results into one batch state:
// any in-progress event keeps the batch in progress, any non-accepted
// terminal event fails it.
func normalizeStatus(resp submitResponse) marketplacedomain.BatchStatus {
	status := marketplacedomain.BatchStatus{BatchID: resp.BatchID}
	failed := false
	inProgress := false
	for _, result := range resp.Result {
		switch strings.ToLower(strings.TrimSpace(result.Status)) {
		case "accepted":
		case "inprogress", "in_progress", "pending":
			inProgress = true
		default:
			failed = true
			if strings.TrimSpace(result.Message) != "" {
				status.Messages = append(status.Messages, result.Message)
			} else if strings.TrimSpace(result.Status) != "" {
				status.Messages = append(status.Messages, result.Status)
			}
		}
	}
	switch {
	case failed:
		status.State = marketplacedomain.BatchFailed
	case inProgress:
		status.State = marketplacedomain.BatchInProgress
	default:
		status.State = marketplacedomain.BatchAccepted
	}
	return status
}
