// Package redhat submits billable usage to the Red Hat marketplace
// metering API.
package redhat

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/meterbill/internal/catalog"
	"github.com/smallbiznis/meterbill/internal/marketplace/client"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
)

const VendorName = "redhat"

// The marketplace rejects amendments to periods it already billed.
// That rejection is expected and is not a pipeline failure.
var defaultAmendmentMarkers = []string{"amendments are not supported"}

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
		cfg.SubmitPath = "/metering/api/v1/metrics"
	}
	if strings.TrimSpace(cfg.StatusPath) == "" {
		cfg.StatusPath = "/metering/api/v1/metrics"
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

type usageMeasurement struct {
	MetricID string  `json:"metric_id"`
	Value    float64 `json:"value"`
}

type usageEvent struct {
	EventID        string             `json:"eventId"`
	Start          int64              `json:"start"`
	End            int64              `json:"end"`
	SubscriptionID string             `json:"subscriptionId"`
	MeasuredUsage  []usageMeasurement `json:"measuredUsage"`
}

type submitRequest struct {
	Data []usageEvent `json:"data"`
}

type statusMessage struct {
	Message string `json:"message"`
}

type submitResponse struct {
	Status  string          `json:"status"`
	BatchID string          `json:"batchId"`
	Data    []statusMessage `json:"data"`
}

func (a *Adapter) Submit(ctx context.Context, batch marketplacedomain.UsageBatch) (marketplacedomain.BatchStatus, error) {
	payload := submitRequest{Data: make([]usageEvent, 0, len(batch.Events))}
	for _, event := range batch.Events {
		payload.Data = append(payload.Data, usageEvent{
			EventID:        event.EventID,
			Start:          event.WindowStart.UnixMilli(),
			End:            event.WindowEnd.UnixMilli(),
			SubscriptionID: event.SubscriptionID,
			MeasuredUsage: []usageMeasurement{{
				MetricID: event.Dimension,
				Value:    event.Quantity,
			}},
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

func normalizeStatus(resp submitResponse) marketplacedomain.BatchStatus {
	status := marketplacedomain.BatchStatus{BatchID: resp.BatchID}
	switch strings.ToLower(strings.TrimSpace(resp.Status)) {
	case "accepted":
		status.State = marketplacedomain.BatchAccepted
	case "inprogress", "in_progress":
		status.State = marketplacedomain.BatchInProgress
	default:
		status.State = marketplacedomain.BatchFailed
	}
	for _, msg := range resp.Data {
		if strings.TrimSpace(msg.Message) != "" {
			status.Messages = append(status.Messages, msg.Message)
		}
	}
	return status
}
