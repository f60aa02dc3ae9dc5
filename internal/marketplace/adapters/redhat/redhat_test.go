package redhat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/meterbill/internal/catalog"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/marketplace/client"
	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	"github.com/smallbiznis/meterbill/internal/marketplace/token"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedSource struct{}

func (fixedSource) FetchToken(ctx context.Context) (marketplacedomain.Token, error) {
	return marketplacedomain.Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func newAdapter(t *testing.T, server *httptest.Server) *Adapter {
	t.Helper()
	manager := token.NewManager(fixedSource{}, clock.System(), 10*time.Minute, 0.2, zap.NewNop())
	c := client.New(client.Config{BaseURL: server.URL}, manager, zap.NewNop())
	cat, err := catalog.NewStaticHolder(catalog.CatalogConfig{
		Vendors: []catalog.VendorEntry{{
			Vendor: VendorName,
			Metrics: []catalog.MetricEntry{{
				Product:     "rosa",
				Metric:      "Cores",
				DimensionID: "redhat.com:rosa:cpu_hour",
			}},
		}},
	})
	require.NoError(t, err)
	return New(Config{}, c, cat)
}

func TestSubmitMarshalsBatch(t *testing.T) {
	var got submitRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(submitResponse{Status: "inprogress", BatchID: "batch-1"})
	}))
	defer server.Close()

	adapter := newAdapter(t, server)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	status, err := adapter.Submit(context.Background(), marketplacedomain.UsageBatch{
		Vendor: VendorName,
		Events: []marketplacedomain.UsageEvent{{
			EventID:        "evt-1",
			Dimension:      "redhat.com:rosa:cpu_hour",
			Quantity:       25,
			WindowStart:    start,
			WindowEnd:      start.Add(time.Hour),
			SubscriptionID: "sub-1",
		}},
	})
	require.NoError(t, err)
	require.Equal(t, marketplacedomain.BatchInProgress, status.State)
	require.Equal(t, "batch-1", status.BatchID)

	require.Len(t, got.Data, 1)
	require.Equal(t, "evt-1", got.Data[0].EventID)
	require.Equal(t, start.UnixMilli(), got.Data[0].Start)
	require.Equal(t, float64(25), got.Data[0].MeasuredUsage[0].Value)
}

func TestBatchStatusFallsBackToRequestedID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/metering/api/v1/metrics/batch-9", r.URL.Path)
		_ = json.NewEncoder(w).Encode(submitResponse{Status: "accepted"})
	}))
	defer server.Close()

	adapter := newAdapter(t, server)
	status, err := adapter.BatchStatus(context.Background(), "batch-9")
	require.NoError(t, err)
	require.Equal(t, marketplacedomain.BatchAccepted, status.State)
	require.Equal(t, "batch-9", status.BatchID)
}

func TestIsAmendmentRejection(t *testing.T) {
	adapter := New(Config{}, nil, nil)
	require.True(t, adapter.IsAmendmentRejection("Amendments are not supported for this period"))
	require.False(t, adapter.IsAmendmentRejection("subscription not entitled"))

	custom := New(Config{AmendmentMarkers: []string{"already billed"}}, nil, nil)
	require.True(t, custom.IsAmendmentRejection("usage already billed"))
	require.False(t, custom.IsAmendmentRejection("Amendments are not supported"))
}

func TestMapDimensionMissesUnconfiguredMetric(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	adapter := newAdapter(t, server)
	_, ok := adapter.MapDimension("rosa", "Cores")
	require.True(t, ok)
	_, ok = adapter.MapDimension("rosa", "Instance-hours")
	require.False(t, ok)
}
