package azure

import (
	"testing"

	marketplacedomain "github.com/smallbiznis/meterbill/internal/marketplace/domain"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatusFoldsResults(t *testing.T) {
	status := normalizeStatus(submitResponse{
		BatchID: "op-1",
		Result: []eventResult{
			{Status: "Accepted"},
			{Status: "Accepted"},
		},
	})
	require.Equal(t, marketplacedomain.BatchAccepted, status.State)
	require.Equal(t, "op-1", status.BatchID)

	status = normalizeStatus(submitResponse{
		Result: []eventResult{
			{Status: "Accepted"},
			{Status: "Pending"},
		},
	})
	require.Equal(t, marketplacedomain.BatchInProgress, status.State)

	status = normalizeStatus(submitResponse{
		Result: []eventResult{
			{Status: "Accepted"},
			{Status: "Duplicate", Message: "Duplicate usage event"},
		},
	})
	require.Equal(t, marketplacedomain.BatchFailed, status.State)
	require.Equal(t, []string{"Duplicate usage event"}, status.Messages)
}

func TestNormalizeStatusUsesStatusWhenMessageMissing(t *testing.T) {
	status := normalizeStatus(submitResponse{
		Result: []eventResult{{Status: "Expired"}},
	})
	require.Equal(t, marketplacedomain.BatchFailed, status.State)
	require.Equal(t, []string{"Expired"}, status.Messages)
}

func TestIsAmendmentRejectionDefaultsToDuplicateMarker(t *testing.T) {
	adapter := New(Config{}, nil, nil)
	require.True(t, adapter.IsAmendmentRejection("Duplicate usage event for hour"))
	require.False(t, adapter.IsAmendmentRejection("Expired usage event"))
}
