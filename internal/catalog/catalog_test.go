package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupIsCaseInsensitive(t *testing.T) {
	holder, err := NewStaticHolder(CatalogConfig{
		Vendors: []VendorEntry{{
			Vendor: "redhat",
			Metrics: []MetricEntry{{
				Product:       "rosa",
				Metric:        "Cores",
				DimensionID:   "redhat.com:rosa:cpu_hour",
				BillingFactor: 4,
			}},
		}},
	})
	require.NoError(t, err)

	dim, ok := holder.Lookup("RedHat", "ROSA", "cores")
	require.True(t, ok)
	require.Equal(t, "redhat.com:rosa:cpu_hour", dim.ID)
	require.Equal(t, float64(4), dim.Divisor())
}

func TestLookupMissingEntry(t *testing.T) {
	holder, err := NewStaticHolder(CatalogConfig{})
	require.NoError(t, err)

	_, ok := holder.Lookup("redhat", "rosa", "cores")
	require.False(t, ok)
}

func TestDivisorFallsBackToBlockSize(t *testing.T) {
	dim := Dimension{BlockSize: 256}
	require.Equal(t, float64(256), dim.Divisor())

	dim = Dimension{BillingFactor: 4, BlockSize: 256}
	require.Equal(t, float64(4), dim.Divisor())

	dim = Dimension{}
	require.Equal(t, float64(1), dim.Divisor())
}

func TestValidateRejectsMissingDimension(t *testing.T) {
	_, err := NewStaticHolder(CatalogConfig{
		Vendors: []VendorEntry{{
			Vendor:  "azure",
			Metrics: []MetricEntry{{Product: "rosa", Metric: "cores"}},
		}},
	})
	require.ErrorIs(t, err, ErrMissingDimension)
}
