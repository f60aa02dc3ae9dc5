// Package catalog holds the per-vendor metric configuration: which
// (product, metric) pairs map to a marketplace dimension, and the
// conversion applied to raw values before submission.
package catalog

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Dimension is the resolved vendor-side identity of a metric.
type Dimension struct {
	ID string `mapstructure:"dimension"`

	// BillingFactor divides the raw value to produce the billable
	// quantity. Zero means unset.
	BillingFactor float64 `mapstructure:"billingFactor"`

	// BlockSize is the size of a fixed usage block for block-priced
	// dimensions. Applied as the divisor when no explicit billing
	// factor is configured.
	BlockSize float64 `mapstructure:"blockSize"`
}

// Divisor returns the effective conversion divisor.
func (d Dimension) Divisor() float64 {
	if d.BillingFactor > 0 {
		return d.BillingFactor
	}
	if d.BlockSize > 0 {
		return d.BlockSize
	}
	return 1
}

type MetricEntry struct {
	Product       string  `mapstructure:"product"`
	Metric        string  `mapstructure:"metric"`
	DimensionID   string  `mapstructure:"dimension"`
	BillingFactor float64 `mapstructure:"billingFactor"`
	BlockSize     float64 `mapstructure:"blockSize"`
}

type VendorEntry struct {
	Vendor  string        `mapstructure:"vendor"`
	Metrics []MetricEntry `mapstructure:"metrics"`
}

type CatalogConfig struct {
	Vendors []VendorEntry `mapstructure:"vendors"`
}

var (
	ErrMissingDimension = errors.New("catalog_missing_dimension")
	ErrNegativeFactor   = errors.New("catalog_negative_factor")
)

// Holder serves lookups from an immutable snapshot and hot-reloads it
// when the backing file changes.
type Holder struct {
	current atomic.Value // holds map[string]Dimension
}

// NewHolder loads the catalog file and starts watching it.
func NewHolder(path string) (*Holder, error) {
	v := viper.New()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/meterbill")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg CatalogConfig
	if err := v.UnmarshalKey("catalog", &cfg); err != nil {
		return nil, err
	}
	if err := validateCatalog(cfg); err != nil {
		return nil, err
	}

	holder := &Holder{}
	holder.current.Store(buildIndex(cfg))

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CatalogConfig
		if err := v.UnmarshalKey("catalog", &updated); err != nil {
			log.Printf("[catalog] reload failed: %v", err)
			return
		}
		if err := validateCatalog(updated); err != nil {
			log.Printf("[catalog] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(buildIndex(updated))
		log.Printf("[catalog] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticHolder builds a holder from an in-memory config. Used by
// tests and by deployments that template the catalog at boot.
func NewStaticHolder(cfg CatalogConfig) (*Holder, error) {
	if err := validateCatalog(cfg); err != nil {
		return nil, err
	}
	holder := &Holder{}
	holder.current.Store(buildIndex(cfg))
	return holder, nil
}

// Lookup returns the dimension configured for (vendor, product, metric).
// A missing entry means the metric is not billable on that vendor.
func (h *Holder) Lookup(vendor, product, metric string) (Dimension, bool) {
	index, _ := h.current.Load().(map[string]Dimension)
	dim, ok := index[indexKey(vendor, product, metric)]
	return dim, ok
}

func buildIndex(cfg CatalogConfig) map[string]Dimension {
	index := make(map[string]Dimension)
	for _, vendor := range cfg.Vendors {
		for _, entry := range vendor.Metrics {
			index[indexKey(vendor.Vendor, entry.Product, entry.Metric)] = Dimension{
				ID:            entry.DimensionID,
				BillingFactor: entry.BillingFactor,
				BlockSize:     entry.BlockSize,
			}
		}
	}
	return index
}

func indexKey(vendor, product, metric string) string {
	return strings.ToLower(strings.TrimSpace(vendor)) + "|" +
		strings.ToLower(strings.TrimSpace(product)) + "|" +
		strings.ToLower(strings.TrimSpace(metric))
}

func validateCatalog(cfg CatalogConfig) error {
	for _, vendor := range cfg.Vendors {
		for _, entry := range vendor.Metrics {
			if strings.TrimSpace(entry.DimensionID) == "" {
				return ErrMissingDimension
			}
			if entry.BillingFactor < 0 || entry.BlockSize < 0 {
				return ErrNegativeFactor
			}
		}
	}
	return nil
}
