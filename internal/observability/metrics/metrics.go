// Package metrics exposes the pipeline's operational counters through
// OpenTelemetry.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics implements the pipeline's counter sink.
type Metrics struct {
	accepted   metric.Int64Counter
	rejected   metric.Int64Counter
	unverified metric.Int64Counter
	skipped    metric.Int64Counter
	missingSub metric.Int64Counter
	ambiguous  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the pipeline counter instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "meterbill"
	}
	meter := provider.Meter(name)

	accepted, err := meter.Int64Counter("meterbill_usage_accepted_total")
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("meterbill_usage_rejected_total")
	if err != nil {
		return nil, err
	}
	unverified, err := meter.Int64Counter("meterbill_usage_unverified_total")
	if err != nil {
		return nil, err
	}
	skipped, err := meter.Int64Counter("meterbill_usage_skipped_total")
	if err != nil {
		return nil, err
	}
	missingSub, err := meter.Int64Counter("meterbill_subscription_missing_total")
	if err != nil {
		return nil, err
	}
	ambiguous, err := meter.Int64Counter("meterbill_subscription_ambiguous_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		accepted:   accepted,
		rejected:   rejected,
		unverified: unverified,
		skipped:    skipped,
		missingSub: missingSub,
		ambiguous:  ambiguous,
	}, nil
}

// The wrappers check the receiver themselves: evaluating a field such as
// m.accepted on a nil *Metrics would panic before add's own guard runs.
func (m *Metrics) IncAccepted(vendor string) {
	if m == nil {
		return
	}
	m.add(m.accepted, vendor)
}

func (m *Metrics) IncRejected(vendor string) {
	if m == nil {
		return
	}
	m.add(m.rejected, vendor)
}

func (m *Metrics) IncUnverified(vendor string) {
	if m == nil {
		return
	}
	m.add(m.unverified, vendor)
}

func (m *Metrics) IncSkipped(vendor string) {
	if m == nil {
		return
	}
	m.add(m.skipped, vendor)
}

func (m *Metrics) IncMissingSubscription(vendor string) {
	if m == nil {
		return
	}
	m.add(m.missingSub, vendor)
}

func (m *Metrics) IncAmbiguousSubscription(vendor string) {
	if m == nil {
		return
	}
	m.add(m.ambiguous, vendor)
}

func (m *Metrics) add(counter metric.Int64Counter, vendor string) {
	if m == nil || counter == nil {
		return
	}
	counter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("vendor", strings.TrimSpace(vendor)),
	))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
