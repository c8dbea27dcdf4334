// Package export initializes the OpenTelemetry export backends: the
// OTLP metric provider the instrument registry records through, and
// the OTLP trace provider used for trace-context injection.
package export

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	mnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/harness"
)

const serviceName = "loadfire"

// MeterProvider wraps the OTel meter provider. Without an OTLP
// endpoint it degrades to a no-op provider so recorders can register
// instruments unconditionally.
type MeterProvider struct {
	mp *sdkmetric.MeterProvider
}

// InitMeter creates the metric export backend from config. The role is
// stamped on the exported resource so primary and agent series stay
// distinguishable.
func InitMeter(ctx context.Context, cfg config.OTelConfig, role harness.Role, interval time.Duration) (*MeterProvider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return &MeterProvider{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceInstanceID(role.String()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics resource: %w", err)
	}

	exporter, err := newMetricExporter(ctx, cfg, endpoint)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}

	if interval <= 0 {
		interval = 2 * time.Second
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(interval))),
	)
	return &MeterProvider{mp: mp}, nil
}

// Meter returns a meter for creating instruments. It is a no-op meter
// when export is disabled.
func (p *MeterProvider) Meter() metric.Meter {
	if p == nil || p.mp == nil {
		return mnoop.NewMeterProvider().Meter(serviceName)
	}
	return p.mp.Meter(serviceName)
}

// Shutdown flushes pending metrics and stops the provider.
func (p *MeterProvider) Shutdown(ctx context.Context) error {
	if p == nil || p.mp == nil {
		return nil
	}
	return p.mp.Shutdown(ctx)
}

func newMetricExporter(ctx context.Context, cfg config.OTelConfig, endpoint string) (sdkmetric.Exporter, error) {
	protocol := strings.ToLower(cfg.Protocol)
	if protocol == "" {
		protocol = "grpc"
	}

	switch protocol {
	case "grpc":
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)

	case "http":
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)

	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}
