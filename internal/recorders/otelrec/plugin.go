// Package otelrec is the OpenTelemetry recorder plugin: it exports
// lifecycle events, request metrics, and resource gauges through the
// OTLP metric backend.
package otelrec

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/export"
	"github.com/platform-crew/loadfire/internal/harness"
	"github.com/platform-crew/loadfire/internal/telemetry"
	"github.com/platform-crew/loadfire/internal/telemetry/instrument"
)

// Plugin wires the OTel recorder family into the coordinator.
type Plugin struct {
	meter *export.MeterProvider
}

// New returns the OTel recorder plugin.
func New() *Plugin {
	return &Plugin{}
}

// ID implements telemetry.Plugin.
func (p *Plugin) ID() string { return config.RecorderOtel }

// AddCLIArguments declares the OTLP export flags.
func (p *Plugin) AddCLIArguments(fs *pflag.FlagSet) {
	fs.String("otel-exporter-endpoint", "", "OTLP exporter endpoint (host:port)")
	fs.String("otel-exporter-protocol", "grpc", "OTLP exporter protocol ('grpc' or 'http')")
	fs.Bool("otel-exporter-insecure", false, "Disable TLS for the OTLP exporter")
	fs.Bool("otel-trace-injection", true, "Inject W3C trace context into generated requests")
}

// LoadPrimary implements telemetry.Plugin.
func (p *Plugin) LoadPrimary(proc *harness.Process) error {
	registry, err := p.registry(proc)
	if err != nil {
		return err
	}
	NewPrimaryRecorder(proc, registry)
	return nil
}

// LoadAgent implements telemetry.Plugin.
func (p *Plugin) LoadAgent(proc *harness.Process) error {
	registry, err := p.registry(proc)
	if err != nil {
		return err
	}
	NewAgentRecorder(proc, registry)
	return nil
}

// Shutdown flushes the metric backend.
func (p *Plugin) Shutdown(ctx context.Context) error {
	return p.meter.Shutdown(ctx)
}

func (p *Plugin) registry(proc *harness.Process) (*instrument.Registry, error) {
	if p.meter == nil {
		mp, err := export.InitMeter(context.Background(), proc.Config.OTel,
			proc.Role, proc.Config.SampleInterval)
		if err != nil {
			return nil, err
		}
		p.meter = mp
	}
	return instrument.NewRegistry(p.meter.Meter()), nil
}

var _ telemetry.Plugin = (*Plugin)(nil)
