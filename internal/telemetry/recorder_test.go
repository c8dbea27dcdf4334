package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/harness"
	"github.com/platform-crew/loadfire/internal/telemetry/instrument"
	"github.com/platform-crew/loadfire/internal/transport"
)

func TestRecorderContextBeforeAndAfterMetadata(t *testing.T) {
	proc := newProcess(harness.Agent(2), transport.NewLoopback())
	r := NewRecorder("otel", proc, nil, nil)

	ctx := r.Context()
	if ctx["run_id"] != "" {
		t.Errorf("run_id = %q before propagation", ctx["run_id"])
	}
	// Testplan falls back to config until metadata arrives.
	if ctx["testplan"] != "checkout-flow" {
		t.Errorf("testplan = %q", ctx["testplan"])
	}
	if ctx["role"] != "agent-2" || ctx["recorder"] != "otel" {
		t.Errorf("role/recorder = %q/%q", ctx["role"], ctx["recorder"])
	}

	proc.Metadata.Replace(map[string]string{
		harness.MetaRunID:    "r42",
		harness.MetaTestplan: "checkout-flow",
	})
	ctx = r.Context()
	if ctx["run_id"] != "r42" {
		t.Errorf("run_id = %q after propagation", ctx["run_id"])
	}
}

func TestRecorderRoutesToRegistry(t *testing.T) {
	proc := newProcess(harness.Primary(), transport.NewLoopback())
	registry := instrument.NewRegistry(noop.NewMeterProvider().Meter("test"))
	r := NewRecorder("otel", proc, registry, nil)

	// Unregistered kind fails fast.
	err := r.RecordMetric(instrument.RequestDuration, 12, nil)
	if !errors.Is(err, instrument.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}

	if err := registry.Register(instrument.RequestDuration, "ms", instrument.ShapeHistogram); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.RecordMetric(instrument.RequestDuration, 12, nil); err != nil {
		t.Fatalf("record after register: %v", err)
	}
	if err := registry.Register(instrument.TestLifecycle, "ms", instrument.ShapeCounter); err != nil {
		t.Fatalf("register lifecycle: %v", err)
	}
	if err := r.RecordEvent(instrument.TestLifecycle, map[string]any{"event": "run started"}); err != nil {
		t.Fatalf("record event: %v", err)
	}
}

func TestRecorderWithoutBackendsIsInert(t *testing.T) {
	proc := newProcess(harness.Primary(), transport.NewLoopback())
	r := NewRecorder("log", proc, nil, nil)

	if err := r.RecordEvent(instrument.TestLifecycle, nil); err != nil {
		t.Fatalf("event without backends: %v", err)
	}
	if err := r.RecordMetric(instrument.RequestStats, 1, nil); err != nil {
		t.Fatalf("metric without backends: %v", err)
	}
}

func TestExchangeRoundTrip(t *testing.T) {
	cfg := &config.Config{Testplan: "checkout-flow"}
	values := newRunMetadata(cfg)
	if values[harness.MetaRunID] == "" {
		t.Fatal("no run id generated")
	}
	if values[harness.MetaTestplan] != "checkout-flow" {
		t.Fatalf("testplan = %q", values[harness.MetaTestplan])
	}

	payload, err := encodeMetadata(values)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeMetadata(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded[harness.MetaRunID] != values[harness.MetaRunID] {
		t.Fatal("run id did not round-trip")
	}

	if _, err := decodeMetadata([]byte("nope")); err == nil {
		t.Fatal("expected decode error for garbage payload")
	}
}
