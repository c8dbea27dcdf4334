package otelrec

import (
	"sync"

	"go.uber.org/zap"

	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/harness"
	"github.com/platform-crew/loadfire/internal/logging"
	"github.com/platform-crew/loadfire/internal/sysres"
	"github.com/platform-crew/loadfire/internal/telemetry"
	"github.com/platform-crew/loadfire/internal/telemetry/instrument"
)

// AgentRecorder exports worker-side telemetry: process resource gauges
// sampled at collection time and a request duration histogram fed from
// completed requests.
type AgentRecorder struct {
	*telemetry.Recorder
	log *zap.Logger

	mu     sync.Mutex
	active bool
}

// NewAgentRecorder constructs the recorder and subscribes it to the
// process lifecycle.
func NewAgentRecorder(proc *harness.Process, registry *instrument.Registry) *AgentRecorder {
	r := &AgentRecorder{
		Recorder: telemetry.NewRecorder(config.RecorderOtel, proc, registry, nil),
		log:      logging.L(),
	}
	proc.Events.Subscribe(harness.EventRunStart, r.onRunStart)
	proc.Events.Subscribe(harness.EventRequest, r.onRequest)
	proc.Events.Subscribe(harness.EventCPUWarning, r.onCPUWarning)
	proc.Events.Subscribe(harness.EventRunStop, r.onRunStop)
	return r
}

func (r *AgentRecorder) onRunStart(any) {
	res := r.Process().Resources

	r.mu.Lock()
	r.active = true
	r.mu.Unlock()

	registrations := []struct {
		kind  instrument.Kind
		unit  string
		shape instrument.Shape
		cbs   []instrument.Callback
	}{
		{instrument.CPUUsage, "%", instrument.ShapeGauge, resourceCallbacks(res, observeCPU)},
		{instrument.MemoryUsage, "By", instrument.ShapeGauge, resourceCallbacks(res, observeMemory)},
		{instrument.NetworkBytes, "By", instrument.ShapeGauge, resourceCallbacks(res, observeNetwork)},
		{instrument.RequestDuration, "ms", instrument.ShapeHistogram, nil},
		{instrument.CPUWarning, "ms", instrument.ShapeCounter, nil},
	}
	for _, reg := range registrations {
		if err := r.Registry().Register(reg.kind, reg.unit, reg.shape, reg.cbs...); err != nil {
			r.log.Error("instrument registration failed",
				zap.String("kind", string(reg.kind)), zap.Error(err))
		}
	}
}

func (r *AgentRecorder) onRequest(payload any) {
	result, ok := payload.(harness.RequestResult)
	if !ok {
		return
	}
	err := r.RecordMetric(instrument.RequestDuration, result.DurationMs, map[string]any{
		"endpoint": result.Endpoint,
		"method":   result.Method,
		"failed":   result.Failed,
	})
	if err != nil {
		r.log.Error("request duration not recorded",
			zap.String("endpoint", result.Endpoint), zap.Error(err))
	}
}

func (r *AgentRecorder) onCPUWarning(payload any) {
	warn, _ := payload.(harness.CPUWarning)
	err := r.RecordEvent(instrument.CPUWarning, map[string]any{
		"cpu_usage": warn.Usage,
		"message":   warn.Message,
	})
	if err != nil {
		r.log.Error("cpu warning not recorded", zap.Error(err))
	}
}

// onRunStop deregisters once per run; the next run-start re-arms it.
func (r *AgentRecorder) onRunStop(any) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	r.mu.Unlock()

	for _, kind := range r.Registry().Kinds() {
		r.Registry().Deregister(kind)
	}
}

// resourceCallbacks adapts one resource observation function into a
// registry callback, nil when the process has no resource sampler.
func resourceCallbacks(res sysres.Sampler, observe func(sysres.Sampler) []instrument.Observation) []instrument.Callback {
	if res == nil {
		return nil
	}
	return []instrument.Callback{func() []instrument.Observation {
		return observe(res)
	}}
}

func observeCPU(res sysres.Sampler) []instrument.Observation {
	usage, err := res.CPUPercent()
	if err != nil {
		return nil
	}
	return []instrument.Observation{{Value: usage}}
}

func observeMemory(res sysres.Sampler) []instrument.Observation {
	rss, err := res.MemoryRSS()
	if err != nil {
		return nil
	}
	return []instrument.Observation{{Value: float64(rss)}}
}

func observeNetwork(res sysres.Sampler) []instrument.Observation {
	counters, err := res.Network()
	if err != nil {
		return nil
	}
	return []instrument.Observation{
		{Value: float64(counters.BytesSent), Attrs: map[string]any{"direction": "sent"}},
		{Value: float64(counters.BytesRecv), Attrs: map[string]any{"direction": "received"}},
	}
}
