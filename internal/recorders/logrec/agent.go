package logrec

import (
	"sync"

	"go.uber.org/zap"

	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/harness"
	"github.com/platform-crew/loadfire/internal/logging"
	"github.com/platform-crew/loadfire/internal/telemetry"
	"github.com/platform-crew/loadfire/internal/telemetry/instrument"
	"github.com/platform-crew/loadfire/internal/telemetry/sampler"
)

// AgentRecorder writes worker-side telemetry as structured log rows:
// one row per completed request, periodic system usage samples, and
// CPU warnings.
type AgentRecorder struct {
	*telemetry.Recorder
	log     *zap.Logger
	sampler *sampler.Sampler

	mu     sync.Mutex
	active bool
}

// NewAgentRecorder constructs the recorder and subscribes it to the
// process lifecycle.
func NewAgentRecorder(proc *harness.Process, sink *logging.Sink) *AgentRecorder {
	r := &AgentRecorder{
		Recorder: telemetry.NewRecorder(config.RecorderLog, proc, nil, sink),
		log:      logging.L(),
		sampler:  sampler.New(logging.L()),
	}
	proc.Events.Subscribe(harness.EventRunStart, r.onRunStart)
	proc.Events.Subscribe(harness.EventRequest, r.onRequest)
	proc.Events.Subscribe(harness.EventCPUWarning, r.onCPUWarning)
	proc.Events.Subscribe(harness.EventRunStop, r.onRunStop)
	return r
}

func (r *AgentRecorder) onRunStart(any) {
	r.mu.Lock()
	r.active = true
	r.mu.Unlock()

	if r.Process().Resources == nil {
		return
	}
	err := r.sampler.Start(r.Process().Config.SampleInterval, func() error {
		return sampleUsage(r.Recorder)
	})
	if err != nil {
		r.log.Error("usage sampler not started", zap.Error(err))
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

// onRunStop stops usage sampling once per run; the next run-start
// re-arms it.
func (r *AgentRecorder) onRunStop(any) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	r.mu.Unlock()

	r.sampler.Stop()
}
