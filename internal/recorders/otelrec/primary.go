package otelrec

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/harness"
	"github.com/platform-crew/loadfire/internal/logging"
	"github.com/platform-crew/loadfire/internal/stats"
	"github.com/platform-crew/loadfire/internal/telemetry"
	"github.com/platform-crew/loadfire/internal/telemetry/instrument"
	"github.com/platform-crew/loadfire/internal/telemetry/sampler"
)

// PrimaryRecorder exports run-level telemetry from the coordinating
// process: lifecycle events, the active user gauge, and aggregate
// request statistics sampled on an interval and flushed at run-stop.
type PrimaryRecorder struct {
	*telemetry.Recorder
	log     *zap.Logger
	sampler *sampler.Sampler

	mu     sync.Mutex
	active bool
}

// NewPrimaryRecorder constructs the recorder and subscribes it to the
// process lifecycle.
func NewPrimaryRecorder(proc *harness.Process, registry *instrument.Registry) *PrimaryRecorder {
	r := &PrimaryRecorder{
		Recorder: telemetry.NewRecorder(config.RecorderOtel, proc, registry, nil),
		log:      logging.L(),
		sampler:  sampler.New(logging.L()),
	}
	proc.Events.Subscribe(harness.EventRunStart, r.onRunStart)
	proc.Events.Subscribe(harness.EventRampUpComplete, r.onRampUpComplete)
	proc.Events.Subscribe(harness.EventCPUWarning, r.onCPUWarning)
	proc.Events.Subscribe(harness.EventRunStop, r.onRunStop)
	return r
}

func (r *PrimaryRecorder) onRunStart(payload any) {
	info, _ := payload.(harness.RunInfo)
	proc := r.Process()

	r.mu.Lock()
	r.active = true
	r.mu.Unlock()

	registrations := []struct {
		kind  instrument.Kind
		unit  string
		shape instrument.Shape
		cbs   []instrument.Callback
	}{
		{instrument.TestLifecycle, "ms", instrument.ShapeCounter, nil},
		{instrument.ActiveUserCount, "1", instrument.ShapeGauge, []instrument.Callback{r.observeUsers}},
		{instrument.RequestStats, "1", instrument.ShapeCounter, nil},
		{instrument.EndpointStats, "1", instrument.ShapeCounter, nil},
		{instrument.EndpointErrors, "1", instrument.ShapeCounter, nil},
		{instrument.CPUWarning, "ms", instrument.ShapeCounter, nil},
	}
	for _, reg := range registrations {
		if err := r.Registry().Register(reg.kind, reg.unit, reg.shape, reg.cbs...); err != nil {
			r.log.Error("instrument registration failed",
				zap.String("kind", string(reg.kind)), zap.Error(err))
		}
	}

	if err := r.RecordEvent(instrument.TestLifecycle, map[string]any{
		"event":     "run started",
		"num_users": info.NumUsers,
		"profile":   info.Profile,
	}); err != nil {
		r.log.Error("run-start event not recorded", zap.Error(err))
	}

	if err := r.sampler.Start(proc.Config.SampleInterval, r.sampleStats); err != nil {
		r.log.Error("stats sampler not started", zap.Error(err))
	}
}

func (r *PrimaryRecorder) onRampUpComplete(payload any) {
	users, _ := payload.(int)
	err := r.RecordEvent(instrument.TestLifecycle, map[string]any{
		"event":      "ramp-up complete",
		"user_count": users,
		"text":       fmt.Sprintf("%s ramp-up complete with %d users", r.Process().Config.Testplan, users),
	})
	if err != nil {
		r.log.Error("ramp-up event not recorded", zap.Error(err))
	}
}

func (r *PrimaryRecorder) onCPUWarning(payload any) {
	warn, _ := payload.(harness.CPUWarning)
	err := r.RecordEvent(instrument.CPUWarning, map[string]any{
		"cpu_usage": warn.Usage,
		"message":   warn.Message,
	})
	if err != nil {
		r.log.Error("cpu warning not recorded", zap.Error(err))
	}
}

// onRunStop tears the run down once per run; the next run-start re-arms
// it so a long-lived process can host consecutive runs.
func (r *PrimaryRecorder) onRunStop(any) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	r.mu.Unlock()

	r.sampler.Stop()
	// Final pass so the last interval's traffic is not lost.
	if err := r.sampleStats(); err != nil {
		r.log.Error("final stats sample failed", zap.Error(err))
	}
	r.flushEndpoints()

	if err := r.RecordEvent(instrument.TestLifecycle, map[string]any{
		"event": "run stopped",
	}); err != nil {
		r.log.Error("run-stop event not recorded", zap.Error(err))
	}

	for _, kind := range r.Registry().Kinds() {
		r.Registry().Deregister(kind)
	}
}

// sampleStats feeds one pass of aggregate request counts into the
// request stats counter.
func (r *PrimaryRecorder) sampleStats() error {
	agg := r.Process().Stats
	if agg == nil {
		return nil
	}
	total := agg.Total()
	return r.RecordMetric(instrument.RequestStats, float64(total.NumRequests), map[string]any{
		"failures": total.NumFailures,
	})
}

// flushEndpoints emits one row per endpoint entry and one per distinct
// error at run-stop.
func (r *PrimaryRecorder) flushEndpoints() {
	agg := r.Process().Stats
	if agg == nil {
		return
	}
	for _, entry := range agg.Entries() {
		if err := r.RecordMetric(instrument.EndpointStats, float64(entry.NumRequests), endpointAttrs(entry)); err != nil {
			r.log.Error("endpoint stats not flushed",
				zap.String("endpoint", entry.Name), zap.Error(err))
		}
	}
	for _, e := range agg.Errors() {
		err := r.RecordMetric(instrument.EndpointErrors, float64(e.Occurrences), map[string]any{
			"endpoint": e.Name,
			"method":   e.Method,
			"error":    e.Error,
		})
		if err != nil {
			r.log.Error("endpoint errors not flushed",
				zap.String("endpoint", e.Name), zap.Error(err))
		}
	}
}

func (r *PrimaryRecorder) observeUsers() []instrument.Observation {
	agg := r.Process().Stats
	if agg == nil {
		return nil
	}
	return []instrument.Observation{{Value: float64(agg.UserCount())}}
}

func endpointAttrs(entry stats.Snapshot) map[string]any {
	return map[string]any{
		"endpoint":     entry.Name,
		"method":       entry.Method,
		"num_failures": entry.NumFailures,
		"avg_ms":       entry.AvgMs,
		"p95_ms":       entry.P95Ms,
		"p99_ms":       entry.P99Ms,
	}
}
