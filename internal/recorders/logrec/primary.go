package logrec

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

// PrimaryRecorder writes run-level telemetry as structured log rows:
// lifecycle events, periodic aggregate stats with percentiles, and the
// per-endpoint tables at run-stop.
type PrimaryRecorder struct {
	*telemetry.Recorder
	log     *zap.Logger
	sampler *sampler.Sampler

	mu     sync.Mutex
	active bool
}

// NewPrimaryRecorder constructs the recorder and subscribes it to the
// process lifecycle.
func NewPrimaryRecorder(proc *harness.Process, sink *logging.Sink) *PrimaryRecorder {
	r := &PrimaryRecorder{
		Recorder: telemetry.NewRecorder(config.RecorderLog, proc, nil, sink),
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

	r.mu.Lock()
	r.active = true
	r.mu.Unlock()

	if err := r.RecordEvent(instrument.TestLifecycle, map[string]any{
		"event":     "run started",
		"num_users": info.NumUsers,
		"profile":   info.Profile,
	}); err != nil {
		r.log.Error("run-start event not recorded", zap.Error(err))
	}

	if err := r.sampler.Start(r.Process().Config.SampleInterval, r.sample); err != nil {
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

// onRunStop flushes once per run; the next run-start re-arms it so a
// long-lived process can host consecutive runs.
func (r *PrimaryRecorder) onRunStop(any) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	r.mu.Unlock()

	r.sampler.Stop()
	if err := r.sampleStats(); err != nil {
		r.log.Error("final stats sample failed", zap.Error(err))
	}
	r.flushEndpoints()
	if err := r.RecordEvent(instrument.TestLifecycle, map[string]any{
		"event": "run stopped",
	}); err != nil {
		r.log.Error("run-stop event not recorded", zap.Error(err))
	}
}

// sample is one periodic pass: the aggregate request row plus system
// usage when a resource sampler is attached.
func (r *PrimaryRecorder) sample() error {
	if err := r.sampleStats(); err != nil {
		return err
	}
	return sampleUsage(r.Recorder)
}

// sampleStats writes one CURRENT aggregate row: total counts with the
// live user count and tail percentiles.
func (r *PrimaryRecorder) sampleStats() error {
	agg := r.Process().Stats
	if agg == nil {
		return nil
	}
	total := agg.Total()
	return r.RecordMetric(instrument.RequestStats, float64(total.NumRequests), map[string]any{
		"num_failures": total.NumFailures,
		"user_count":   agg.UserCount(),
		"avg_ms":       total.AvgMs,
		"p95_ms":       total.P95Ms,
		"p99_ms":       total.P99Ms,
		"rps":          total.RPS,
	})
}

func (r *PrimaryRecorder) flushEndpoints() {
	agg := r.Process().Stats
	if agg == nil {
		return
	}
	for _, entry := range agg.Entries() {
		if err := r.RecordMetric(instrument.EndpointStats, float64(entry.NumRequests), endpointRow(entry)); err != nil {
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

func endpointRow(entry stats.Snapshot) map[string]any {
	return map[string]any{
		"endpoint":     entry.Name,
		"method":       entry.Method,
		"num_failures": entry.NumFailures,
		"avg_ms":       entry.AvgMs,
		"min_ms":       entry.MinMs,
		"max_ms":       entry.MaxMs,
		"p50_ms":       entry.P50Ms,
		"p95_ms":       entry.P95Ms,
		"p99_ms":       entry.P99Ms,
	}
}
