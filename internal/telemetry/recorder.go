package telemetry

import (
	"context"
	"time"

	"github.com/platform-crew/loadfire/internal/harness"
	"github.com/platform-crew/loadfire/internal/logging"
	"github.com/platform-crew/loadfire/internal/telemetry/instrument"
)

// Recorder is the shared base of concrete recorders. It carries the
// process context, the instrument registry, and the structured log
// sink, and stamps every emission with the current run context.
type Recorder struct {
	name     string
	proc     *harness.Process
	registry *instrument.Registry
	sink     *logging.Sink
}

// NewRecorder assembles a recorder base. registry and sink may be nil
// for recorders that only use one of the two outputs.
func NewRecorder(name string, proc *harness.Process, registry *instrument.Registry, sink *logging.Sink) *Recorder {
	return &Recorder{name: name, proc: proc, registry: registry, sink: sink}
}

// Name returns the recorder's id.
func (r *Recorder) Name() string { return r.name }

// Process returns the process context.
func (r *Recorder) Process() *harness.Process { return r.proc }

// Registry returns the instrument registry, possibly nil.
func (r *Recorder) Registry() *instrument.Registry { return r.registry }

// Context returns the run context stamped on every emission. Before
// the primary assigns metadata the run id and testplan read as their
// unpropagated values.
func (r *Recorder) Context() map[string]string {
	testplan := r.proc.Metadata.Get(harness.MetaTestplan)
	if testplan == "" {
		testplan = r.proc.Config.Testplan
	}
	return map[string]string{
		"run_id":   r.proc.Metadata.Get(harness.MetaRunID),
		"testplan": testplan,
		"role":     r.proc.Role.String(),
		"recorder": r.name,
	}
}

// RecordEvent emits a point-in-time occurrence for the kind: the
// current wall clock in epoch milliseconds goes to the kind's
// instrument, and the same attributes go to the log sink.
func (r *Recorder) RecordEvent(kind instrument.Kind, attrs map[string]any) error {
	now := float64(time.Now().UnixMilli())
	if r.sink != nil {
		r.sink.Write("event", string(kind), r.Context(), attrs)
	}
	if r.registry == nil {
		return nil
	}
	return r.registry.Record(context.Background(), kind, now, attrs)
}

// RecordMetric emits a measured value into the kind's instrument and,
// when a sink is attached, as a structured metric row carrying the
// value.
func (r *Recorder) RecordMetric(kind instrument.Kind, value float64, attrs map[string]any) error {
	if r.sink != nil {
		row := make(map[string]any, len(attrs)+1)
		for k, v := range attrs {
			row[k] = v
		}
		row["value"] = value
		r.sink.Write("metric", string(kind), r.Context(), row)
	}
	if r.registry == nil {
		return nil
	}
	return r.registry.Record(context.Background(), kind, value, attrs)
}
