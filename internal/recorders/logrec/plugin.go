// Package logrec is the structured-log recorder plugin: every
// telemetry emission becomes one JSON log line through the shared
// sink, with no metric backend involved.
package logrec

import (
	"github.com/spf13/pflag"

	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/harness"
	"github.com/platform-crew/loadfire/internal/logging"
	"github.com/platform-crew/loadfire/internal/telemetry"
)

// Plugin wires the log recorder family into the coordinator.
type Plugin struct {
	// sink overrides the default process-wide sink; tests capture
	// output through it.
	sink *logging.Sink
}

// New returns the log recorder plugin writing through the process
// logger.
func New() *Plugin {
	return &Plugin{}
}

// NewWithSink returns a plugin writing through a specific sink.
func NewWithSink(sink *logging.Sink) *Plugin {
	return &Plugin{sink: sink}
}

// ID implements telemetry.Plugin.
func (p *Plugin) ID() string { return config.RecorderLog }

// AddCLIArguments implements telemetry.Plugin. The log recorder shares
// the core --log-file and --log-level flags and adds none of its own.
func (p *Plugin) AddCLIArguments(*pflag.FlagSet) {}

// LoadPrimary implements telemetry.Plugin.
func (p *Plugin) LoadPrimary(proc *harness.Process) error {
	NewPrimaryRecorder(proc, p.resolveSink())
	return nil
}

// LoadAgent implements telemetry.Plugin.
func (p *Plugin) LoadAgent(proc *harness.Process) error {
	NewAgentRecorder(proc, p.resolveSink())
	return nil
}

func (p *Plugin) resolveSink() *logging.Sink {
	if p.sink != nil {
		return p.sink
	}
	return logging.NewSink(logging.L())
}

var _ telemetry.Plugin = (*Plugin)(nil)
