package harness

import (
	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/stats"
	"github.com/platform-crew/loadfire/internal/sysres"
	"github.com/platform-crew/loadfire/internal/transport"
)

// Process is the per-process context threaded through every telemetry
// component: role, parsed configuration, the lifecycle event bus, the
// primary/agent message channel, the run metadata store, and the
// statistics and resource-sampling collaborators. It replaces the
// process-wide singletons of a classic plugin framework; tests reset
// state by constructing a fresh Process.
type Process struct {
	Role      Role
	Config    *config.Config
	Events    *Events
	Bus       transport.Bus
	Metadata  *Metadata
	Stats     *stats.Aggregator
	Resources sysres.Sampler
}

// NewProcess assembles a process context. Stats and Resources may be nil
// when a recorder set does not need them (they are nil-checked at use).
func NewProcess(role Role, cfg *config.Config, events *Events, bus transport.Bus, agg *stats.Aggregator, res sysres.Sampler) *Process {
	return &Process{
		Role:      role,
		Config:    cfg,
		Events:    events,
		Bus:       bus,
		Metadata:  NewMetadata(),
		Stats:     agg,
		Resources: res,
	}
}
