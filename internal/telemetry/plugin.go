// Package telemetry coordinates recorder plugins across the test
// lifecycle: registering them, loading the right variant for the
// process role, and propagating run metadata from the primary to the
// agents.
package telemetry

import (
	"sync"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/platform-crew/loadfire/internal/harness"
	"github.com/platform-crew/loadfire/internal/logging"
)

// Plugin is one telemetry recorder family. The coordinator asks it to
// declare its flags before parsing and to load its role-specific
// recorder when the process initializes.
type Plugin interface {
	// ID is the stable recorder name used by --enable-recorder.
	ID() string
	// AddCLIArguments declares the plugin's flags on the shared set.
	AddCLIArguments(fs *pflag.FlagSet)
	// LoadPrimary activates the plugin's primary-side recorder.
	LoadPrimary(proc *harness.Process) error
	// LoadAgent activates the plugin's agent-side recorder.
	LoadAgent(proc *harness.Process) error
}

// PluginRegistry holds the registered plugins in registration order.
// Registering the same plugin value twice keeps its original position.
type PluginRegistry struct {
	mu      sync.Mutex
	plugins []Plugin
}

// NewPluginRegistry creates an empty registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{}
}

// Register appends the plugin unless it is already registered.
func (r *PluginRegistry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.plugins {
		if existing == p {
			logging.L().Debug("recorder plugin already registered", zap.String("recorder", p.ID()))
			return
		}
	}
	r.plugins = append(r.plugins, p)
	logging.L().Debug("recorder plugin registered", zap.String("recorder", p.ID()))
}

// Plugins returns the registered plugins in registration order.
func (r *PluginRegistry) Plugins() []Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}
