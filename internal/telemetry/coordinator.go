package telemetry

import (
	"sync"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/platform-crew/loadfire/internal/harness"
	"github.com/platform-crew/loadfire/internal/logging"
)

// Coordinator wires the registered plugins into a process lifecycle.
// On the primary it assigns run metadata at run-start and broadcasts
// it before plugins load; on agents it applies incoming metadata and
// loads plugins at process init, before any run traffic.
type Coordinator struct {
	registry *PluginRegistry
	log      *zap.Logger

	initOnce sync.Once
	loadOnce sync.Once
}

// NewCoordinator creates a coordinator over the given plugin registry.
// A nil log falls back to the process logger at call time, so a
// coordinator built before logging is configured still logs.
func NewCoordinator(registry *PluginRegistry, log *zap.Logger) *Coordinator {
	return &Coordinator{registry: registry, log: log}
}

func (c *Coordinator) logger() *zap.Logger {
	if c.log != nil {
		return c.log
	}
	return logging.L()
}

// RegisterFlags lets every registered plugin declare its flags, in
// registration order.
func (c *Coordinator) RegisterFlags(fs *pflag.FlagSet) {
	for _, p := range c.registry.Plugins() {
		p.AddCLIArguments(fs)
	}
}

// Initialize hooks the coordinator into the process lifecycle. It is
// idempotent; only the first call takes effect.
func (c *Coordinator) Initialize(proc *harness.Process) {
	c.initOnce.Do(func() {
		proc.Events.Subscribe(harness.EventInit, func(any) {
			if err := logging.Configure(logging.Options{
				Level:    proc.Config.LogLevel,
				FilePath: proc.Config.LogFile,
			}); err != nil {
				c.logger().Error("logging not configured", zap.Error(err))
			}
		})

		if proc.Role.IsAgent() {
			proc.Bus.RegisterHandler(MessageSetMetadata, func(payload []byte) {
				values, err := decodeMetadata(payload)
				if err != nil {
					c.logger().Error("dropping malformed run metadata", zap.Error(err))
					return
				}
				proc.Metadata.Replace(values)
				c.logger().Debug("run metadata applied",
					zap.String("run_id", proc.Metadata.Get(harness.MetaRunID)))
				c.loadPlugins(proc)
			})
			proc.Events.Subscribe(harness.EventInit, func(any) {
				c.loadPlugins(proc)
			})
			return
		}

		proc.Events.Subscribe(harness.EventRunStart, func(any) {
			values := newRunMetadata(proc.Config)
			proc.Metadata.Replace(values)
			if payload, err := encodeMetadata(values); err != nil {
				c.logger().Error("run metadata not broadcast", zap.Error(err))
			} else if err := proc.Bus.Send(MessageSetMetadata, payload); err != nil {
				c.logger().Error("run metadata not broadcast", zap.Error(err))
			}
			c.loadPlugins(proc)
		})
	})
}

// loadPlugins activates the role-matching recorder of every enabled
// plugin, once per process. A failing or panicking plugin is logged
// and skipped; the rest still load.
func (c *Coordinator) loadPlugins(proc *harness.Process) {
	c.loadOnce.Do(func() {
		for _, p := range c.registry.Plugins() {
			if !proc.Config.RecorderEnabled(p.ID()) {
				c.logger().Debug("recorder disabled", zap.String("recorder", p.ID()))
				continue
			}
			c.loadPlugin(proc, p)
		}
	})
}

func (c *Coordinator) loadPlugin(proc *harness.Process, p Plugin) {
	defer func() {
		if r := recover(); r != nil {
			c.logger().Error("recorder load panicked",
				zap.String("recorder", p.ID()),
				zap.String("role", proc.Role.String()),
				zap.Any("panic", r))
		}
	}()

	var err error
	if proc.Role.IsPrimary() {
		err = p.LoadPrimary(proc)
	} else {
		err = p.LoadAgent(proc)
	}
	if err != nil {
		c.logger().Error("recorder load failed",
			zap.String("recorder", p.ID()),
			zap.String("role", proc.Role.String()),
			zap.Error(err))
		return
	}
	c.logger().Info("recorder loaded",
		zap.String("recorder", p.ID()),
		zap.String("role", proc.Role.String()))
}
