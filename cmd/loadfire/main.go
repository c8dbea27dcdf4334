package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/export"
	"github.com/platform-crew/loadfire/internal/harness"
	"github.com/platform-crew/loadfire/internal/logging"
	"github.com/platform-crew/loadfire/internal/recorders/logrec"
	"github.com/platform-crew/loadfire/internal/recorders/otelrec"
	"github.com/platform-crew/loadfire/internal/stats"
	"github.com/platform-crew/loadfire/internal/sysres"
	"github.com/platform-crew/loadfire/internal/telemetry"
	"github.com/platform-crew/loadfire/internal/transport"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// Plugins declare their flags before parsing, in registration
	// order.
	otelPlugin := otelrec.New()
	logPlugin := logrec.New()

	registry := telemetry.NewPluginRegistry()
	registry.Register(otelPlugin)
	registry.Register(logPlugin)
	coord := telemetry.NewCoordinator(registry, nil)

	loader := config.NewLoader()
	cfg, err := loader.Load(args, coord.RegisterFlags)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Configure(logging.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile}); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	log := logging.L()

	role := harness.Primary()
	if cfg.Role == config.RoleAgent {
		role = harness.Agent(cfg.AgentIndex)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, closeBus, err := buildBus(ctx, role, cfg, log)
	if err != nil {
		return err
	}
	defer closeBus()

	res, err := sysres.NewProcessSampler()
	if err != nil {
		log.Warn("resource sampling unavailable", zap.Error(err))
	}

	var resources sysres.Sampler
	if res != nil {
		resources = res
	}
	proc := harness.NewProcess(role, cfg, harness.NewEvents(), bus, stats.NewAggregator(), resources)
	coord.Initialize(proc)

	log.Info("process starting",
		zap.String("role", role.String()),
		zap.String("testplan", cfg.Testplan),
		zap.String("profile", cfg.Profile))

	tracer, err := export.InitTracer(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	proc.Events.Fire(harness.EventInit, nil)
	proc.Events.Fire(harness.EventRunStart, harness.RunInfo{
		NumUsers: cfg.NumUsers,
		Profile:  cfg.Profile,
	})

	// The whole run becomes one exported span when tracing is on.
	runCtx, span := tracer.Tracer().Start(ctx, "test run", trace.WithAttributes(
		attribute.String("testplan", cfg.Testplan),
		attribute.String("profile", cfg.Profile),
		attribute.Int("num_users", cfg.NumUsers),
	))

	watchCtx, stopWatch := context.WithCancel(runCtx)
	go harness.WatchCPU(watchCtx, proc, cfg.SampleInterval)

	scheduler := harness.NewScheduler(proc, time.Now().UnixNano())
	if tracer.ShouldPropagate() {
		scheduler.SetHeaderInjection(tracer.InjectHeaders)
	}
	if err := scheduler.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("load loop failed", zap.Error(err))
	}
	stopWatch()
	span.End()

	proc.Events.Fire(harness.EventRunStop, nil)

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := otelPlugin.Shutdown(flushCtx); err != nil {
		log.Warn("metric export shutdown failed", zap.Error(err))
	}
	if err := tracer.Shutdown(flushCtx); err != nil {
		log.Warn("trace export shutdown failed", zap.Error(err))
	}

	log.Info("process finished", zap.String("role", role.String()))
	return nil
}

// buildBus wires the primary/agent message channel: a websocket hub on
// the primary, a websocket client on agents, and an in-process
// loopback for standalone runs.
func buildBus(ctx context.Context, role harness.Role, cfg *config.Config, log *zap.Logger) (transport.Bus, func(), error) {
	switch {
	case role.IsPrimary() && cfg.ListenAddr != "":
		hub := transport.NewHub(log)
		if err := hub.Listen(cfg.ListenAddr); err != nil {
			return nil, nil, fmt.Errorf("listen for agents: %w", err)
		}
		return hub, func() { _ = hub.Close() }, nil

	case role.IsAgent() && cfg.PrimaryURL != "":
		client := transport.NewClient(log)
		if err := client.Connect(ctx, cfg.PrimaryURL); err != nil {
			return nil, nil, fmt.Errorf("connect to primary: %w", err)
		}
		return client, func() { _ = client.Close() }, nil

	default:
		return transport.NewLoopback(), func() {}, nil
	}
}
