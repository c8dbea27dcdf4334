package config

import (
	"fmt"
	"strings"
	"time"
)

// RoleName identifies which side of the distributed harness this process runs as.
type RoleName string

const (
	RolePrimary RoleName = "primary"
	RoleAgent   RoleName = "agent"
)

// Recorder plugin identifiers accepted by --enable-recorder.
const (
	RecorderOtel = "otel"
	RecorderLog  = "log"
)

// OTelConfig configures the OTLP metrics/trace export backend.
type OTelConfig struct {
	Endpoint       string
	Protocol       string // "grpc" or "http"
	Insecure       bool
	TraceInjection bool
}

// Enabled reports whether an OTLP endpoint has been configured.
func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Endpoint describes one simulated endpoint driven by the demo scheduler.
type Endpoint struct {
	Name        string        `yaml:"name"`
	Method      string        `yaml:"method"`
	MeanLatency time.Duration `yaml:"mean_latency"`
	FailureRate float64       `yaml:"failure_rate"`
}

// UnmarshalYAML decodes an endpoint, accepting mean_latency as a
// duration string like "120ms".
func (e *Endpoint) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Name        string  `yaml:"name"`
		Method      string  `yaml:"method"`
		MeanLatency string  `yaml:"mean_latency"`
		FailureRate float64 `yaml:"failure_rate"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	e.Name = raw.Name
	e.Method = raw.Method
	e.FailureRate = raw.FailureRate
	if raw.MeanLatency != "" {
		d, err := time.ParseDuration(raw.MeanLatency)
		if err != nil {
			return fmt.Errorf("mean_latency: %w", err)
		}
		e.MeanLatency = d
	}
	return nil
}

// Scenario is the test-plan scenario file: the endpoints the demo
// scheduler exercises during a run.
type Scenario struct {
	Endpoints []Endpoint `yaml:"endpoints"`
}

// Config holds all runtime configuration for one harness process.
type Config struct {
	// Core telemetry options
	Testplan         string
	Profile          string
	SampleInterval   time.Duration
	EnabledRecorders []string

	// Process identity
	Role       RoleName
	AgentIndex int

	// Message channel wiring
	ListenAddr string // primary: websocket listen address for agents
	PrimaryURL string // agent: websocket URL of the primary

	// Demo load parameters
	NumUsers int
	Rate     int
	Duration time.Duration

	// Logging
	LogLevel string
	LogFile  string

	// Export backend
	OTel OTelConfig

	ScenarioFile string
	Scenario     Scenario
	ConfigFile   string
}

// Validate checks configuration invariants that are fatal at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Testplan) == "" {
		return fmt.Errorf("testplan is required: pass --testplan or set it in the config file")
	}
	switch c.Role {
	case RolePrimary:
	case RoleAgent:
		if c.AgentIndex < 0 {
			return fmt.Errorf("agent-index must be >= 0, got %d", c.AgentIndex)
		}
	default:
		return fmt.Errorf("role must be %q or %q, got %q", RolePrimary, RoleAgent, c.Role)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("sample-interval must be positive, got %s", c.SampleInterval)
	}
	for _, name := range c.EnabledRecorders {
		if name != RecorderOtel && name != RecorderLog {
			return fmt.Errorf("unknown recorder %q: use %q or %q", name, RecorderOtel, RecorderLog)
		}
	}
	if c.OTel.Protocol != "" && c.OTel.Protocol != "grpc" && c.OTel.Protocol != "http" {
		return fmt.Errorf("otel-exporter-protocol must be \"grpc\" or \"http\", got %q", c.OTel.Protocol)
	}
	return nil
}

// RecorderEnabled reports whether the named recorder plugin is active
// for this run. An empty selector activates every registered recorder.
func (c *Config) RecorderEnabled(id string) bool {
	if len(c.EnabledRecorders) == 0 {
		return true
	}
	for _, name := range c.EnabledRecorders {
		if name == id {
			return true
		}
	}
	return false
}
