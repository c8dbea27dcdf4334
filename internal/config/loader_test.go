package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load([]string{"--testplan", "checkout-flow"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Testplan != "checkout-flow" {
		t.Errorf("Testplan = %q", cfg.Testplan)
	}
	if cfg.Profile != "default" {
		t.Errorf("Profile = %q, want default", cfg.Profile)
	}
	if cfg.SampleInterval != 2*time.Second {
		t.Errorf("SampleInterval = %s, want 2s", cfg.SampleInterval)
	}
	if cfg.Role != RolePrimary {
		t.Errorf("Role = %q, want primary", cfg.Role)
	}
	if cfg.NumUsers != 1 {
		t.Errorf("NumUsers = %d, want 1", cfg.NumUsers)
	}
	if cfg.Duration != 10*time.Second {
		t.Errorf("Duration = %s, want 10s", cfg.Duration)
	}
	if cfg.OTel.Protocol != "grpc" {
		t.Errorf("OTel.Protocol = %q, want grpc", cfg.OTel.Protocol)
	}
	if !cfg.OTel.TraceInjection {
		t.Error("OTel.TraceInjection = false, want true by default")
	}
}

func TestLoadFlagOverrides(t *testing.T) {
	cfg, err := NewLoader().Load([]string{
		"--testplan", "checkout-flow",
		"--profile", "spike",
		"--sample-interval", "5s",
		"--enable-recorder", "otel",
		"--enable-recorder", "log",
		"--role", "agent",
		"--agent-index", "3",
		"--primary-url", "ws://primary:7070/channel",
		"-u", "50",
		"-r", "200",
		"-d", "1m",
		"--log-level", "debug",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Profile != "spike" {
		t.Errorf("Profile = %q", cfg.Profile)
	}
	if cfg.SampleInterval != 5*time.Second {
		t.Errorf("SampleInterval = %s", cfg.SampleInterval)
	}
	if len(cfg.EnabledRecorders) != 2 || cfg.EnabledRecorders[0] != "otel" || cfg.EnabledRecorders[1] != "log" {
		t.Errorf("EnabledRecorders = %v", cfg.EnabledRecorders)
	}
	if cfg.Role != RoleAgent || cfg.AgentIndex != 3 {
		t.Errorf("Role = %q index %d", cfg.Role, cfg.AgentIndex)
	}
	if cfg.PrimaryURL != "ws://primary:7070/channel" {
		t.Errorf("PrimaryURL = %q", cfg.PrimaryURL)
	}
	if cfg.NumUsers != 50 || cfg.Rate != 200 || cfg.Duration != time.Minute {
		t.Errorf("load params = %d/%d/%s", cfg.NumUsers, cfg.Rate, cfg.Duration)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoadConfigFileWithFlagPrecedence(t *testing.T) {
	path := writeTempFile(t, "config.yaml", `
testplan: checkout-flow
profile: soak
users: 10
sample_interval: 30
otel:
  endpoint: collector:4317
  insecure: true
`)

	cfg, err := NewLoader().Load([]string{"--config", path, "--profile", "spike"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Testplan != "checkout-flow" {
		t.Errorf("Testplan = %q", cfg.Testplan)
	}
	// Flag beats file.
	if cfg.Profile != "spike" {
		t.Errorf("Profile = %q, want spike", cfg.Profile)
	}
	if cfg.NumUsers != 10 {
		t.Errorf("NumUsers = %d, want 10", cfg.NumUsers)
	}
	// Bare numbers in the file are seconds.
	if cfg.SampleInterval != 30*time.Second {
		t.Errorf("SampleInterval = %s, want 30s", cfg.SampleInterval)
	}
	if cfg.OTel.Endpoint != "collector:4317" || !cfg.OTel.Insecure {
		t.Errorf("OTel = %+v", cfg.OTel)
	}
}

func TestLoadRejectsUnknownConfigKey(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "testplan: x\nbogus_key: 1\n")

	_, err := NewLoader().Load([]string{"--config", path})
	if err == nil || !strings.Contains(err.Error(), "bogus_key") {
		t.Fatalf("expected unknown-key error, got %v", err)
	}
}

func TestLoadScenarioFile(t *testing.T) {
	path := writeTempFile(t, "scenario.yaml", `
endpoints:
  - name: /login
    method: post
    mean_latency: 120ms
    failure_rate: 0.05
  - name: /cart
`)

	cfg, err := NewLoader().Load([]string{"--testplan", "x", "--scenario", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	eps := cfg.Scenario.Endpoints
	if len(eps) != 2 {
		t.Fatalf("%d endpoints, want 2", len(eps))
	}
	if eps[0].Method != "POST" {
		t.Errorf("method = %q, want POST (upcased)", eps[0].Method)
	}
	if eps[1].Method != "GET" {
		t.Errorf("default method = %q, want GET", eps[1].Method)
	}
}

func TestLoadDeclaresPluginFlags(t *testing.T) {
	declare := func(fs *pflag.FlagSet) {
		fs.String("otel-exporter-endpoint", "", "")
		fs.Bool("otel-exporter-insecure", false, "")
	}

	cfg, err := NewLoader().Load([]string{
		"--testplan", "x",
		"--otel-exporter-endpoint", "collector:4317",
		"--otel-exporter-insecure",
	}, declare)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OTel.Endpoint != "collector:4317" || !cfg.OTel.Insecure {
		t.Errorf("OTel = %+v", cfg.OTel)
	}
}

func TestLoadHelp(t *testing.T) {
	_, err := NewLoader().Load([]string{"--help"})
	if !errors.Is(err, ErrHelpRequested) {
		t.Fatalf("expected ErrHelpRequested, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Testplan:       "x",
			Role:           RolePrimary,
			SampleInterval: time.Second,
			OTel:           OTelConfig{Protocol: "grpc"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing testplan", func(c *Config) { c.Testplan = "" }, "testplan"},
		{"bad role", func(c *Config) { c.Role = "observer" }, "role"},
		{"zero interval", func(c *Config) { c.SampleInterval = 0 }, "sample-interval"},
		{"unknown recorder", func(c *Config) { c.EnabledRecorders = []string{"statsd"} }, "recorder"},
		{"bad protocol", func(c *Config) { c.OTel.Protocol = "udp" }, "protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestRecorderEnabled(t *testing.T) {
	cfg := &Config{}
	if !cfg.RecorderEnabled("otel") || !cfg.RecorderEnabled("log") {
		t.Error("empty selector should enable all recorders")
	}

	cfg.EnabledRecorders = []string{"log"}
	if cfg.RecorderEnabled("otel") {
		t.Error("otel should be disabled")
	}
	if !cfg.RecorderEnabled("log") {
		t.Error("log should be enabled")
	}
}
