package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with the core telemetry flags
// configured. Extra flag declarations (recorder plugins, in registration
// order) are applied by the caller before parsing.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "loadfire",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags declares the core telemetry flag group.
func configureFlags(flags *pflag.FlagSet) {
	// Core telemetry flags
	flags.String("testplan", "", "Unique identifier for the test run or service under test (required)")
	flags.String("profile", "default", "Load profile name attached to run telemetry")
	flags.Duration("sample-interval", 2*time.Second, "Interval between periodic telemetry samples")
	flags.StringSlice("enable-recorder", nil, "Recorder plugins to activate for the run ('otel', 'log'; repeatable)")

	// Process identity flags
	flags.String("role", string(RolePrimary), "Process role: 'primary' or 'agent'")
	flags.Int("agent-index", 0, "Index of this agent process (agent role only)")

	// Message channel flags
	flags.String("listen", "", "Primary: address to serve the agent message channel on (e.g. :7070)")
	flags.String("primary-url", "", "Agent: websocket URL of the primary's message channel")

	// Demo load flags
	flags.IntP("users", "u", 1, "Number of simulated users")
	flags.IntP("rate", "r", 0, "Requests per second limit (0 means unlimited)")
	flags.DurationP("duration", "d", 10*time.Second, "How long to run the test (e.g. 30s, 1m)")

	// Logging flags
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-file", "", "Also write structured telemetry logs to this file")

	// Scenario and config file flags
	flags.String("scenario", "", "Path to YAML scenario file listing endpoints")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("testplan") {
		val, err := fs.GetString("testplan")
		if err != nil {
			return err
		}
		cfg.Testplan = strings.TrimSpace(val)
	}
	if fs.Changed("profile") {
		val, err := fs.GetString("profile")
		if err != nil {
			return err
		}
		cfg.Profile = strings.TrimSpace(val)
	}
	if fs.Changed("sample-interval") {
		val, err := fs.GetDuration("sample-interval")
		if err != nil {
			return err
		}
		cfg.SampleInterval = val
	}
	if fs.Changed("enable-recorder") {
		val, err := fs.GetStringSlice("enable-recorder")
		if err != nil {
			return err
		}
		cfg.EnabledRecorders = val
	}
	if fs.Changed("role") {
		val, err := fs.GetString("role")
		if err != nil {
			return err
		}
		cfg.Role = RoleName(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("agent-index") {
		val, err := fs.GetInt("agent-index")
		if err != nil {
			return err
		}
		cfg.AgentIndex = val
	}
	if fs.Changed("listen") {
		val, err := fs.GetString("listen")
		if err != nil {
			return err
		}
		cfg.ListenAddr = strings.TrimSpace(val)
	}
	if fs.Changed("primary-url") {
		val, err := fs.GetString("primary-url")
		if err != nil {
			return err
		}
		cfg.PrimaryURL = strings.TrimSpace(val)
	}
	if fs.Changed("users") {
		val, err := fs.GetInt("users")
		if err != nil {
			return err
		}
		cfg.NumUsers = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("log-file") {
		val, err := fs.GetString("log-file")
		if err != nil {
			return err
		}
		cfg.LogFile = strings.TrimSpace(val)
	}
	if fs.Changed("scenario") {
		val, err := fs.GetString("scenario")
		if err != nil {
			return err
		}
		cfg.ScenarioFile = strings.TrimSpace(val)
	}

	// Recorder plugin flags, declared via Loader.Load extra declarations.
	if flag := fs.Lookup("otel-exporter-endpoint"); flag != nil && fs.Changed("otel-exporter-endpoint") {
		val, err := fs.GetString("otel-exporter-endpoint")
		if err != nil {
			return err
		}
		cfg.OTel.Endpoint = strings.TrimSpace(val)
	}
	if flag := fs.Lookup("otel-exporter-protocol"); flag != nil && fs.Changed("otel-exporter-protocol") {
		val, err := fs.GetString("otel-exporter-protocol")
		if err != nil {
			return err
		}
		cfg.OTel.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if flag := fs.Lookup("otel-exporter-insecure"); flag != nil && fs.Changed("otel-exporter-insecure") {
		val, err := fs.GetBool("otel-exporter-insecure")
		if err != nil {
			return err
		}
		cfg.OTel.Insecure = val
	}
	if flag := fs.Lookup("otel-trace-injection"); flag != nil && fs.Changed("otel-trace-injection") {
		val, err := fs.GetBool("otel-trace-injection")
		if err != nil {
			return err
		}
		cfg.OTel.TraceInjection = val
	}

	return nil
}
