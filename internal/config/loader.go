package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a
// Config. The declare callbacks add extra flags (one per registered recorder
// plugin, in registration order) before parsing.
func (Loader) Load(args []string, declare ...func(*pflag.FlagSet)) (*Config, error) {
	cmd := newFlagCommand()
	for _, fn := range declare {
		fn(cmd.Flags())
	}
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Profile:        "default",
		SampleInterval: 2 * time.Second,
		Role:           RolePrimary,
		NumUsers:       1,
		Duration:       10 * time.Second,
		LogLevel:       "info",
		OTel:           OTelConfig{Protocol: "grpc", TraceInjection: true},
		ConfigFile:     configPath,
	}

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Testplan = strings.TrimSpace(cfg.Testplan)

	if cfg.ScenarioFile != "" {
		scenario, err := loadScenario(cfg.ScenarioFile)
		if err != nil {
			return nil, err
		}
		cfg.Scenario = scenario
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	for key, value := range settings {
		switch key {
		case "testplan":
			cfg.Testplan = toString(value)
		case "profile":
			cfg.Profile = toString(value)
		case "sample_interval":
			d, err := toDuration(value)
			if err != nil {
				return fmt.Errorf("sample_interval: %w", err)
			}
			cfg.SampleInterval = d
		case "enable_recorder":
			cfg.EnabledRecorders = toStringSlice(value)
		case "role":
			cfg.Role = RoleName(strings.ToLower(toString(value)))
		case "agent_index":
			n, err := toInt(value)
			if err != nil {
				return fmt.Errorf("agent_index: %w", err)
			}
			cfg.AgentIndex = n
		case "listen":
			cfg.ListenAddr = toString(value)
		case "primary_url":
			cfg.PrimaryURL = toString(value)
		case "users":
			n, err := toInt(value)
			if err != nil {
				return fmt.Errorf("users: %w", err)
			}
			cfg.NumUsers = n
		case "rate":
			n, err := toInt(value)
			if err != nil {
				return fmt.Errorf("rate: %w", err)
			}
			cfg.Rate = n
		case "duration":
			d, err := toDuration(value)
			if err != nil {
				return fmt.Errorf("duration: %w", err)
			}
			cfg.Duration = d
		case "log_level":
			cfg.LogLevel = strings.ToLower(toString(value))
		case "log_file":
			cfg.LogFile = toString(value)
		case "scenario":
			cfg.ScenarioFile = toString(value)
		case "otel":
			sub, ok := value.(map[string]interface{})
			if !ok {
				return fmt.Errorf("otel section must be a map")
			}
			if err := applyOtelSettings(&cfg.OTel, sub); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown config key %q", key)
		}
	}
	return nil
}

func applyOtelSettings(cfg *OTelConfig, settings map[string]interface{}) error {
	for key, value := range settings {
		switch key {
		case "endpoint":
			cfg.Endpoint = toString(value)
		case "protocol":
			cfg.Protocol = strings.ToLower(toString(value))
		case "insecure":
			b, err := toBool(value)
			if err != nil {
				return fmt.Errorf("otel.insecure: %w", err)
			}
			cfg.Insecure = b
		case "trace_injection":
			b, err := toBool(value)
			if err != nil {
				return fmt.Errorf("otel.trace_injection: %w", err)
			}
			cfg.TraceInjection = b
		default:
			return fmt.Errorf("unknown config key %q under otel", key)
		}
	}
	return nil
}

// loadScenario reads and validates a YAML scenario file.
func loadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("reading scenario file: %w", err)
	}
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return Scenario{}, fmt.Errorf("parsing scenario file %s: %w", path, err)
	}
	for i, ep := range scenario.Endpoints {
		if strings.TrimSpace(ep.Name) == "" {
			return Scenario{}, fmt.Errorf("scenario endpoint %d has no name", i)
		}
		if ep.Method == "" {
			scenario.Endpoints[i].Method = "GET"
		} else {
			scenario.Endpoints[i].Method = strings.ToUpper(ep.Method)
		}
		if ep.FailureRate < 0 || ep.FailureRate > 1 {
			return Scenario{}, fmt.Errorf("scenario endpoint %q: failure_rate must be in [0,1]", ep.Name)
		}
	}
	return scenario, nil
}
