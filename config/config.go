// Package config loads the run configuration of the behaveflow CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	projectConfigName = "behaveflow.yaml"
	homeConfigName    = "config.yaml"
)

// State backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// RunConfig is the shape of behaveflow.yaml. Command-line flags override it.
type RunConfig struct {
	Log       LogConfig       `yaml:"log"`
	Engine    EngineConfig    `yaml:"engine"`
	State     StateConfig     `yaml:"state"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig selects the CLI log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig controls how the graph is driven.
type EngineConfig struct {
	// Passes is the ExecuteAllAsync budget after each lifecycle pulse.
	Passes int `yaml:"passes"`

	// StepLimit bounds steps per drain pass (0 = unlimited).
	StepLimit int `yaml:"stepLimit"`

	// Iterations is how many tick pulses are fired when Cron is empty.
	Iterations int `yaml:"iterations"`

	// Cron fires ticks on a schedule, e.g. "@every 100ms", for Duration.
	Cron     string        `yaml:"cron,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty"`
}

// StateConfig selects where node state lives.
type StateConfig struct {
	Backend string      `yaml:"backend"`
	Key     string      `yaml:"key,omitempty"`
	Redis   RedisConfig `yaml:"redis,omitempty"`
	SQLite  SQLiteDSN   `yaml:"sqlite,omitempty"`
}

// RedisConfig addresses a Redis server.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	Prefix   string        `yaml:"prefix,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}

// SQLiteDSN names a SQLite database.
type SQLiteDSN struct {
	DSN string `yaml:"dsn"`
}

// EventsConfig persists engine events.
type EventsConfig struct {
	DB             string        `yaml:"db,omitempty"`
	RetentionAge   time.Duration `yaml:"retentionAge,omitempty"`
	RetentionCount int           `yaml:"retentionCount,omitempty"`
	Throttle       time.Duration `yaml:"throttle,omitempty"`
}

// TelemetryConfig enables tracing and metrics.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
	ServiceName  string `yaml:"serviceName,omitempty"`
	MetricsAddr  string `yaml:"metricsAddr,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() RunConfig {
	return RunConfig{
		Log:    LogConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{Passes: 5, Iterations: 5},
		State:  StateConfig{Backend: BackendMemory},
		Telemetry: TelemetryConfig{
			ServiceName: "behaveflow",
		},
	}
}

// Validate checks value ranges and the state backend.
func (c RunConfig) Validate() error {
	var errs []error
	if c.Engine.Passes < 1 {
		errs = append(errs, fmt.Errorf("engine.passes must be at least 1, got %d", c.Engine.Passes))
	}
	if c.Engine.StepLimit < 0 {
		errs = append(errs, fmt.Errorf("engine.stepLimit must not be negative, got %d", c.Engine.StepLimit))
	}
	if c.Engine.Iterations < 0 {
		errs = append(errs, fmt.Errorf("engine.iterations must not be negative, got %d", c.Engine.Iterations))
	}
	if c.Engine.Cron != "" && c.Engine.Duration <= 0 {
		errs = append(errs, errors.New("engine.duration is required with engine.cron"))
	}
	switch c.State.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.State.Redis.Addr == "" {
			errs = append(errs, errors.New("state.redis.addr is required for the redis backend"))
		}
	case BackendSQLite:
		if c.State.SQLite.DSN == "" {
			errs = append(errs, errors.New("state.sqlite.dsn is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state backend %q", c.State.Backend))
	}
	if c.State.Backend != BackendMemory && c.State.Key == "" {
		errs = append(errs, errors.New("state.key is required for a durable backend"))
	}
	return errors.Join(errs...)
}

// Load reads path over the defaults.
func Load(path string) (RunConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Discover resolves the config path: the explicit path if given, else
// behaveflow.yaml in the working directory, else ~/.behaveflow/config.yaml.
// found is false when no implicit candidate exists.
func Discover(explicitPath string) (path string, found bool, err error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}
	return DiscoverFrom(explicitPath, cwd, homeDir)
}

// DiscoverFrom is Discover with explicit directories.
func DiscoverFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	var candidates []string
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		if homeDir != "" {
			candidates = append(candidates, filepath.Join(homeDir, ".behaveflow", homeConfigName))
		}
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Resolve discovers and loads the configuration, falling back to Default.
func Resolve(explicitPath string) (RunConfig, string, error) {
	path, found, err := Discover(explicitPath)
	if err != nil {
		return Default(), "", err
	}
	if !found {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}
