// Package config loads the YAML document describing how a host
// process wires the imagecodec core: device-capacity defaults, runner
// sizing, and telemetry publishing (SPEC_FULL.md §4.6).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete host configuration.
type Config struct {
	InstanceID  string          `yaml:"instance_id"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Runners     RunnersConfig   `yaml:"runners"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// CoordinatorConfig seeds the initial device-capacity budget before
// the provider's own evaluateDeviceStatus republishes it.
type CoordinatorConfig struct {
	CPUCoreCount           uint32 `yaml:"cpu_core_count"`
	MaxMemoryInFlightBytes uint64 `yaml:"max_memory_in_flight_bytes"`
}

// RunnersConfig sizes the concrete Worker pool. UI and IO are always
// single-threaded (spec.md §5) so they take no size knob.
type RunnersConfig struct {
	WorkerPoolSize int `yaml:"worker_pool_size"`
}

// TelemetryConfig configures the optional MQTT publisher.
type TelemetryConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Broker            string `yaml:"broker"`
	PublishIntervalS  int    `yaml:"publish_interval_s"`
}

// PublishInterval returns PublishIntervalS as a time.Duration.
func (t TelemetryConfig) PublishInterval() time.Duration {
	return time.Duration(t.PublishIntervalS) * time.Second
}

// Load reads path, parses it as YAML, and validates it fail-fast.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration in %s: %w", path, err)
	}

	return &cfg, nil
}
