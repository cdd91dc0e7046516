package config

import "fmt"

// Validate checks the fail-fast conditions from SPEC_FULL.md §4.6: a
// missing instance_id, zero capacity, or (with telemetry enabled) a
// missing broker or non-positive interval are rejected at load time
// rather than discovered later as a coordinator that never admits
// anything. A non-positive worker_pool_size is not rejected; it
// defaults to cpu_core_count.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}

	if cfg.Coordinator.CPUCoreCount == 0 {
		return fmt.Errorf("coordinator.cpu_core_count must be > 0")
	}
	if cfg.Coordinator.MaxMemoryInFlightBytes == 0 {
		return fmt.Errorf("coordinator.max_memory_in_flight_bytes must be > 0")
	}

	if cfg.Runners.WorkerPoolSize <= 0 {
		cfg.Runners.WorkerPoolSize = int(cfg.Coordinator.CPUCoreCount)
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Broker == "" {
			return fmt.Errorf("telemetry.broker is required when telemetry.enabled is true")
		}
		if cfg.Telemetry.PublishIntervalS <= 0 {
			return fmt.Errorf("telemetry.publish_interval_s must be > 0 when telemetry.enabled is true")
		}
	}

	return nil
}
