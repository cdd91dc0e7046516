package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
instance_id: "codec-host-01"
coordinator:
  cpu_core_count: 4
  max_memory_in_flight_bytes: 67108864
runners:
  worker_pool_size: 4
telemetry:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Coordinator.CPUCoreCount != 4 {
		t.Fatalf("cpu_core_count = %d, want 4", cfg.Coordinator.CPUCoreCount)
	}
	if cfg.Coordinator.MaxMemoryInFlightBytes != 67108864 {
		t.Fatalf("max_memory_in_flight_bytes = %d, want 67108864", cfg.Coordinator.MaxMemoryInFlightBytes)
	}
}

func TestLoadDefaultsWorkerPoolSizeFromCPUCoreCount(t *testing.T) {
	path := writeTempConfig(t, `
instance_id: "codec-host-01"
coordinator:
  cpu_core_count: 6
  max_memory_in_flight_bytes: 1024
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runners.WorkerPoolSize != 6 {
		t.Fatalf("worker_pool_size = %d, want default of 6", cfg.Runners.WorkerPoolSize)
	}
}

func TestValidateRejectsMissingInstanceID(t *testing.T) {
	cfg := &Config{Coordinator: CoordinatorConfig{CPUCoreCount: 1, MaxMemoryInFlightBytes: 1}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for a missing instance_id")
	}
}

func TestValidateRejectsZeroCapacity(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero cpu", Config{InstanceID: "x", Coordinator: CoordinatorConfig{MaxMemoryInFlightBytes: 1}}},
		{"zero memory", Config{InstanceID: "x", Coordinator: CoordinatorConfig{CPUCoreCount: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(&tc.cfg); err == nil {
				t.Fatalf("expected a validation error for %s", tc.name)
			}
		})
	}
}

func TestValidateRejectsTelemetryWithoutBroker(t *testing.T) {
	cfg := &Config{
		InstanceID:  "x",
		Coordinator: CoordinatorConfig{CPUCoreCount: 1, MaxMemoryInFlightBytes: 1},
		Telemetry:   TelemetryConfig{Enabled: true},
	}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for telemetry enabled without a broker")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
