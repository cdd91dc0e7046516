// Package capacity holds the device-capacity signal (CPU core count,
// in-flight memory budget) that bounds the decode coordinator, and the
// on-demand re-evaluation gate described in spec.md §4.1.
package capacity

import "sync/atomic"

// Capacity is a snapshot of the current admission budget.
type Capacity struct {
	CPUCoreCount      uint32
	MaxMemoryInFlight uint64 // bytes
}

// Evaluator is the subset of the provider contract this package
// consumes: a transient-pressure signal the provider is the authority
// on (e.g. an OS low-memory notification), and a way to re-evaluate it.
type Evaluator interface {
	ShouldEvaluateDeviceStatus() bool
	EvaluateDeviceStatus() (cpuCoreCount uint32, maxMemoryInFlight uint64)
}

// Updater receives republished capacity. internal/coordinator's
// DecodeCoordinator implements this.
type Updater interface {
	UpdateCapacity(cpuCoreCount uint32, maxMemoryInFlight uint64)
}

// Device holds the current capacity, readable from any goroutine
// without locking (the budget fields are read far more often than
// written, on the hot admission path).
type Device struct {
	cpuCoreCount      atomic.Uint32
	maxMemoryInFlight atomic.Uint64
	everSet           atomic.Bool
}

// NewDevice constructs a Device with no capacity set yet; the first
// call to MaybeEvaluate will always evaluate regardless of what the
// evaluator's ShouldEvaluateDeviceStatus reports, matching spec.md
// §4.1 ("if true, or if capacity has never been set").
func NewDevice() *Device {
	return &Device{}
}

// Current returns the last-published capacity snapshot.
func (d *Device) Current() Capacity {
	return Capacity{
		CPUCoreCount:      d.cpuCoreCount.Load(),
		MaxMemoryInFlight: d.maxMemoryInFlight.Load(),
	}
}

// Set republishes the capacity directly (used by config bootstrap and
// by tests); it does not consult the evaluator.
func (d *Device) Set(c Capacity) {
	d.cpuCoreCount.Store(c.CPUCoreCount)
	d.maxMemoryInFlight.Store(c.MaxMemoryInFlight)
	d.everSet.Store(true)
}

// MaybeEvaluate is called on every UI-thread entry to "instantiate a
// codec". It asks eval.ShouldEvaluateDeviceStatus(); if true, or if
// capacity has never been set, it re-evaluates and republishes into
// upd and into this Device's own snapshot.
func (d *Device) MaybeEvaluate(eval Evaluator, upd Updater) {
	if !d.everSet.Load() || eval.ShouldEvaluateDeviceStatus() {
		cpu, mem := eval.EvaluateDeviceStatus()
		d.Set(Capacity{CPUCoreCount: cpu, MaxMemoryInFlight: mem})
		if upd != nil {
			upd.UpdateCapacity(cpu, mem)
		}
	}
}
