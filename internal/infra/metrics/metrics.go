// Package metrics provides Prometheus metrics for gpuhold: per-device gauges
// for state, memory, and utilization, plus counters for the allocation
// lifecycle and device faults.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Devices ────────────────────────────────────────────────────────────────

// DeviceState tracks the controller state per device
// (0=idle, 1=watching, 2=converging, 3=holding, 4=releasing).
var DeviceState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gpuhold",
	Name:      "device_state",
	Help:      "Controller state (0=idle, 1=watching, 2=converging, 3=holding, 4=releasing).",
}, []string{"device"})

// DeviceFreeMemory tracks last-sampled free memory in bytes.
var DeviceFreeMemory = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gpuhold",
	Name:      "device_free_memory_bytes",
	Help:      "Last sampled free device memory in bytes.",
}, []string{"device"})

// DeviceUtilization tracks EMA-smoothed utilization, 0..1.
var DeviceUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gpuhold",
	Name:      "device_utilization",
	Help:      "Smoothed device utilization (0-1).",
}, []string{"device"})

// HeldBytes tracks the size of the live allocation per device.
var HeldBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "gpuhold",
	Name:      "held_bytes",
	Help:      "Bytes currently held on the device (0 when not holding).",
}, []string{"device"})

// ─── Allocation lifecycle ───────────────────────────────────────────────────

// Allocations counts successful acquisitions.
var Allocations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gpuhold",
	Name:      "allocations_total",
	Help:      "Total successful device memory acquisitions.",
}, []string{"device"})

// Releases counts allocation releases. Matches Allocations whenever the
// daemon is quiescent.
var Releases = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gpuhold",
	Name:      "releases_total",
	Help:      "Total device memory releases.",
}, []string{"device"})

// WarmupConverged counts completed warm-up searches.
var WarmupConverged = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gpuhold",
	Name:      "warmup_completed_total",
	Help:      "Total completed warm-up binary searches.",
}, []string{"device"})

// ─── Faults ─────────────────────────────────────────────────────────────────

// DeviceFaults counts device-level faults by error code.
var DeviceFaults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gpuhold",
	Name:      "device_faults_total",
	Help:      "Total device-level faults by error code.",
}, []string{"device", "code"})
