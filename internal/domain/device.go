// Package domain holds the core types for gpuhold: device states, hold
// configuration, the control protocol, and the error taxonomy. It is pure —
// no infrastructure dependency.
package domain

import (
	"fmt"
	"time"
)

// DeviceState is the per-device controller state machine position.
type DeviceState int

const (
	StateIdle       DeviceState = iota // detector reports active use; nothing held
	StateWatching                      // sub-threshold reading seen; wait window counting down
	StateConverging                    // memory claimed; binary-search warm-up running
	StateHolding                       // steady-state duty cycle tracking the target
	StateReleasing                     // tearing down the allocation
)

// String returns the wire/display name of the state.
func (s DeviceState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateConverging:
		return "converging"
	case StateHolding:
		return "holding"
	case StateReleasing:
		return "releasing"
	default:
		return "unknown"
	}
}

// Activity is the idle detector's verdict for a single device.
type Activity int

const (
	ActivityActive Activity = iota // used memory above threshold, or window not elapsed
	ActivityIdle                   // continuously below threshold for the full wait window
)

func (a Activity) String() string {
	if a == ActivityIdle {
		return "idle"
	}
	return "active"
}

// DeviceStatus is the externally visible snapshot of one supervised device.
// HeldBytes and CurrentSleepSeconds are meaningful only while converging or
// holding.
type DeviceStatus struct {
	Index               int         `json:"index"`
	State               DeviceState `json:"-"`
	StateName           string      `json:"state"`
	TotalMemoryBytes    uint64      `json:"total_memory_bytes"`
	FreeMemoryBytes     uint64      `json:"free_memory_bytes"`
	Utilization         float64     `json:"utilization"`
	HeldBytes           uint64      `json:"held_bytes,omitempty"`
	CurrentSleepSeconds float64     `json:"current_sleep_seconds,omitempty"`
}

// ReleaseReason records why a hold session ended, for the session ledger.
type ReleaseReason string

const (
	ReleaseStop     ReleaseReason = "stop"
	ReleaseRestart  ReleaseReason = "restart"
	ReleaseShutdown ReleaseReason = "shutdown"
	ReleaseFault    ReleaseReason = "fault"
)

// HumanSize formats bytes as a short human-readable string.
func HumanSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Uptime formats a duration as seconds-precision for status output.
func Uptime(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
