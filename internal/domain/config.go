package domain

import (
	"fmt"
	"time"
)

// HoldConfig is the process-wide hold policy. It is replaced atomically on
// start/restart; running controllers read a snapshot and never observe a torn
// config.
type HoldConfig struct {
	// WaitMinutes is how long used memory must stay below MemThresholdBytes
	// before a device is claimed.
	WaitMinutes float64 `json:"wait_minutes" toml:"wait_minutes"`

	// MemThresholdBytes: a device counts as unused while its used memory is
	// below this.
	MemThresholdBytes uint64 `json:"mem_threshold_bytes" toml:"mem_threshold_bytes"`

	// HoldMemBytes is the amount to allocate per device. Zero means half of
	// the device's free memory, measured at acquisition time.
	HoldMemBytes uint64 `json:"hold_mem_bytes" toml:"hold_mem_bytes"`

	// HoldUtilTarget is the utilization to maintain while holding, 0..1.
	HoldUtilTarget float64 `json:"hold_util_target" toml:"hold_util_target"`

	// OperatorBytes sizes the compute operator run back-to-back in a burst.
	OperatorBytes uint64 `json:"operator_bytes" toml:"operator_bytes"`

	// UtilEps is the convergence tolerance around HoldUtilTarget.
	UtilEps float64 `json:"util_eps" toml:"util_eps"`

	MinSleepSeconds        float64 `json:"min_sleep_seconds" toml:"min_sleep_seconds"`
	MaxSleepSeconds        float64 `json:"max_sleep_seconds" toml:"max_sleep_seconds"`
	InspectIntervalSeconds float64 `json:"inspect_interval_seconds" toml:"inspect_interval_seconds"`
	UtilSamplesNum         int     `json:"util_samples_num" toml:"util_samples_num"`

	// ShrinkToFit: on allocation failure, retry once with 90% of live free
	// memory instead of backing off to the next tick.
	ShrinkToFit bool `json:"shrink_to_fit" toml:"shrink_to_fit"`
}

// DefaultHoldConfig mirrors the documented defaults.
func DefaultHoldConfig() HoldConfig {
	return HoldConfig{
		WaitMinutes:            10,
		MemThresholdBytes:      64 * 1024 * 1024, // 64 MiB of stray contexts is still "unused"
		HoldMemBytes:           0,                // half of free memory at acquisition
		HoldUtilTarget:         0.5,
		OperatorBytes:          512 * 1024 * 1024,
		UtilEps:                0.01,
		MinSleepSeconds:        0,
		MaxSleepSeconds:        1,
		InspectIntervalSeconds: 1,
		UtilSamplesNum:         5,
		ShrinkToFit:            true,
	}
}

// Validate checks range invariants. It must pass before the config is applied;
// a failing request mutates nothing.
func (c HoldConfig) Validate() error {
	if c.WaitMinutes <= 0 {
		return fmt.Errorf("%w: wait_minutes must be > 0, got %v", ErrInvalidConfig, c.WaitMinutes)
	}
	if c.MemThresholdBytes == 0 {
		return fmt.Errorf("%w: mem_threshold_bytes must be > 0", ErrInvalidConfig)
	}
	if c.HoldUtilTarget < 0 || c.HoldUtilTarget > 1 {
		return fmt.Errorf("%w: hold_util_target must be in [0,1], got %v", ErrInvalidConfig, c.HoldUtilTarget)
	}
	if c.OperatorBytes == 0 {
		return fmt.Errorf("%w: operator_bytes must be > 0", ErrInvalidConfig)
	}
	if c.UtilEps <= 0 {
		return fmt.Errorf("%w: util_eps must be > 0, got %v", ErrInvalidConfig, c.UtilEps)
	}
	if c.MinSleepSeconds < 0 {
		return fmt.Errorf("%w: min_sleep_seconds must be >= 0, got %v", ErrInvalidConfig, c.MinSleepSeconds)
	}
	if c.MinSleepSeconds > c.MaxSleepSeconds {
		return fmt.Errorf("%w: min_sleep_seconds (%v) > max_sleep_seconds (%v)",
			ErrInvalidConfig, c.MinSleepSeconds, c.MaxSleepSeconds)
	}
	if c.InspectIntervalSeconds <= 0 {
		return fmt.Errorf("%w: inspect_interval_seconds must be > 0, got %v", ErrInvalidConfig, c.InspectIntervalSeconds)
	}
	if c.UtilSamplesNum <= 0 {
		return fmt.Errorf("%w: util_samples_num must be > 0, got %d", ErrInvalidConfig, c.UtilSamplesNum)
	}
	return nil
}

// WaitWindow returns WaitMinutes as a duration.
func (c HoldConfig) WaitWindow() time.Duration {
	return time.Duration(c.WaitMinutes * float64(time.Minute))
}

// InspectInterval returns InspectIntervalSeconds as a duration.
func (c HoldConfig) InspectInterval() time.Duration {
	return time.Duration(c.InspectIntervalSeconds * float64(time.Second))
}

// HoldConfigPatch carries optional overrides for restart. Nil fields keep the
// current value.
type HoldConfigPatch struct {
	WaitMinutes            *float64 `json:"wait_minutes,omitempty"`
	MemThresholdBytes      *uint64  `json:"mem_threshold_bytes,omitempty"`
	HoldMemBytes           *uint64  `json:"hold_mem_bytes,omitempty"`
	HoldUtilTarget         *float64 `json:"hold_util_target,omitempty"`
	OperatorBytes          *uint64  `json:"operator_bytes,omitempty"`
	UtilEps                *float64 `json:"util_eps,omitempty"`
	MinSleepSeconds        *float64 `json:"min_sleep_seconds,omitempty"`
	MaxSleepSeconds        *float64 `json:"max_sleep_seconds,omitempty"`
	InspectIntervalSeconds *float64 `json:"inspect_interval_seconds,omitempty"`
	UtilSamplesNum         *int     `json:"util_samples_num,omitempty"`
	ShrinkToFit            *bool    `json:"shrink_to_fit,omitempty"`
}

// Apply merges the patch onto base and returns the result.
func (p HoldConfigPatch) Apply(base HoldConfig) HoldConfig {
	if p.WaitMinutes != nil {
		base.WaitMinutes = *p.WaitMinutes
	}
	if p.MemThresholdBytes != nil {
		base.MemThresholdBytes = *p.MemThresholdBytes
	}
	if p.HoldMemBytes != nil {
		base.HoldMemBytes = *p.HoldMemBytes
	}
	if p.HoldUtilTarget != nil {
		base.HoldUtilTarget = *p.HoldUtilTarget
	}
	if p.OperatorBytes != nil {
		base.OperatorBytes = *p.OperatorBytes
	}
	if p.UtilEps != nil {
		base.UtilEps = *p.UtilEps
	}
	if p.MinSleepSeconds != nil {
		base.MinSleepSeconds = *p.MinSleepSeconds
	}
	if p.MaxSleepSeconds != nil {
		base.MaxSleepSeconds = *p.MaxSleepSeconds
	}
	if p.InspectIntervalSeconds != nil {
		base.InspectIntervalSeconds = *p.InspectIntervalSeconds
	}
	if p.UtilSamplesNum != nil {
		base.UtilSamplesNum = *p.UtilSamplesNum
	}
	if p.ShrinkToFit != nil {
		base.ShrinkToFit = *p.ShrinkToFit
	}
	return base
}
