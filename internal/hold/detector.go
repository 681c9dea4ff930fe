package hold

import (
	"time"

	"github.com/gpuhold-net/gpuhold/internal/domain"
)

// IdleDetector decides when a device has been continuously under the memory
// threshold long enough to be claimed. The window is strict: a single
// above-threshold reading resets it, so a device that merely dips between two
// short jobs is never claimed.
type IdleDetector struct {
	totalMemoryBytes  uint64
	memThresholdBytes uint64
	waitWindow        time.Duration

	idleSince time.Time // zero while the condition does not hold
}

// NewIdleDetector creates a detector for one device.
func NewIdleDetector(totalMemoryBytes uint64, cfg domain.HoldConfig) *IdleDetector {
	return &IdleDetector{
		totalMemoryBytes:  totalMemoryBytes,
		memThresholdBytes: cfg.MemThresholdBytes,
		waitWindow:        cfg.WaitWindow(),
	}
}

// Observe feeds one memory reading. It reports Idle once the used memory has
// stayed below the threshold for the full wait window.
func (d *IdleDetector) Observe(freeMemoryBytes uint64, now time.Time) domain.Activity {
	used := uint64(0)
	if freeMemoryBytes < d.totalMemoryBytes {
		used = d.totalMemoryBytes - freeMemoryBytes
	}

	if used >= d.memThresholdBytes {
		d.idleSince = time.Time{}
		return domain.ActivityActive
	}

	if d.idleSince.IsZero() {
		d.idleSince = now
	}
	if now.Sub(d.idleSince) >= d.waitWindow {
		return domain.ActivityIdle
	}
	return domain.ActivityActive
}

// Watching reports whether the wait window is currently counting down.
func (d *IdleDetector) Watching() bool {
	return !d.idleSince.IsZero()
}

// Reset clears the window, e.g. after a hold cycle ends.
func (d *IdleDetector) Reset() {
	d.idleSince = time.Time{}
}
