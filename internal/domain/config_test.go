package domain

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultHoldConfigIsValid(t *testing.T) {
	if err := DefaultHoldConfig().Validate(); err != nil {
		t.Errorf("DefaultHoldConfig().Validate() = %v", err)
	}
}

func TestHoldConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*HoldConfig)
		ok     bool
	}{
		{"defaults", func(*HoldConfig) {}, true},
		{"zero wait", func(c *HoldConfig) { c.WaitMinutes = 0 }, false},
		{"negative wait", func(c *HoldConfig) { c.WaitMinutes = -1 }, false},
		{"fractional wait", func(c *HoldConfig) { c.WaitMinutes = 0.5 }, true},
		{"zero threshold", func(c *HoldConfig) { c.MemThresholdBytes = 0 }, false},
		{"target zero", func(c *HoldConfig) { c.HoldUtilTarget = 0 }, true},
		{"target one", func(c *HoldConfig) { c.HoldUtilTarget = 1 }, true},
		{"target above one", func(c *HoldConfig) { c.HoldUtilTarget = 1.1 }, false},
		{"negative target", func(c *HoldConfig) { c.HoldUtilTarget = -0.1 }, false},
		{"zero operator", func(c *HoldConfig) { c.OperatorBytes = 0 }, false},
		{"zero eps", func(c *HoldConfig) { c.UtilEps = 0 }, false},
		{"negative min sleep", func(c *HoldConfig) { c.MinSleepSeconds = -1 }, false},
		{"min above max", func(c *HoldConfig) { c.MinSleepSeconds = 2; c.MaxSleepSeconds = 1 }, false},
		{"min equals max", func(c *HoldConfig) { c.MinSleepSeconds = 1; c.MaxSleepSeconds = 1 }, true},
		{"zero inspect interval", func(c *HoldConfig) { c.InspectIntervalSeconds = 0 }, false},
		{"zero samples", func(c *HoldConfig) { c.UtilSamplesNum = 0 }, false},
		{"zero hold mem is half-free", func(c *HoldConfig) { c.HoldMemBytes = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultHoldConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
				}
			}
		})
	}
}

func TestHoldConfigPatchApply(t *testing.T) {
	base := DefaultHoldConfig()

	if got := (HoldConfigPatch{}).Apply(base); got != base {
		t.Errorf("empty patch changed config: %+v", got)
	}

	target := 0.0
	mem := uint64(2 << 30)
	shrink := false
	got := HoldConfigPatch{
		HoldUtilTarget: &target,
		HoldMemBytes:   &mem,
		ShrinkToFit:    &shrink,
	}.Apply(base)

	if got.HoldUtilTarget != 0 {
		t.Errorf("hold_util_target = %v, want explicit 0 (zero value is a real setting)", got.HoldUtilTarget)
	}
	if got.HoldMemBytes != mem {
		t.Errorf("hold_mem_bytes = %d, want %d", got.HoldMemBytes, mem)
	}
	if got.ShrinkToFit {
		t.Error("shrink_to_fit = true, want patched false")
	}
	if got.WaitMinutes != base.WaitMinutes || got.UtilSamplesNum != base.UtilSamplesNum {
		t.Error("unpatched fields did not keep their base values")
	}
}

func TestWaitWindow(t *testing.T) {
	cfg := DefaultHoldConfig()
	cfg.WaitMinutes = 1.5
	if got, want := cfg.WaitWindow(), 90*time.Second; got != want {
		t.Errorf("WaitWindow() = %v, want %v", got, want)
	}
	cfg.InspectIntervalSeconds = 0.25
	if got, want := cfg.InspectInterval(), 250*time.Millisecond; got != want {
		t.Errorf("InspectInterval() = %v, want %v", got, want)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrBackendUnavailable, CodeBackendUnavailable},
		{ErrAllocationFailed, CodeAllocationFailed},
		{ErrBackendTimeout, CodeBackendTimeout},
		{ErrInvalidConfig, CodeInvalidConfig},
		{ErrProtocol, CodeProtocol},
		{ErrShuttingDown, CodeShuttingDown},
		{errors.New("something else"), CodeInternal},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
		// Wrapping must not change the code.
		wrapped := errors.Join(errors.New("context"), tt.err)
		if got := ErrorCode(wrapped); got != tt.want {
			t.Errorf("ErrorCode(wrapped %v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestDeviceStateString(t *testing.T) {
	tests := []struct {
		state DeviceState
		want  string
	}{
		{StateIdle, "idle"},
		{StateWatching, "watching"},
		{StateConverging, "converging"},
		{StateHolding, "holding"},
		{StateReleasing, "releasing"},
		{DeviceState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{64 * 1024 * 1024, "64.0 MiB"},
		{8 * 1024 * 1024 * 1024, "8.0 GiB"},
	}
	for _, tt := range tests {
		if got := HumanSize(tt.bytes); got != tt.want {
			t.Errorf("HumanSize(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}
