package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GPUHOLD_HOME", home)

	cfg := DefaultConfig()
	if got, want := cfg.Daemon.SocketPath, filepath.Join(home, "gpuhold.sock"); got != want {
		t.Errorf("socket path = %q, want %q", got, want)
	}
	if cfg.Daemon.PollIntervalSeconds != 1 {
		t.Errorf("poll interval = %v, want 1", cfg.Daemon.PollIntervalSeconds)
	}
	if !cfg.Ledger.Enabled {
		t.Error("ledger disabled by default")
	}
	if cfg.Telemetry.Prometheus {
		t.Error("prometheus enabled by default")
	}
	if cfg.Hold.WaitMinutes != 10 {
		t.Errorf("wait_minutes default = %v, want 10", cfg.Hold.WaitMinutes)
	}
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("GPUHOLD_HOME", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Hold != DefaultConfig().Hold {
		t.Errorf("hold config = %+v, want defaults", cfg.Hold)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	t.Setenv("GPUHOLD_HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Daemon.Sim = true
	cfg.Daemon.SimDevices = 4
	cfg.Telemetry.Prometheus = true
	cfg.Hold.HoldUtilTarget = 0.25
	cfg.Hold.WaitMinutes = 2.5

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !got.Daemon.Sim || got.Daemon.SimDevices != 4 {
		t.Errorf("daemon section = %+v, want sim with 4 devices", got.Daemon)
	}
	if !got.Telemetry.Prometheus {
		t.Error("prometheus flag lost in round trip")
	}
	if got.Hold.HoldUtilTarget != 0.25 || got.Hold.WaitMinutes != 2.5 {
		t.Errorf("hold section = %+v, want target 0.25, wait 2.5", got.Hold)
	}
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("GPUHOLD_HOME", home)

	partial := "[hold]\nhold_util_target = 0.75\n"
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(partial), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Hold.HoldUtilTarget != 0.75 {
		t.Errorf("hold_util_target = %v, want 0.75", cfg.Hold.HoldUtilTarget)
	}
	// Everything the file does not mention keeps its default.
	if cfg.Hold.UtilSamplesNum != 5 {
		t.Errorf("util_samples_num = %d, want default 5", cfg.Hold.UtilSamplesNum)
	}
	if !cfg.Ledger.Enabled {
		t.Error("ledger default lost when loading a partial file")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"16GB", 16 * 1024 * 1024 * 1024},
		{"1TB", 1024 * 1024 * 1024 * 1024},
		{"512MB", 512 * 1024 * 1024},
		{"64KB", 64 * 1024},
		{"100B", 100},
		{"8", 8 * 1024 * 1024 * 1024}, // bare numbers are GB
		{"1.5GB", 0},                  // fractional sizes are rejected, not truncated
		{"8XB", 0},
		{"garbage", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseSize(tt.in); got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestHomeHonorsOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GPUHOLD_HOME", dir)
	if got := Home(); got != dir {
		t.Errorf("Home() = %q, want %q", got, dir)
	}
}
