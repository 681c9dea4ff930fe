// Package daemon manages the gpuhold daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/gpuhold-net/gpuhold/internal/domain"
)

// Config holds all daemon configuration.
type Config struct {
	Daemon    DaemonConfig      `toml:"daemon"`
	Telemetry TelemetryConfig   `toml:"telemetry"`
	Ledger    LedgerConfig      `toml:"ledger"`
	Hold      domain.HoldConfig `toml:"hold"`
}

// DaemonConfig controls the server process.
type DaemonConfig struct {
	SocketPath            string  `toml:"socket_path"`
	LogFile               string  `toml:"log_file"`
	PollIntervalSeconds   float64 `toml:"poll_interval_seconds"`
	BackendTimeoutSeconds float64 `toml:"backend_timeout_seconds"`

	// Sim switches to the simulated backend (testing and dry runs).
	Sim        bool   `toml:"sim"`
	SimDevices int    `toml:"sim_devices"`
	SimMemory  string `toml:"sim_memory"`
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LedgerConfig controls the sqlite hold-session ledger.
type LedgerConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	home := gpuholdHome()
	return Config{
		Daemon: DaemonConfig{
			SocketPath:            filepath.Join(home, "gpuhold.sock"),
			LogFile:               filepath.Join(home, "gpuhold.log"),
			PollIntervalSeconds:   1,
			BackendTimeoutSeconds: 10,
			SimDevices:            2,
			SimMemory:             "16GB",
		},
		Telemetry: TelemetryConfig{
			Prometheus: false,
		},
		Ledger: LedgerConfig{
			Enabled: true,
		},
		Hold: domain.DefaultHoldConfig(),
	}
}

// LoadConfig reads config from <home>/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(gpuholdHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet — use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to <home>/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(gpuholdHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ParseSize converts "16GB" to bytes. Bare numbers are taken as GB. Anything
// it cannot fully parse (unknown units, fractional values) yields 0 rather
// than a silently truncated size.
func ParseSize(s string) uint64 {
	var val uint64
	var unit string
	fmt.Sscanf(s, "%d%s", &val, &unit)
	if val == 0 {
		return 0
	}
	switch unit {
	case "TB":
		return val * 1024 * 1024 * 1024 * 1024
	case "GB", "":
		return val * 1024 * 1024 * 1024
	case "MB":
		return val * 1024 * 1024
	case "KB":
		return val * 1024
	case "B":
		return val
	default:
		return 0
	}
}

// gpuholdHome returns the gpuhold data directory.
func gpuholdHome() string {
	if env := os.Getenv("GPUHOLD_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".gpuhold")
}

// Home is exported for use by other packages.
func Home() string {
	return gpuholdHome()
}
