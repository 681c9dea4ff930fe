package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gpuhold-net/gpuhold/internal/api"
	"github.com/gpuhold-net/gpuhold/internal/daemon"
	"github.com/gpuhold-net/gpuhold/internal/domain"
)

// newClient builds a control client against the configured socket.
func newClient() (*api.Client, error) {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.Daemon.SocketPath), nil
}

// registerHoldFlags adds the shared hold-config flags to a command. Sizes
// accept suffixes (64MB, 4GB); bare numbers mean GB.
func registerHoldFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("wait-minutes", 10, "Minutes a device must stay idle before it is claimed")
	f.String("mem-threshold", "64MB", "Used memory below which a device counts as idle")
	f.String("hold-mem", "", "Memory to hold per device (default: half of free memory)")
	f.Float64("hold-util", 0.5, "Utilization to maintain while holding (0-1)")
	f.String("operator", "512MB", "Compute operator size per burst")
	f.Float64("util-eps", 0.01, "Convergence tolerance around the utilization target")
	f.Float64("min-sleep", 0, "Minimum duty-cycle sleep in seconds")
	f.Float64("max-sleep", 1, "Maximum duty-cycle sleep in seconds")
	f.Float64("inspect-interval", 1, "Seconds between utilization inspections")
	f.Int("util-samples", 5, "Utilization samples per estimate")
	f.Bool("shrink-to-fit", true, "Shrink the hold request when allocation fails")
}

// holdPatch builds a config patch from the flags the user actually set, so
// untouched fields keep the server's values.
func holdPatch(cmd *cobra.Command) (domain.HoldConfigPatch, error) {
	var p domain.HoldConfigPatch
	f := cmd.Flags()

	if f.Changed("wait-minutes") {
		v, _ := f.GetFloat64("wait-minutes")
		p.WaitMinutes = &v
	}
	if f.Changed("mem-threshold") {
		s, _ := f.GetString("mem-threshold")
		v := daemon.ParseSize(s)
		if v == 0 {
			return p, fmt.Errorf("invalid size for --mem-threshold: %q", s)
		}
		p.MemThresholdBytes = &v
	}
	if f.Changed("hold-mem") {
		s, _ := f.GetString("hold-mem")
		v := daemon.ParseSize(s)
		if v == 0 {
			return p, fmt.Errorf("invalid size for --hold-mem: %q", s)
		}
		p.HoldMemBytes = &v
	}
	if f.Changed("hold-util") {
		v, _ := f.GetFloat64("hold-util")
		p.HoldUtilTarget = &v
	}
	if f.Changed("operator") {
		s, _ := f.GetString("operator")
		v := daemon.ParseSize(s)
		if v == 0 {
			return p, fmt.Errorf("invalid size for --operator: %q", s)
		}
		p.OperatorBytes = &v
	}
	if f.Changed("util-eps") {
		v, _ := f.GetFloat64("util-eps")
		p.UtilEps = &v
	}
	if f.Changed("min-sleep") {
		v, _ := f.GetFloat64("min-sleep")
		p.MinSleepSeconds = &v
	}
	if f.Changed("max-sleep") {
		v, _ := f.GetFloat64("max-sleep")
		p.MaxSleepSeconds = &v
	}
	if f.Changed("inspect-interval") {
		v, _ := f.GetFloat64("inspect-interval")
		p.InspectIntervalSeconds = &v
	}
	if f.Changed("util-samples") {
		v, _ := f.GetInt("util-samples")
		p.UtilSamplesNum = &v
	}
	if f.Changed("shrink-to-fit") {
		v, _ := f.GetBool("shrink-to-fit")
		p.ShrinkToFit = &v
	}
	return p, nil
}

// printApplied shows the config a command ended up applying.
func printApplied(resp domain.CommandResponse) {
	if resp.Applied == nil {
		return
	}
	c := resp.Applied
	holdMem := "half of free memory"
	if c.HoldMemBytes > 0 {
		holdMem = domain.HumanSize(c.HoldMemBytes)
	}
	fmt.Printf("generation:       %d\n", resp.Generation)
	fmt.Printf("wait:             %.1f min\n", c.WaitMinutes)
	fmt.Printf("mem threshold:    %s\n", domain.HumanSize(c.MemThresholdBytes))
	fmt.Printf("hold memory:      %s\n", holdMem)
	fmt.Printf("util target:      %.2f ± %.3f\n", c.HoldUtilTarget, c.UtilEps)
	fmt.Printf("sleep range:      [%.2fs, %.2fs]\n", c.MinSleepSeconds, c.MaxSleepSeconds)
	fmt.Printf("inspect interval: %.2fs × %d samples\n", c.InspectIntervalSeconds, c.UtilSamplesNum)
}
