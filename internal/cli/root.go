// Package cli implements the gpuhold command-line interface using Cobra.
// Every subcommand except serve/launch is a thin client for the daemon's
// control socket.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gpuhold-net/gpuhold/internal/api"
)

var rootCmd = &cobra.Command{
	Use:   "gpuhold",
	Short: "gpuhold — claim idle GPUs before the scheduler does",
	Long: `gpuhold watches the GPUs on this machine, claims the ones that stay idle,
and keeps their memory and utilization pinned at a configured level until told
to let go.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go. Exit codes: 0 on
// success, 1 on a server-reported error, 2 when no server is reachable.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, api.ErrUnreachable) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
