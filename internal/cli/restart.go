package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	registerHoldFlags(restartCmd)
	rootCmd.AddCommand(restartCmd)
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Release all devices and start over with updated config",
	Long: `Restart releases every held device and begins the cycle again under a new
config generation. Flags you set override the active config; everything else
is kept.`,
	RunE: runRestart,
}

func runRestart(cmd *cobra.Command, args []string) error {
	patch, err := holdPatch(cmd)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	resp, err := client.Restart(patch)
	if err != nil {
		return err
	}
	fmt.Println("Server restarted.")
	printApplied(resp)
	return nil
}
