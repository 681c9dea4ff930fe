package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	registerHoldFlags(startCmd)
	rootCmd.AddCommand(startCmd)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Begin watching for idle devices and holding them",
	Long: `Start tells the server to begin per-device supervision with the given
config. Fields you don't set keep the server's defaults. Starting while
already started is a no-op that reports the active config; use restart to
reconfigure.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	patch, err := holdPatch(cmd)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	resp, err := client.Start(patch)
	if err != nil {
		return err
	}
	fmt.Println("Server started.")
	printApplied(resp)
	return nil
}
