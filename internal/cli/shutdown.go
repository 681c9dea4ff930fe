package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gpuhold-net/gpuhold/internal/api"
)

func init() {
	rootCmd.AddCommand(shutdownCmd)
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Release all devices and terminate the server",
	RunE:  runShutdown,
}

func runShutdown(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if _, err := client.Shutdown(); err != nil {
		if errors.Is(err, api.ErrUnreachable) {
			fmt.Println("Server is not running.")
			return nil
		}
		return err
	}
	fmt.Println("Server shut down.")
	return nil
}
