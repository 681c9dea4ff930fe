package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd)
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Release all held devices; the server keeps running",
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if _, err := client.Stop(); err != nil {
		return err
	}
	fmt.Println("Server stopped.")
	return nil
}
