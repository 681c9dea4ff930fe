package cli

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/gpuhold-net/gpuhold/internal/daemon"
)

func init() {
	serveCmd.Flags().BoolVar(&serveSim, "sim", false, "Use the simulated device backend")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Log to this file instead of stderr")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveSim     bool
	serveLogFile string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gpuhold server in the foreground",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	if serveSim {
		cfg.Daemon.Sim = true
	}
	if serveLogFile != "" {
		cfg.Daemon.LogFile = serveLogFile
	}

	// Daemonized runs log to the configured file; foreground runs keep
	// stderr unless a file was asked for explicitly.
	if serveLogFile != "" {
		f, err := os.OpenFile(cfg.Daemon.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		defer f.Close()
		log.SetOutput(f)
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(context.Background())
}
