package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gpuhold-net/gpuhold/internal/api"
	"github.com/gpuhold-net/gpuhold/internal/daemon"
)

func init() {
	launchCmd.Flags().BoolVar(&launchSim, "sim", false, "Use the simulated device backend")
	launchCmd.Flags().StringVar(&launchLogFile, "log-file", "", "Server log file (default: <home>/gpuhold.log)")
	rootCmd.AddCommand(launchCmd)
}

var (
	launchSim     bool
	launchLogFile string
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Start the gpuhold server in the background",
	Long: `Launch starts "gpuhold serve" detached from this terminal, logging to a
file, and waits until the server answers on the control socket.`,
	RunE: runLaunch,
}

const launchRetries = 10

func runLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	logFile := launchLogFile
	if logFile == "" {
		logFile = cfg.Daemon.LogFile
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate own binary: %w", err)
	}

	serveArgs := []string{"serve", "--log-file", logFile}
	if launchSim {
		serveArgs = append(serveArgs, "--sim")
	}
	child := exec.Command(self, serveArgs...)
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil
	detach(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	// The child outlives us; don't wait on it.
	_ = child.Process.Release()

	client := api.NewClient(cfg.Daemon.SocketPath)
	for i := 0; i < launchRetries; i++ {
		time.Sleep(time.Second)
		if _, err := client.Status(); err == nil {
			fmt.Printf("Server launched (socket %s, log %s)\n", cfg.Daemon.SocketPath, logFile)
			return nil
		}
	}
	return fmt.Errorf("server did not come up after %d seconds; check %s", launchRetries, logFile)
}
