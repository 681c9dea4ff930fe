package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gpuhold-net/gpuhold/internal/api"
	"github.com/gpuhold-net/gpuhold/internal/domain"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and per-device state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	resp, err := client.Status()
	if err != nil {
		if errors.Is(err, api.ErrUnreachable) {
			fmt.Println("Server is not running.")
			os.Exit(2)
		}
		return err
	}

	started := "stopped"
	if resp.Started {
		started = "started"
	}
	fmt.Printf("Server %s, uptime %s, generation %d\n",
		started, domain.Uptime(time.Duration(resp.UptimeSeconds*float64(time.Second))), resp.Generation)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tSTATE\tFREE\tTOTAL\tUTIL\tHELD\tSLEEP")
	for _, d := range resp.Devices {
		held, sleep := "-", "-"
		if d.HeldBytes > 0 {
			held = domain.HumanSize(d.HeldBytes)
			sleep = fmt.Sprintf("%.2fs", d.CurrentSleepSeconds)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.0f%%\t%s\t%s\n",
			d.Index,
			d.StateName,
			domain.HumanSize(d.FreeMemoryBytes),
			domain.HumanSize(d.TotalMemoryBytes),
			d.Utilization*100,
			held,
			sleep,
		)
	}
	return w.Flush()
}
