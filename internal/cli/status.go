package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolserver/internal/config"
	"github.com/harun/toolserver/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long:  `Show whether a tool server owns the PID file in the data directory.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// lifecycleFor resolves the PID file of the configured data directory
func lifecycleFor() (*daemon.LifecycleManager, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return daemon.NewLifecycleManager(cfg.DataDir), nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	lm, err := lifecycleFor()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !lm.IsRunning() {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	pid, err := lm.GetPID()
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	fmt.Fprintf(out, "Status: running\n")
	fmt.Fprintf(out, "PID: %d\n", pid)
	if info, err := os.Stat(lm.PIDFile()); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
	}
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
