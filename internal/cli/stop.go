package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var stopTimeout int

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running tool server",
	Long: `Stop the tool server recorded in the PID file.
Sends SIGTERM, waits for in-flight requests to drain, then sends SIGKILL
once the timeout passes.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for the server to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	lm, err := lifecycleFor()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !lm.IsRunning() {
		fmt.Fprintln(out, "Server is not running")
		return nil
	}

	pid, err := lm.GetPID()
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !lm.IsRunning() {
			fmt.Fprintln(out, "Server stopped successfully")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	_ = lm.Stop()
	fmt.Fprintln(out, "Server killed")
	return nil
}
