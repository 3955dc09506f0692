package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolserver/internal/daemon"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization cycle and print its report",
	Long: `Run one reconciliation cycle against the configured object store and print
the cycle report as JSON. Nothing is served; use it to check that the store
is reachable and its scripts compile.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	core, err := daemon.BuildCore(ctx, cfg)
	if err != nil {
		return err
	}

	report, err := core.Synchronizer.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}

	if len(report.Failed) > 0 {
		return fmt.Errorf("%d script(s) failed to embed", len(report.Failed))
	}
	return nil
}
