package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harun/toolserver/internal/daemon"
)

var toolsSkipSync bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the server would register",
	Long: `List the native tools, the bundled scripts and, unless --no-sync is given,
the scripts currently in the object store, with their argument names.`,
	RunE: runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsSkipSync, "no-sync", false, "skip the object store")
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
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

	if !toolsSkipSync {
		if _, err := core.Synchronizer.Reconcile(ctx); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tARGUMENTS")
	for _, tool := range core.Registry.List() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", tool.Name(), tool.Kind(), strings.Join(tool.ArgumentNames(), ", "))
	}
	return w.Flush()
}
