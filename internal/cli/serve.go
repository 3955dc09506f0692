package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolserver/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tool server",
	Long: `Run the tool server in the foreground.
Bundled scripts are loaded, the object store is synchronized on the configured
schedule, and tool requests are served over HTTP until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	return d.Wait()
}
