package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/toolserver/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Run interactive configuration wizard",
	Long: `Run an interactive configuration wizard to set up the tool server.
The wizard asks for the script store, the listen port and the token secret.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	wizard := config.NewWizardWithIO(cmd.InOrStdin(), cmd.OutOrStdout())

	cfg, err := wizard.Run()
	if err != nil {
		return fmt.Errorf("configuration failed: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	loader := config.NewLoader(cfgFile)
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nConfiguration saved to: %s\n", loader.GetConfigPath())
	fmt.Fprintln(cmd.OutOrStdout(), "\nYou can now start the server with: toolserver serve")

	return nil
}
