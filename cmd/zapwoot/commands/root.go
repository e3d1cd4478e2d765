// Package commands implements the Zapwoot CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zapwoot",
		Short: "Zapwoot - WhatsApp to Chatwoot bridge",
		Long: `Zapwoot mirrors WhatsApp conversations into a Chatwoot inbox.
Runs as a daemon: connects to WhatsApp, forwards every message into
Chatwoot and exposes an HTTP API for status, QR pairing and sends.

Examples:
  zapwoot serve
  zapwoot serve --config ./config.yaml
  zapwoot config init`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newConfigCmd(),
	)

	// Global flags.
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
