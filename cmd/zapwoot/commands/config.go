package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/zapwoot/pkg/zapwoot/bridge"
)

// newConfigCmd creates the `zapwoot config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bridge configuration",
		Long: `Manage the Zapwoot configuration file.

Examples:
  zapwoot config init
  zapwoot config show`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
	)

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml",
		RunE: func(_ *cobra.Command, _ []string) error {
			const path = "config.yaml"
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			cfg := bridge.DefaultConfig()
			// Placeholders for the values every deployment must fill in.
			cfg.Chatwoot.BaseURL = "https://chatwoot.example.com"
			cfg.Chatwoot.Token = "${CHATWOOT_TOKEN}"
			cfg.Chatwoot.AccountID = 1
			cfg.Chatwoot.InboxID = 1

			if err := bridge.SaveConfigToFile(cfg, path); err != nil {
				return err
			}
			fmt.Printf("Configuration written to ./%s\n", path)
			fmt.Println("Set CHATWOOT_TOKEN in the environment or a .env file before serving.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if path != "" {
				fmt.Printf("# %s\n", path)
			} else {
				fmt.Println("# defaults (no config file found)")
			}

			// Never print the token.
			shown := *cfg
			if shown.Chatwoot.Token != "" {
				shown.Chatwoot.Token = "***"
			}

			out, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("rendering config: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	}
}
