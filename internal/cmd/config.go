package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tollgate/tollgate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the fully merged configuration (defaults, config file, environment,
flags) after validation, in the same YAML shape the config file uses.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Never print credentials
		redacted := *cfg
		if redacted.Store.AuthToken != "" {
			redacted.Store.AuthToken = "[redacted]"
		}

		rendered, err := yaml.Marshal(&redacted)
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}

		_, err = fmt.Fprint(cmd.OutOrStdout(), string(rendered))
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the default config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), config.DefaultConfigPath())
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
