package main

import (
	"github.com/spf13/cobra"

	"github.com/ironsheep/ocr-server/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration the server would run with, after merging
defaults, the config file and OCR_SERVER_* environment overrides.

The output is valid YAML and can be saved as a starting config file:
  ocr-server config show > config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		data, err := config.Marshal(cm.Get())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
