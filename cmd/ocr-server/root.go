package main

import (
	"github.com/spf13/cobra"

	"github.com/ironsheep/ocr-server/internal/api"
	"github.com/ironsheep/ocr-server/internal/server/endpoints"
)

var (
	cfgFile      string
	outputFormat string
	serverURL    string
)

var rootCmd = &cobra.Command{
	Use:   "ocr-server",
	Short: "HTTP OCR service for Japanese and Chinese text",
	Long: `ocr-server accepts image uploads over HTTP and returns the recognized
text as a compact JSON payload.

Two engines are available:
  - /ocr uses the default-language engine (Japanese unless configured)
  - /ocr-chinese uses the Chinese engine, created on first use

Engines run either behind a PaddleOCR serving endpoint or in-process
through Tesseract.`,
	Version:      Version,
	SilenceUsage: true,
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

// newAPICommand builds the "api" subtree from the same endpoints the server
// routes.
func newAPICommand() *cobra.Command {
	registry := api.NewRegistry()
	for _, ep := range endpoints.All() {
		registry.Register(ep)
	}
	cmd := registry.BuildCommands(getServerURL)
	cmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://127.0.0.1:8000", "server URL",
	)
	return cmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.ocr-server/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(newAPICommand())
	rootCmd.AddCommand(versionCmd)
}
