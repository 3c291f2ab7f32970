package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/opsconsole/internal/config"
)

// version is set at build time.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "opsconsole",
	Short:         "Business operations console",
	Long:          "opsconsole answers direct commands and conversational questions about projects, tasks, customers and KPIs.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to the TOML configuration file")
	rootCmd.AddCommand(serveCmd, commandCmd, chatCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
