package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "modelform",
	Short: "Schema-driven model validation and form binding service",
	Long: `modelform loads model schemas and serves validation and model
actions over HTTP.

Quick start:
  modelform validate   # Check config and schemas
  modelform serve      # Start the HTTP server

Tools:
  modelform check user values.json   # Validate a record against a model`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "modelform.yaml", "config file path")
}
