package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/modelform/bootstrap"
	"github.com/artpar/modelform/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the modelform HTTP server.

The server will:
  - Load configuration from modelform.yaml (or --config)
  - Or load configuration from MODELFORM_* environment variables
  - Load and validate model schemas
  - Serve validation and model actions over HTTP

Environment variables (for Docker deployments):
  MODELFORM_SCHEMAS           - Schema files or directories (required)
  MODELFORM_DATABASE_DRIVER   - sqlite or memory (default: sqlite)
  MODELFORM_DATABASE_DSN      - Database path (default: modelform.db)
  MODELFORM_SERVER_PORT       - Server port (default: 8080)
  MODELFORM_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  modelform serve
  modelform serve --config /etc/modelform/config.yaml
  modelform serve --hot-reload=false

  # Docker (env vars only):
  MODELFORM_SCHEMAS=/schemas modelform serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	// No configuration at all
	if !hasConfigFile && !config.HasEnvConfig() {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "No configuration found.")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Option 1: Create %s\n", cfgFile)
		fmt.Fprintln(out, "Option 2: Set MODELFORM_SCHEMAS environment variable")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Example (env vars):")
		fmt.Fprintln(out, "  MODELFORM_SCHEMAS=./schemas modelform serve")
		return nil
	}

	app, err := bootstrap.New(bootstrap.Options{ConfigPath: cfgFile})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	return app.Run(hotReload)
}
