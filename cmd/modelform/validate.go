package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/modelform/config"
	"github.com/artpar/modelform/core/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and schemas before deployment",
	Long: `Validate the modelform configuration file and every schema it loads.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Schema documents parse
  - Every rule and type a schema names is known

Examples:
  modelform validate
  modelform validate --config /etc/modelform/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) && !config.HasEnvConfig() {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	doc, err := schema.Load(cfg.Schemas.Paths...)
	if err != nil {
		fmt.Fprintf(out, "  %s Schemas parse\n", crossMark)
		return fmt.Errorf("schema error: %w", err)
	}
	fmt.Fprintf(out, "  %s Schemas parse\n", checkMark)

	if err := schema.Validate(doc); err != nil {
		fmt.Fprintf(out, "  %s Schemas valid\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Schemas valid\n", checkMark)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Driver: %s\n", cfg.Database.Driver)
	fmt.Fprintf(out, "  Models: %d\n", len(doc))
	for _, name := range doc.Names() {
		fmt.Fprintf(out, "    - %s (%d attributes)\n", name, len(doc[name].Attributes))
	}
	return nil
}
