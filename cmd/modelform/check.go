package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artpar/modelform/adapters/memory"
	"github.com/artpar/modelform/config"
	"github.com/artpar/modelform/core/models"
	"github.com/artpar/modelform/core/schema"
)

var checkCmd = &cobra.Command{
	Use:   "check <model> <values-file>",
	Short: "Validate a record against a model schema",
	Long: `Validate a JSON or YAML record against a model's rules.

Schema defaults are applied before validation. Every failing rule is
printed as field.rule and the command exits non-zero.

Examples:
  modelform check user user.json
  modelform check post draft.yaml --config ./modelform.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}
	doc, err := schema.Load(cfg.Schemas.Paths...)
	if err != nil {
		return err
	}

	m, err := modelFor(doc, args[0])
	if err != nil {
		return err
	}

	values, err := readValues(args[1])
	if err != nil {
		return err
	}

	failures := checkValues(cmd.OutOrStdout(), m, values)
	if failures > 0 {
		return fmt.Errorf("%d rule(s) failed", failures)
	}
	return nil
}

func modelFor(doc schema.Document, name string) (*models.Model, error) {
	s, ok := doc[name]
	if !ok {
		return nil, fmt.Errorf("unknown model %q", name)
	}
	return models.New(zerolog.Nop()).
		Add(name, memory.Resource(s)).
		Schemas(map[string]schema.Schema{name: s}).
		Get(name)
}

// readValues decodes a JSON or YAML object.
func readValues(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse values %s: %w", path, err)
	}
	return values, nil
}

// checkValues prints the result of every rule and returns the number that
// failed.
func checkValues(w io.Writer, m *models.Model, values map[string]any) int {
	inst := m.New(values)
	current := inst.Values()

	failures := 0
	for _, field := range m.Validators.Names() {
		validity := m.Validators[field].Check(current[field], inst)

		ruleNames := make([]string, 0, len(validity))
		for rule := range validity {
			ruleNames = append(ruleNames, rule)
		}
		sort.Strings(ruleNames)

		for _, rule := range ruleNames {
			if validity[rule] {
				continue
			}
			failures++
			fmt.Fprintf(w, "  %s %s.%s\n", crossMark, field, rule)
		}
	}
	if failures == 0 {
		fmt.Fprintf(w, "  %s %s is valid\n", checkMark, m.Name)
	}
	return failures
}
