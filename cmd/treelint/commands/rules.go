package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/treelint/internal/report"
	"github.com/Sumatoshi-tech/treelint/pkg/pattern"
)

// NewRulesCommand creates the rules command, which lists the effective rule
// set after config selection and severity overrides.
func NewRulesCommand(globals *GlobalFlags) *cobra.Command {
	var (
		rulePaths []string
		language  string
		showQuery bool
	)

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the loaded rules",
		Long: `Rules lists every rule the current configuration would run: embedded
builtins plus the configured and flag-given rule paths, after enabled or
disabled selection and severity overrides.`,
		Example: `  treelint rules
  treelint rules --language typescript
  treelint rules --rules ./rules --query`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(globals)
			if err != nil {
				return err
			}

			registry, problems, err := buildRegistry(cfg, rulePaths)
			if err != nil {
				return err
			}

			printProblems(problems)

			specs := registry.Rules()
			if language != "" {
				specs = filterByLanguage(specs, language)
			}

			if showQuery {
				printRuleQueries(specs)

				return nil
			}

			rows := make([]report.RuleRow, 0, len(specs))
			for _, spec := range specs {
				rows = append(rows, report.RuleRow{
					Name:        spec.Name,
					Severity:    spec.Severity.String(),
					Languages:   languagesLabel(spec.Languages),
					Description: spec.Description,
				})
			}

			report.RenderRulesTable(os.Stdout, rows)

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&rulePaths, "rules", nil, "additional rule files, manifests, or directories")
	cmd.Flags().StringVar(&language, "language", "", "only rules that apply to this language")
	cmd.Flags().BoolVar(&showQuery, "query", false, "print each rule's query source instead of the table")

	return cmd
}

func filterByLanguage(specs []*pattern.RuleSpec, language string) []*pattern.RuleSpec {
	filtered := make([]*pattern.RuleSpec, 0, len(specs))

	for _, spec := range specs {
		if spec.AppliesTo(language) {
			filtered = append(filtered, spec)
		}
	}

	return filtered
}

// printRuleQueries renders each rule in its canonical query form, the same
// text Compile accepts back.
func printRuleQueries(specs []*pattern.RuleSpec) {
	for i, spec := range specs {
		if i > 0 {
			fmt.Println()
		}

		fmt.Printf("# %s (%s)\n", spec.Name, spec.Severity)
		fmt.Println(spec.Program.String())
	}
}
