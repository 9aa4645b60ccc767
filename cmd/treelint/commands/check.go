package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/treelint/internal/config"
	"github.com/Sumatoshi-tech/treelint/internal/gitscope"
	"github.com/Sumatoshi-tech/treelint/internal/lintcache"
	"github.com/Sumatoshi-tech/treelint/internal/observability"
	"github.com/Sumatoshi-tech/treelint/internal/report"
	"github.com/Sumatoshi-tech/treelint/internal/runner"
	"github.com/Sumatoshi-tech/treelint/pkg/lint"
)

const shutdownTimeout = 5 * time.Second

// checkFlags holds the check command's flag values. Flags the user set
// override the corresponding config file settings.
type checkFlags struct {
	rulePaths       []string
	format          string
	output          string
	colorMode       string
	summary         bool
	workers         int
	exclude         []string
	includeVendored bool
	changedSince    string
	noCache         bool
	maxSeverityExit string
}

// NewCheckCommand creates the check command, the main lint pipeline.
func NewCheckCommand(globals *GlobalFlags, version string) *cobra.Command {
	flags := &checkFlags{}

	cmd := &cobra.Command{
		Use:   "check [paths...]",
		Short: "Lint files and directories against the loaded rules",
		Long: `Check walks the given paths (default: current directory), parses every
supported source file, and evaluates the loaded rules against each syntax
tree. Findings print in the selected format; rule execution problems print
separately on stderr.

Exit codes: 0 no findings at or above the threshold, 1 findings, 2 the
invocation or rule set itself was unusable.`,
		Example: `  treelint check
  treelint check src/ lib/handlers.ts
  treelint check --rules ./rules --format json .
  treelint check --changed-since origin/main --max-severity-exit warning`,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runCheck(cmd, globals, flags, args, version)
			if err != nil {
				return err
			}

			if code != ExitClean {
				os.Exit(code)
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&flags.rulePaths, "rules", nil, "additional rule files, manifests, or directories")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "output format (text, json, yaml, table, html)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().StringVar(&flags.colorMode, "color", "", "color mode (auto, always, never)")
	cmd.Flags().BoolVar(&flags.summary, "summary", false, "append a run summary to human-readable formats")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "file worker count (0 = one per CPU)")
	cmd.Flags().StringSliceVar(&flags.exclude, "exclude", nil, "path globs to skip")
	cmd.Flags().BoolVar(&flags.includeVendored, "include-vendored", false, "lint vendored paths too")
	cmd.Flags().StringVar(&flags.changedSince, "changed-since", "", "only report findings on lines changed since this git revision")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable the result cache for this run")
	cmd.Flags().StringVar(&flags.maxSeverityExit, "max-severity-exit", "", "minimum severity that fails the run (error, warning, info)")

	return cmd
}

// runCheck executes the full pipeline: config, rules, cache, scope, walk,
// report. It returns the process exit code, or an error for usage-level
// failures.
func runCheck(
	cmd *cobra.Command, globals *GlobalFlags, flags *checkFlags, args []string, version string,
) (int, error) {
	ctx := cmd.Context()

	cfg, err := loadConfig(globals)
	if err != nil {
		return ExitUsage, err
	}

	err = mergeCheckFlags(cmd, cfg, flags)
	if err != nil {
		return ExitUsage, err
	}

	providers, err := initObservability(cfg, globals, observability.ModeCLI, version)
	if err != nil {
		return ExitUsage, err
	}

	defer shutdownProviders(providers)

	registry, compileProblems, err := buildRegistry(cfg, flags.rulePaths)
	if err != nil {
		return ExitUsage, err
	}

	printProblems(compileProblems)

	run, err := buildRunner(ctx, cfg, registry, providers)
	if err != nil {
		return ExitUsage, err
	}

	roots := args
	if len(roots) == 0 {
		roots = []string{"."}
	}

	result, err := run.Run(ctx, roots)
	if err != nil {
		return ExitUsage, fmt.Errorf("lint run: %w", err)
	}

	err = renderResult(cfg, flags, result)
	if err != nil {
		return ExitUsage, err
	}

	threshold, err := cfg.Output.ExitThreshold()
	if err != nil {
		return ExitUsage, err
	}

	if result.HasErrors(threshold) {
		return ExitFindings, nil
	}

	return ExitClean, nil
}

// mergeCheckFlags copies explicitly-set flags over the config file values, so
// the effective settings live in one place. Flag values go through the same
// validation as the config file.
func mergeCheckFlags(cmd *cobra.Command, cfg *config.Config, flags *checkFlags) error {
	if flags.format != "" {
		cfg.Output.Format = flags.format
	}

	if flags.colorMode != "" {
		cfg.Output.Color = flags.colorMode
	}

	if cmd.Flags().Changed("summary") {
		cfg.Output.Summary = flags.summary
	}

	if flags.maxSeverityExit != "" {
		cfg.Output.MaxSeverityExit = flags.maxSeverityExit
	}

	if cmd.Flags().Changed("workers") {
		cfg.Run.Workers = flags.workers
	}

	if cmd.Flags().Changed("include-vendored") {
		cfg.Run.IncludeVendored = flags.includeVendored
	}

	if flags.changedSince != "" {
		cfg.Run.ChangedSince = flags.changedSince
	}

	if flags.noCache {
		cfg.Cache.Enabled = false
	}

	cfg.Run.Exclude = append(cfg.Run.Exclude, flags.exclude...)

	return cfg.Validate()
}

// buildRunner assembles the runner from the effective configuration.
func buildRunner(
	ctx context.Context, cfg *config.Config,
	registry *lint.Registry, providers observability.Providers,
) (*runner.Runner, error) {
	ruleTimeout, err := cfg.Run.RuleTimeoutDuration()
	if err != nil {
		return nil, err
	}

	maxFileSize, err := cfg.Run.MaxFileSizeBytes()
	if err != nil {
		return nil, err
	}

	engine := lint.NewEngine(registry, lint.Options{
		RuleTimeout: ruleTimeout,
		Logger:      providers.Logger,
	})

	opts := runner.Options{
		Engine:          engine,
		Workers:         cfg.Run.Workers,
		MaxFileSize:     maxFileSize,
		Exclude:         cfg.Run.Exclude,
		IncludeVendored: cfg.Run.IncludeVendored,
		Logger:          providers.Logger,
		Tracer:          providers.Tracer,
	}

	opts.Metrics, err = observability.NewLintMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("create lint metrics: %w", err)
	}

	if cfg.Cache.Enabled {
		cache, cacheErr := lintcache.Open(cfg.Cache.Dir, 0)
		if cacheErr != nil {
			// A broken cache never blocks a lint run.
			providers.Logger.WarnContext(ctx, "result cache disabled", "error", cacheErr)
		} else {
			opts.Cache = cache
		}
	}

	if cfg.Run.ChangedSince != "" {
		scope, scopeErr := gitscope.ChangedSince(".", cfg.Run.ChangedSince)
		if scopeErr != nil {
			return nil, fmt.Errorf("changed-since %s: %w", cfg.Run.ChangedSince, scopeErr)
		}

		opts.Scope = scope
	}

	return runner.New(opts), nil
}

// renderResult writes the report to stdout or the requested output file.
func renderResult(cfg *config.Config, flags *checkFlags, result runner.RunResult) error {
	var out io.Writer = os.Stdout

	if flags.output != "" {
		file, err := os.Create(flags.output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}

		defer file.Close()

		out = file
	}

	colorMode := cfg.Output.Color
	if flags.output != "" && colorMode == report.ColorAuto {
		colorMode = report.ColorNever
	}

	return report.Render(out, result, cfg.Output.Format, report.Options{
		Color:   colorMode,
		Summary: cfg.Output.Summary,
	})
}

func shutdownProviders(providers observability.Providers) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := providers.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "observability shutdown: %v\n", err)
	}
}
