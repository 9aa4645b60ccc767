// Package commands implements the treelint CLI commands and the shared
// wiring between configuration, rule loading and observability.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/treelint/internal/config"
	"github.com/Sumatoshi-tech/treelint/internal/manifest"
	"github.com/Sumatoshi-tech/treelint/internal/observability"
	"github.com/Sumatoshi-tech/treelint/pkg/diag"
	"github.com/Sumatoshi-tech/treelint/pkg/lint"
)

// Process exit codes. Findings and broken invocations must stay
// distinguishable for CI callers.
const (
	// ExitClean means no findings at or above the threshold.
	ExitClean = 0
	// ExitFindings means at least one finding at or above the threshold.
	ExitFindings = 1
	// ExitUsage means the invocation or rule set itself was unusable.
	ExitUsage = 2
)

// GlobalFlags holds the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

// RegisterGlobalFlags attaches the persistent flags to the root command.
func RegisterGlobalFlags(rootCmd *cobra.Command) *GlobalFlags {
	globals := &GlobalFlags{}

	rootCmd.PersistentFlags().StringVar(&globals.ConfigPath, "config", "", "config file (default: .treelint.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&globals.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&globals.Quiet, "quiet", "q", false, "suppress non-finding output")

	return globals
}

// LogLevel resolves the slog level the flags ask for.
func (g *GlobalFlags) LogLevel() slog.Level {
	switch {
	case g.Verbose:
		return slog.LevelDebug
	case g.Quiet:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// loadConfig reads and validates the effective configuration.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(globals.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

// buildRegistry compiles the effective rule set: embedded builtins first,
// then the configured rule paths in order, then extra paths from the
// command line. Per-rule compile failures come back as problems; a path
// that cannot be read at all is fatal.
func buildRegistry(cfg *config.Config, extraPaths []string) (*lint.Registry, []diag.Problem, error) {
	registry := lint.NewRegistry()

	problems := lint.LoadBuiltins(registry)

	paths := make([]string, 0, len(cfg.Rules.Paths)+len(extraPaths))
	paths = append(paths, cfg.Rules.Paths...)
	paths = append(paths, extraPaths...)

	for _, path := range paths {
		pathProblems, err := loadRulePath(registry, path)
		if err != nil {
			return nil, problems, err
		}

		problems = append(problems, pathProblems...)
	}

	selected, err := applyRuleSelection(registry, cfg)
	if err != nil {
		return nil, problems, err
	}

	err = applySeverityOverrides(selected, cfg)
	if err != nil {
		return nil, problems, err
	}

	return selected, problems, nil
}

// loadRulePath loads one rule source: a .tlq file, a ruleset manifest, or a
// directory (manifest-described when one is present, otherwise every .tlq
// under it).
func loadRulePath(registry *lint.Registry, path string) ([]diag.Problem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("rules path %s: %w", path, err)
	}

	if !info.IsDir() {
		if filepath.Ext(path) == ".json" {
			return loadManifest(registry, path)
		}

		return lint.LoadFile(registry, path)
	}

	manifestPath := filepath.Join(path, manifest.DefaultFileName)
	if _, statErr := os.Stat(manifestPath); statErr == nil {
		return loadManifest(registry, manifestPath)
	}

	return lint.LoadDir(registry, path)
}

func loadManifest(registry *lint.Registry, path string) ([]diag.Problem, error) {
	loaded, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}

	var problems []diag.Problem

	for _, rulePath := range loaded.RulePaths() {
		fileProblems, fileErr := lint.LoadFile(registry, rulePath)
		if fileErr != nil {
			return problems, fileErr
		}

		problems = append(problems, fileProblems...)
	}

	return problems, nil
}

// applyRuleSelection narrows the registry to the enabled rules minus the
// disabled ones. An empty enabled list means everything.
func applyRuleSelection(registry *lint.Registry, cfg *config.Config) (*lint.Registry, error) {
	if len(cfg.Rules.Enabled) == 0 && len(cfg.Rules.Disabled) == 0 {
		return registry, nil
	}

	enabled, err := registry.SelectedNames(cfg.Rules.Enabled)
	if err != nil {
		return nil, fmt.Errorf("rules.enabled: %w", err)
	}

	disabled := make(map[string]struct{})

	if len(cfg.Rules.Disabled) > 0 {
		disabledNames, disableErr := registry.SelectedNames(cfg.Rules.Disabled)
		if disableErr != nil {
			return nil, fmt.Errorf("rules.disabled: %w", disableErr)
		}

		for _, name := range disabledNames {
			disabled[name] = struct{}{}
		}
	}

	kept := make([]string, 0, len(enabled))

	for _, name := range enabled {
		if _, drop := disabled[name]; !drop {
			kept = append(kept, name)
		}
	}

	if len(kept) == 0 {
		return lint.NewRegistry(), nil
	}

	return registry.Select(kept)
}

// applySeverityOverrides rewrites rule severities per the project config.
func applySeverityOverrides(registry *lint.Registry, cfg *config.Config) error {
	overrides, err := cfg.Rules.SeverityOverrides()
	if err != nil {
		return err
	}

	for name, severity := range overrides {
		rule, ruleErr := registry.Rule(name)
		if ruleErr != nil {
			// Overriding a rule that is not loaded is not an error;
			// project config may cover optional rulesets.
			continue
		}

		rule.Severity = severity
	}

	return nil
}

// initObservability builds the telemetry providers for one execution mode.
func initObservability(
	cfg *config.Config, globals *GlobalFlags, mode observability.AppMode, version string,
) (observability.Providers, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	obsCfg.Mode = mode
	obsCfg.LogLevel = globals.LogLevel()

	if cfg.Observability.ServiceName != "" {
		obsCfg.ServiceName = cfg.Observability.ServiceName
	}

	if cfg.Observability.Enabled {
		obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		obsCfg.OTLPEndpoint = endpoint
	}

	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	obsCfg.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"

	// Server modes log to stderr as JSON; stdio carries the protocol.
	obsCfg.LogJSON = mode != observability.ModeCLI

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return observability.Providers{}, fmt.Errorf("init observability: %w", err)
	}

	return providers, nil
}

// printProblems reports rule-execution problems on stderr, apart from
// findings, so "no findings" never reads as "all rules ran".
func printProblems(problems []diag.Problem) {
	if len(problems) == 0 {
		return
	}

	fmt.Fprintf(os.Stderr, "%d rule problem(s):\n", len(problems))

	for _, problem := range problems {
		fmt.Fprintf(os.Stderr, "  %s\n", problem.Error())
	}
}

// languagesLabel renders a rule's language list for human output.
func languagesLabel(languages []string) string {
	if len(languages) == 0 {
		return "all"
	}

	return strings.Join(languages, ", ")
}
