package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/treelint/internal/config"
	"github.com/Sumatoshi-tech/treelint/internal/manifest"
	"github.com/Sumatoshi-tech/treelint/pkg/diag"
	"github.com/Sumatoshi-tech/treelint/pkg/lint"
)

const extraRuleSource = `rule no-eval {
  severity warning
  description "Disallow eval calls."
  languages javascript, typescript

  match ` + "`eval($...args)`" + ` as $call
  report $call "eval executes arbitrary code."
}
`

func writeRuleFile(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(extraRuleSource), 0o600))

	return path
}

func TestCheckCommand_Structure(t *testing.T) {
	t.Parallel()

	cmd := NewCheckCommand(&GlobalFlags{}, "test")
	require.NotNil(t, cmd)
	assert.Equal(t, "check [paths...]", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	for _, name := range []string{
		"rules", "format", "output", "color", "summary", "workers",
		"exclude", "include-vendored", "changed-since", "no-cache", "max-severity-exit",
	} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestRulesCommand_Structure(t *testing.T) {
	t.Parallel()

	cmd := NewRulesCommand(&GlobalFlags{})
	require.NotNil(t, cmd)
	assert.Equal(t, "rules", cmd.Use)
	require.NotNil(t, cmd.Flags().Lookup("language"))
	require.NotNil(t, cmd.Flags().Lookup("query"))
}

func TestServerCommands_Structure(t *testing.T) {
	t.Parallel()

	lspCmd := NewLSPCommand(&GlobalFlags{}, "test")
	require.NotNil(t, lspCmd)
	assert.Equal(t, "lsp", lspCmd.Use)

	mcpCmd := NewMCPCommand(&GlobalFlags{}, "test")
	require.NotNil(t, mcpCmd)
	assert.Equal(t, "mcp", mcpCmd.Use)
}

func TestRegisterGlobalFlags(t *testing.T) {
	t.Parallel()

	rootCmd := &cobra.Command{Use: "treelint"}
	globals := RegisterGlobalFlags(rootCmd)

	require.NotNil(t, globals)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("quiet"))
}

func TestGlobalFlags_LogLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelWarn, (&GlobalFlags{}).LogLevel())
	assert.Equal(t, slog.LevelDebug, (&GlobalFlags{Verbose: true}).LogLevel())
	assert.Equal(t, slog.LevelError, (&GlobalFlags{Quiet: true}).LogLevel())
}

func TestBuildRegistry_BuiltinsOnly(t *testing.T) {
	t.Parallel()

	registry, problems, err := buildRegistry(&config.Config{}, nil)
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Contains(t, registry.Names(), "no-db-select-in-step-run")
	assert.Contains(t, registry.Names(), "prefer-undefined-over-null")
}

func TestBuildRegistry_ExtraRuleFile(t *testing.T) {
	t.Parallel()

	path := writeRuleFile(t, t.TempDir(), "no_eval.tlq")

	registry, problems, err := buildRegistry(&config.Config{}, []string{path})
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Contains(t, registry.Names(), "no-eval")
}

func TestBuildRegistry_RuleDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRuleFile(t, dir, "no_eval.tlq")

	cfg := &config.Config{}
	cfg.Rules.Paths = []string{dir}

	registry, _, err := buildRegistry(cfg, nil)
	require.NoError(t, err)
	assert.Contains(t, registry.Names(), "no-eval")
}

func TestBuildRegistry_Manifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeRuleFile(t, dir, "no_eval.tlq")

	manifestBody := `{"name":"extras","version":"1.0.0","rules":[{"path":"no_eval.tlq"}]}`
	manifestPath := filepath.Join(dir, manifest.DefaultFileName)
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifestBody), 0o600))

	// A directory with a manifest loads the manifest, not every .tlq.
	registry, problems, err := buildRegistry(&config.Config{}, []string{dir})
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Contains(t, registry.Names(), "no-eval")
}

func TestBuildRegistry_MissingPath(t *testing.T) {
	t.Parallel()

	_, _, err := buildRegistry(&config.Config{}, []string{filepath.Join(t.TempDir(), "absent.tlq")})
	require.Error(t, err)
}

func TestBuildRegistry_EnabledSelection(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Rules.Enabled = []string{"prefer-undefined-over-null"}

	registry, _, err := buildRegistry(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"prefer-undefined-over-null"}, registry.Names())
}

func TestBuildRegistry_DisabledSelection(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Rules.Disabled = []string{"prefer-undefined-over-null"}

	registry, _, err := buildRegistry(cfg, nil)
	require.NoError(t, err)
	assert.NotContains(t, registry.Names(), "prefer-undefined-over-null")
	assert.Contains(t, registry.Names(), "no-db-select-in-step-run")
}

func TestBuildRegistry_EverythingDisabled(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Rules.Disabled = []string{"*"}

	registry, _, err := buildRegistry(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, registry.Len())
}

func TestBuildRegistry_UnknownEnabledRule(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Rules.Enabled = []string{"no-such-rule"}

	_, _, err := buildRegistry(cfg, nil)
	require.ErrorIs(t, err, lint.ErrUnknownRule)
}

func TestBuildRegistry_SeverityOverride(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Rules.Severity = map[string]string{
		"prefer-undefined-over-null": "error",
		"not-loaded":                 "info",
	}

	registry, _, err := buildRegistry(cfg, nil)
	require.NoError(t, err)

	rule, err := registry.Rule("prefer-undefined-over-null")
	require.NoError(t, err)
	assert.Equal(t, diag.SeverityError, rule.Severity)
}

func TestMergeCheckFlags_Overrides(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Output.Format = "text"
	cfg.Cache.Enabled = true

	cmd := NewCheckCommand(&GlobalFlags{}, "test")
	require.NoError(t, cmd.Flags().Set("format", "json"))
	require.NoError(t, cmd.Flags().Set("no-cache", "true"))
	require.NoError(t, cmd.Flags().Set("max-severity-exit", "warning"))
	require.NoError(t, cmd.Flags().Set("exclude", "dist/**"))

	flags := &checkFlags{
		format:          "json",
		noCache:         true,
		maxSeverityExit: "warning",
		exclude:         []string{"dist/**"},
	}

	require.NoError(t, mergeCheckFlags(cmd, cfg, flags))
	assert.Equal(t, "json", cfg.Output.Format)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "warning", cfg.Output.MaxSeverityExit)
	assert.Contains(t, cfg.Run.Exclude, "dist/**")
}

func TestMergeCheckFlags_InvalidFormat(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cmd := NewCheckCommand(&GlobalFlags{}, "test")
	flags := &checkFlags{format: "xml"}

	err := mergeCheckFlags(cmd, cfg, flags)
	require.ErrorIs(t, err, config.ErrInvalidFormat)
}

func TestLanguagesLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "all", languagesLabel(nil))
	assert.Equal(t, "typescript, tsx", languagesLabel([]string{"typescript", "tsx"}))
}
