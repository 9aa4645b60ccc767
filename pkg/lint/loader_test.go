package lint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/treelint/pkg/diag"
	"github.com/Sumatoshi-tech/treelint/pkg/pattern"
)

func TestLoadBuiltins(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	problems := LoadBuiltins(registry)
	require.Empty(t, problems)

	assert.Equal(t, []string{"no-db-select-in-step-run", "prefer-undefined-over-null"}, registry.Names())

	dbRule, err := registry.Rule("no-db-select-in-step-run")
	require.NoError(t, err)
	assert.Equal(t, diag.SeverityError, dbRule.Severity)
	assert.NotEmpty(t, dbRule.Description)
	assert.True(t, dbRule.AppliesTo("javascript"))
	assert.True(t, dbRule.AppliesTo("typescript"))
	assert.False(t, dbRule.AppliesTo("go"))

	nullRule, err := registry.Rule("prefer-undefined-over-null")
	require.NoError(t, err)
	assert.Equal(t, diag.SeverityWarning, nullRule.Severity)
	assert.True(t, nullRule.AppliesTo("tsx"))
	assert.False(t, nullRule.AppliesTo("javascript"))
}

func TestLoadSource_BadRuleDoesNotBlockSiblings(t *testing.T) {
	t.Parallel()

	src := `
rule broken {
  match ` + "`db.select(`" + `
  report $x "never compiles"
}

rule healthy {
  match ` + "`(debugger_statement)`" + ` as $stmt
  report $stmt "remove before commit"
}
`

	registry := NewRegistry()
	problems := LoadSource(registry, src, "mixed.tlq")

	require.Len(t, problems, 1)
	assert.Equal(t, "broken", problems[0].Rule)
	assert.Equal(t, diag.StageCompile, problems[0].Stage)
	assert.ErrorIs(t, problems[0], pattern.ErrMalformedSyntax)

	assert.Equal(t, []string{"healthy"}, registry.Names())
}

func TestLoadSource_FailureBeforeRuleNameUsesLabel(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	problems := LoadSource(registry, ")))", "garbage.tlq")

	require.NotEmpty(t, problems)
	assert.Equal(t, "garbage.tlq", problems[0].Rule)
	assert.Equal(t, diag.StageCompile, problems[0].Stage)
}

func TestLoadSource_DuplicateAcrossSources(t *testing.T) {
	t.Parallel()

	src := `
rule twice {
  match ` + "`(debugger_statement)`" + ` as $stmt
  report $stmt "first copy wins"
}
`

	registry := NewRegistry()
	require.Empty(t, LoadSource(registry, src, "first.tlq"))

	problems := LoadSource(registry, src, "second.tlq")
	require.Len(t, problems, 1)
	assert.Equal(t, "twice", problems[0].Rule)
	assert.ErrorIs(t, problems[0], ErrDuplicateRule)

	assert.Equal(t, 1, registry.Len())
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "local.tlq")
	src := `
rule local-rule {
  match ` + "`(debugger_statement)`" + ` as $stmt
  report $stmt "debugger left in"
}
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	registry := NewRegistry()
	problems, err := LoadFile(registry, path)
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Equal(t, []string{"local-rule"}, registry.Names())

	_, err = LoadFile(registry, filepath.Join(dir, "absent.tlq"))
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	t.Parallel()

	ruleSrc := func(name string) string {
		return `
rule ` + name + ` {
  match ` + "`(debugger_statement)`" + ` as $stmt
  report $stmt "found"
}
`
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.tlq"), []byte(ruleSrc("from-b")), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.tlq"), []byte(ruleSrc("from-a")), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a rule file"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.tlq"), []byte(ruleSrc("from-c")), 0o600))

	registry := NewRegistry()
	problems, err := LoadDir(registry, dir)
	require.NoError(t, err)
	assert.Empty(t, problems)

	// Lexical walk order, recursing into subdirectories.
	assert.Equal(t, []string{"from-a", "from-b", "from-c"}, registry.Names())

	_, err = LoadDir(registry, filepath.Join(dir, "does-not-exist"))
	assert.Error(t, err)
}
