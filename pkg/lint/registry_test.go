package lint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/treelint/pkg/diag"
	"github.com/Sumatoshi-tech/treelint/pkg/pattern"
)

const registryRules = `
rule alpha-union {
  severity warning
  languages typescript, tsx
  match ` + "`(union_type $...parts)`" + ` as $union
  report $union "union"
}

rule alpha-select {
  severity error
  languages javascript, typescript
  match ` + "`db.select($...cols)`" + ` as $call
  report $call "select"
}

rule beta-step {
  match ` + "`step.run($callback)`" + ` as $call
  report $call "step"
}
`

func compileRules(t *testing.T, src string) []*pattern.RuleSpec {
	t.Helper()

	rules, failures := pattern.Compile(src, "registry_test.tlq")
	require.Empty(t, failures)

	return rules
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	registry := NewRegistry()
	for _, rule := range compileRules(t, registryRules) {
		require.NoError(t, registry.Register(rule))
	}

	return registry
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)

	assert.Equal(t, 3, registry.Len())
	assert.Equal(t, []string{"alpha-union", "alpha-select", "beta-step"}, registry.Names())

	rule, err := registry.Rule("alpha-select")
	require.NoError(t, err)
	assert.Equal(t, diag.SeverityError, rule.Severity)

	_, err = registry.Rule("missing")
	assert.ErrorIs(t, err, ErrUnknownRule)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)

	err := registry.Register(compileRules(t, registryRules)[0])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateRule)
	assert.Contains(t, err.Error(), "alpha-union")

	// The failed registration must not disturb the stored set.
	assert.Equal(t, 3, registry.Len())
}

func TestRegistry_RegisterValidatesSpec(t *testing.T) {
	t.Parallel()

	err := NewRegistry().Register(&pattern.RuleSpec{Name: "hollow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, pattern.ErrIncompleteRule)
}

func TestRegistry_RulesReturnsCopy(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)

	rules := registry.Rules()
	rules[0] = nil

	assert.Equal(t, "alpha-union", registry.Rules()[0].Name)
}

func TestRegistry_SelectedNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		patterns []string
		want     []string
		wantErr  error
	}{
		{
			name:     "no patterns selects everything",
			patterns: nil,
			want:     []string{"alpha-union", "alpha-select", "beta-step"},
		},
		{
			name:     "exact name",
			patterns: []string{"beta-step"},
			want:     []string{"beta-step"},
		},
		{
			name:     "glob prefix",
			patterns: []string{"alpha-*"},
			want:     []string{"alpha-union", "alpha-select"},
		},
		{
			name:     "star selects everything",
			patterns: []string{"*"},
			want:     []string{"alpha-union", "alpha-select", "beta-step"},
		},
		{
			name:     "overlapping patterns deduplicate",
			patterns: []string{"alpha-*", "alpha-union"},
			want:     []string{"alpha-union", "alpha-select"},
		},
		{
			name:     "whitespace trimmed",
			patterns: []string{"  beta-step  "},
			want:     []string{"beta-step"},
		},
		{
			name:     "unknown exact name",
			patterns: []string{"gamma-missing"},
			wantErr:  ErrUnknownRule,
		},
		{
			name:     "glob matching nothing",
			patterns: []string{"gamma-*"},
			wantErr:  ErrUnknownRule,
		},
		{
			name:     "malformed glob",
			patterns: []string{"alpha-["},
			wantErr:  ErrInvalidRuleGlob,
		},
	}

	registry := newTestRegistry(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			names, err := registry.SelectedNames(tt.patterns)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestRegistry_Select(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)

	// Selection order does not matter; the sub-registry keeps registration order.
	sub, err := registry.Select([]string{"beta-step", "alpha-union"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha-union", "beta-step"}, sub.Names())

	_, err = registry.Select([]string{"gamma-*"})
	assert.ErrorIs(t, err, ErrUnknownRule)
}

func TestRegistry_Fingerprint(t *testing.T) {
	t.Parallel()

	first := newTestRegistry(t)
	second := newTestRegistry(t)
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())

	// Changing any rule's meaning moves the fingerprint.
	changed := NewRegistry()
	for _, rule := range compileRules(t, strings.Replace(registryRules, "severity error", "severity info", 1)) {
		require.NoError(t, changed.Register(rule))
	}

	assert.NotEqual(t, first.Fingerprint(), changed.Fingerprint())

	// Dropping a rule moves it too.
	sub, err := first.Select([]string{"alpha-*"})
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint(), sub.Fingerprint())

	// The empty registry digest is still stable.
	assert.Equal(t, NewRegistry().Fingerprint(), NewRegistry().Fingerprint())
}
