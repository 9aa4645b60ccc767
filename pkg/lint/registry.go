// Package lint assembles compiled rules into an engine: a registry with
// deterministic ordering, rule loading from embedded and on-disk rule files,
// and concurrent per-rule evaluation whose output order never depends on
// scheduling.
package lint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	pathpkg "path"
	"strings"

	"github.com/Sumatoshi-tech/treelint/pkg/pattern"
)

// ErrUnknownRule is returned when registry lookup fails.
var ErrUnknownRule = errors.New("unknown rule")

// ErrDuplicateRule is returned when a rule name registers twice.
var ErrDuplicateRule = errors.New("duplicate rule")

// ErrInvalidRuleGlob is returned when a rule selection pattern is malformed.
var ErrInvalidRuleGlob = errors.New("invalid rule glob")

// Registry stores compiled rules in registration order. That order is what
// ranks diagnostics, so two runs over the same ruleset sort identically.
type Registry struct {
	ordered []*pattern.RuleSpec
	index   map[string]*pattern.RuleSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]*pattern.RuleSpec)}
}

// Register validates and adds one rule. Rules from the compiler arrive
// validated already; going through Validate again keeps hand-built specs to
// the same standard.
func (r *Registry) Register(spec *pattern.RuleSpec) error {
	if cerr := pattern.Validate(spec); cerr != nil {
		return cerr
	}

	if _, exists := r.index[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, spec.Name)
	}

	r.index[spec.Name] = spec
	r.ordered = append(r.ordered, spec)

	return nil
}

// Rule returns the rule registered under name.
func (r *Registry) Rule(name string) (*pattern.RuleSpec, error) {
	spec, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRule, name)
	}

	return spec, nil
}

// Rules returns all rules in registration order.
func (r *Registry) Rules() []*pattern.RuleSpec {
	rules := make([]*pattern.RuleSpec, len(r.ordered))
	copy(rules, r.ordered)

	return rules
}

// Names returns all rule names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, spec := range r.ordered {
		names = append(names, spec.Name)
	}

	return names
}

// Len returns the number of registered rules.
func (r *Registry) Len() int {
	return len(r.ordered)
}

// SelectedNames expands rule selection patterns against registered names, or
// returns every name when no patterns are given. Plain names must exist;
// glob patterns must match at least one rule.
func (r *Registry) SelectedNames(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return r.Names(), nil
	}

	selected := make([]string, 0, len(r.ordered))
	selectedSet := make(map[string]struct{}, len(r.ordered))

	for _, rawPattern := range patterns {
		names, err := r.resolvePattern(strings.TrimSpace(rawPattern))
		if err != nil {
			return nil, err
		}

		for _, name := range names {
			if _, exists := selectedSet[name]; exists {
				continue
			}

			selected = append(selected, name)
			selectedSet[name] = struct{}{}
		}
	}

	return selected, nil
}

// Select builds a sub-registry holding the rules the patterns name,
// preserving this registry's relative order.
func (r *Registry) Select(patterns []string) (*Registry, error) {
	names, err := r.SelectedNames(patterns)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	sub := NewRegistry()

	for _, spec := range r.ordered {
		if _, ok := wanted[spec.Name]; !ok {
			continue
		}

		if regErr := sub.Register(spec); regErr != nil {
			return nil, regErr
		}
	}

	return sub, nil
}

func (r *Registry) resolvePattern(patternValue string) ([]string, error) {
	if patternValue == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrUnknownRule)
	}

	if !hasGlobMeta(patternValue) {
		if _, exists := r.index[patternValue]; !exists {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRule, patternValue)
		}

		return []string{patternValue}, nil
	}

	if patternValue == "*" {
		return r.Names(), nil
	}

	matched, err := r.matchGlob(patternValue)
	if err != nil {
		return nil, err
	}

	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRule, patternValue)
	}

	return matched, nil
}

func (r *Registry) matchGlob(patternValue string) ([]string, error) {
	matched := make([]string, 0, len(r.ordered))

	for _, spec := range r.ordered {
		isMatch, err := pathpkg.Match(patternValue, spec.Name)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidRuleGlob, patternValue, err)
		}

		if isMatch {
			matched = append(matched, spec.Name)
		}
	}

	return matched, nil
}

func hasGlobMeta(patternValue string) bool {
	return strings.ContainsAny(patternValue, "*?[")
}

// Fingerprint digests the ruleset: names, settings and canonical program
// renderings, in order. Cached results keyed by it become stale the moment
// any rule changes meaning.
func (r *Registry) Fingerprint() string {
	digest := sha256.New()

	for _, spec := range r.ordered {
		fmt.Fprintf(digest, "%s|%s|%s|%s|%s\n",
			spec.Name,
			spec.Severity,
			strings.Join(spec.Languages, ","),
			spec.Description,
			spec.Program,
		)
	}

	return hex.EncodeToString(digest.Sum(nil))
}
