package lint

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/treelint/pkg/diag"
	"github.com/Sumatoshi-tech/treelint/pkg/pattern"
)

//go:embed rules/*.tlq
var builtinRules embed.FS

// LoadBuiltins registers the rules shipped inside the binary. Problems from
// the embedded set indicate a packaging defect, but they are reported the
// same way as user-rule failures so nothing is silently dropped.
func LoadBuiltins(registry *Registry) []diag.Problem {
	paths, err := fs.Glob(builtinRules, "rules/*.tlq")
	if err != nil {
		return []diag.Problem{{Rule: "builtins", Stage: diag.StageCompile, Err: err}}
	}

	var problems []diag.Problem

	for _, rulePath := range paths {
		content, readErr := builtinRules.ReadFile(rulePath)
		if readErr != nil {
			problems = append(problems, diag.Problem{Rule: rulePath, Stage: diag.StageCompile, Err: readErr})

			continue
		}

		problems = append(problems, LoadSource(registry, string(content), rulePath)...)
	}

	return problems
}

// LoadSource compiles rule-language source and registers every rule that
// compiled. Each rule that fails to compile, and each rule the registry
// rejects, becomes one Problem; healthy sibling rules in the same source
// still register.
func LoadSource(registry *Registry, source, label string) []diag.Problem {
	rules, failures := pattern.Compile(source, label)

	var problems []diag.Problem

	for _, failure := range failures {
		name := failure.Rule
		if name == "" {
			name = label
		}

		problems = append(problems, diag.Problem{Rule: name, Stage: diag.StageCompile, Err: failure})
	}

	for _, rule := range rules {
		if err := registry.Register(rule); err != nil {
			problems = append(problems, diag.Problem{Rule: rule.Name, Stage: diag.StageCompile, Err: err})
		}
	}

	return problems
}

// LoadFile registers every rule in one .tlq file. The returned error covers
// reading the file; per-rule failures come back as Problems.
func LoadFile(registry *Registry, path string) ([]diag.Problem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}

	return LoadSource(registry, string(content), path), nil
}

// LoadDir registers every .tlq file under dir, walking in lexical order so
// registration order is stable across runs.
func LoadDir(registry *Registry, dir string) ([]diag.Problem, error) {
	var problems []diag.Problem

	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() || filepath.Ext(path) != ".tlq" {
			return nil
		}

		fileProblems, fileErr := LoadFile(registry, path)
		if fileErr != nil {
			return fileErr
		}

		problems = append(problems, fileProblems...)

		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk rules dir %s: %w", dir, walkErr)
	}

	return problems, nil
}
