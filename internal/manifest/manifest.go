// Package manifest loads treelint ruleset manifests. A manifest
// (treelint-ruleset.json) names a ruleset and lists its rule files with
// optional language tags; it is validated against an embedded JSON Schema
// before any rule file is compiled, so a malformed manifest fails with field
// paths instead of cryptic compile problems.
package manifest

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// DefaultFileName is the manifest file name looked up in ruleset directories.
const DefaultFileName = "treelint-ruleset.json"

//go:embed ruleset-schema.json
var schemaJSON []byte

// ErrManifestInvalid is returned when a manifest fails schema validation.
var ErrManifestInvalid = errors.New("invalid ruleset manifest")

// RuleFile is one rule-file entry of a manifest.
type RuleFile struct {
	Path      string   `json:"path"`
	Languages []string `json:"languages,omitempty"`
}

// Manifest describes one ruleset: its identity and the rule files it ships.
type Manifest struct {
	Name    string     `json:"name"`
	Version string     `json:"version"`
	Rules   []RuleFile `json:"rules"`

	// dir is where the manifest was loaded from; rule paths resolve
	// against it.
	dir string
}

// RulePaths returns the absolute paths of the manifest's rule files, in
// declaration order.
func (m *Manifest) RulePaths() []string {
	paths := make([]string, 0, len(m.Rules))

	for _, rule := range m.Rules {
		path := rule.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(m.dir, filepath.FromSlash(path))
		}

		paths = append(paths, path)
	}

	return paths
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return Parse(content, filepath.Dir(path))
}

// Parse validates manifest content against the embedded schema and decodes
// it. dir anchors relative rule paths.
func Parse(content []byte, dir string) (*Manifest, error) {
	err := validateSchema(content)
	if err != nil {
		return nil, err
	}

	var loaded Manifest

	err = json.Unmarshal(content, &loaded)
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	loaded.dir = dir

	return &loaded, nil
}

func validateSchema(content []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	documentLoader := gojsonschema.NewBytesLoader(content)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("validate manifest: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		details = append(details, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
	}

	return fmt.Errorf("%w: %s", ErrManifestInvalid, strings.Join(details, "; "))
}
