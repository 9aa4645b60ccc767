package parser

import (
	"path/filepath"
	"strings"

	"github.com/src-d/enry/v2"
)

// extensionTags resolves the common extensions directly, so the usual case
// never pays for content classification.
//
//nolint:gochecknoglobals // Static extension table.
var extensionTags = map[string]string{
	".cjs": "javascript",
	".cts": "typescript",
	".go":  "go",
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".mts": "typescript",
	".ts":  "typescript",
	".tsx": "tsx",
}

// enryTags normalizes classifier language names to grammar tags.
//
//nolint:gochecknoglobals // Static alias table.
var enryTags = map[string]string{
	"go":         "go",
	"javascript": "javascript",
	"jsx":        "javascript",
	"tsx":        "tsx",
	"typescript": "typescript",
}

// LanguageFor resolves the language tag for a file: extension first, content
// classification second (extensionless scripts, shebangs). The empty string
// means the file is not in a supported language.
func LanguageFor(filename string, contents []byte) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if tag, ok := extensionTags[ext]; ok {
		return tag
	}

	name := enry.GetLanguage(filepath.Base(filename), contents)
	if name == "" {
		return ""
	}

	return enryTags[strings.ToLower(name)]
}

// IsVendored reports whether a path belongs to vendored or generated
// dependency trees (node_modules, minified bundles and the like) that lint
// runs skip.
func IsVendored(path string) bool {
	return enry.IsVendor(path)
}
