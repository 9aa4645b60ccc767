package parser

import (
	"sort"
	"sync"
	"unsafe"

	golang "github.com/alexaandru/go-sitter-forest/go"
	"github.com/alexaandru/go-sitter-forest/javascript"
	"github.com/alexaandru/go-sitter-forest/tsx"
	"github.com/alexaandru/go-sitter-forest/typescript"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// languageFuncs maps language tags to their grammar constructors. Adding a
// language is one import and one entry here; rules select languages by
// these tags.
//
//nolint:gochecknoglobals // Static grammar table.
var languageFuncs = map[string]func() unsafe.Pointer{
	"go":         golang.GetLanguage,
	"javascript": javascript.GetLanguage,
	"tsx":        tsx.GetLanguage,
	"typescript": typescript.GetLanguage,
}

//nolint:gochecknoglobals // Process-wide grammar cache.
var languageCache sync.Map

// Language returns the compiled grammar for a language tag, or nil when no
// grammar is registered for it. Grammars are built once and cached for the
// process lifetime.
func Language(tag string) *sitter.Language {
	if cached, ok := languageCache.Load(tag); ok {
		lang, castOK := cached.(*sitter.Language)
		if castOK {
			return lang
		}
	}

	fn, ok := languageFuncs[tag]
	if !ok {
		return nil
	}

	lang := sitter.NewLanguage(fn())
	languageCache.Store(tag, lang)

	return lang
}

// IsSupported reports whether a grammar is registered for the tag.
func IsSupported(tag string) bool {
	_, ok := languageFuncs[tag]

	return ok
}

// Supported returns the registered language tags, sorted.
func Supported() []string {
	tags := make([]string, 0, len(languageFuncs))
	for tag := range languageFuncs {
		tags = append(tags, tag)
	}

	sort.Strings(tags)

	return tags
}
