// Package parser turns source files into the syntax trees the lint engine
// matches against, using tree-sitter grammars. One Provider wraps one
// grammar and is safe for concurrent use; it pools the underlying
// tree-sitter parsers, which are not.
//
// The conversion keeps only named children: anonymous grammar tokens
// (punctuation, keywords as operators) carry no structure a pattern needs,
// and dropping them is what makes positional child matching line up with
// how rules read. A node without named children is a leaf and keeps its
// source text.
package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/treelint/pkg/syntax"
)

var (
	// ErrUnsupportedLanguage reports a language tag with no registered
	// grammar.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrNoRootNode reports content the grammar produced no tree for.
	ErrNoRootNode = errors.New("parse produced no root node")

	errPoolType = errors.New("parser pool returned unexpected type")
)

// Provider parses source in one language.
type Provider struct {
	tag  string
	pool sync.Pool
}

// NewProvider builds a Provider for a language tag.
func NewProvider(tag string) (*Provider, error) {
	lang := Language(tag)
	if lang == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, tag)
	}

	return &Provider{
		tag: tag,
		pool: sync.Pool{
			New: func() any {
				tsParser := sitter.NewParser()
				tsParser.SetLanguage(lang)

				return tsParser
			},
		},
	}, nil
}

// Tag returns the provider's language tag.
func (p *Provider) Tag() string {
	return p.tag
}

// Parse parses content into the engine's tree model. The tree-sitter tree
// is closed before returning; the result holds copies of all text it needs.
func (p *Provider) Parse(ctx context.Context, content []byte) (*syntax.Node, error) {
	tsParser, ok := p.pool.Get().(*sitter.Parser)
	if !ok {
		return nil, errPoolType
	}

	defer p.pool.Put(tsParser)

	tree, err := tsParser.ParseString(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.tag, err)
	}

	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, fmt.Errorf("%w (%s)", ErrNoRootNode, p.tag)
	}

	return convert(root, content), nil
}

// ParseFile detects the file's language and parses it with a fresh
// provider. Callers parsing many files should detect once and reuse a
// Provider per language instead.
func ParseFile(ctx context.Context, filename string, content []byte) (*syntax.Node, string, error) {
	tag := LanguageFor(filename, content)
	if tag == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, filename)
	}

	provider, err := NewProvider(tag)
	if err != nil {
		return nil, "", err
	}

	tree, err := provider.Parse(ctx, content)
	if err != nil {
		return nil, "", err
	}

	return tree, tag, nil
}

// convert maps one tree-sitter node and its named descendants to the engine
// model. Token text is copied out of content, the CST does not outlive the
// parse.
func convert(tsNode sitter.Node, content []byte) *syntax.Node {
	count := tsNode.NamedChildCount()

	builder := syntax.NewBuilder().
		WithKind(tsNode.Type()).
		WithSpan(spanOf(tsNode))

	if count == 0 {
		return builder.WithToken(textOf(tsNode, content)).Build()
	}

	children := make([]*syntax.Node, 0, count)
	for idx := range count {
		children = append(children, convert(tsNode.NamedChild(idx), content))
	}

	return builder.WithChildren(children...).Build()
}

func spanOf(tsNode sitter.Node) syntax.Span {
	start := tsNode.StartPoint()
	end := tsNode.EndPoint()

	return syntax.Span{
		StartLine:   start.Row + 1,
		StartCol:    start.Column + 1,
		StartOffset: tsNode.StartByte(),
		EndLine:     end.Row + 1,
		EndCol:      end.Column + 1,
		EndOffset:   tsNode.EndByte(),
	}
}

func textOf(tsNode sitter.Node, content []byte) string {
	start := tsNode.StartByte()
	end := tsNode.EndByte()

	if end > uint(len(content)) || start > end {
		return ""
	}

	return string(content[start:end])
}
