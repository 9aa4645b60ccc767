package pattern

import "fmt"

// Grammar kinds the call and member sugar compiles to. The .tlq surface
// targets the javascript/typescript tree-sitter family; the matcher itself
// is kind-agnostic.
const (
	kindCall      = "call_expression"
	kindMember    = "member_expression"
	kindArguments = "arguments"
)

// parsePatternLiteral compiles the text between backticks into a pattern
// tree. Exactly one pattern is expected.
func (p *parser) parsePatternLiteral(rule, text string, line int) (Node, *CompileError) {
	pp := &patternParser{lx: newLexer(text, line), rule: rule, file: p.file}

	if err := pp.advance(); err != nil {
		return nil, pp.fail(err)
	}

	root, cerr := pp.parsePattern()
	if cerr != nil {
		return nil, cerr
	}

	if pp.tok.typ != tokEOF {
		return nil, compileErrorf(pp.file, pp.tok.line, pp.rule, ErrMalformedSyntax,
			"unexpected %q after pattern", pp.tok.text)
	}

	return root, nil
}

// patternParser parses the inside of one backtick literal with its own
// lexer, so pattern errors carry the literal's source line.
type patternParser struct {
	lx   *lexer
	tok  token
	rule string
	file string
}

func (pp *patternParser) advance() error {
	tok, err := pp.lx.next()
	if err != nil {
		return err
	}

	pp.tok = tok

	return nil
}

func (pp *patternParser) fail(err error) *CompileError {
	return &CompileError{Rule: pp.rule, File: pp.file, Line: pp.lx.line, Err: wrapMalformed(err)}
}

func (pp *patternParser) parsePattern() (Node, *CompileError) {
	switch pp.tok.typ {
	case tokLParen:
		return pp.parseKindPattern()
	case tokCapture:
		node := &Capture{Name: pp.tok.text}

		if err := pp.advance(); err != nil {
			return nil, pp.fail(err)
		}

		return node, nil
	case tokVariadic:
		node := &Variadic{Name: pp.tok.text}

		if err := pp.advance(); err != nil {
			return nil, pp.fail(err)
		}

		return node, nil
	case tokString:
		node := &Literal{Token: pp.tok.text}

		if err := pp.advance(); err != nil {
			return nil, pp.fail(err)
		}

		return node, nil
	case tokIdent:
		return pp.parsePathPattern()
	default:
		return nil, compileErrorf(pp.file, pp.tok.line, pp.rule, ErrMalformedSyntax,
			"unexpected %q in pattern", pp.tok.text)
	}
}

// parseKindPattern handles `(kind child child ...)`. A kind with no listed
// children matches regardless of children; listing children requires a full
// positional cover.
func (pp *patternParser) parseKindPattern() (Node, *CompileError) {
	if err := pp.advance(); err != nil {
		return nil, pp.fail(err)
	}

	if pp.tok.typ != tokIdent {
		return nil, compileErrorf(pp.file, pp.tok.line, pp.rule, ErrMalformedSyntax,
			"node kind expected after (")
	}

	lit := &Literal{Kind: pp.tok.text}

	if err := pp.advance(); err != nil {
		return nil, pp.fail(err)
	}

	for pp.tok.typ != tokRParen {
		if pp.tok.typ == tokEOF {
			return nil, compileErrorf(pp.file, pp.tok.line, pp.rule, ErrMalformedSyntax,
				"unterminated kind pattern for %s", lit.Kind)
		}

		child, cerr := pp.parsePattern()
		if cerr != nil {
			return nil, cerr
		}

		if lit.Children == nil {
			lit.Children = Sequence{}
		}

		lit.Children = append(lit.Children, child)
	}

	if err := pp.advance(); err != nil {
		return nil, pp.fail(err)
	}

	return lit, nil
}

// parsePathPattern handles a dotted path, optionally called:
// `null` (token literal), `db.select` (member literal),
// `step.run($_n, $cb)` (call sugar).
func (pp *patternParser) parsePathPattern() (Node, *CompileError) {
	path := []string{pp.tok.text}

	if err := pp.advance(); err != nil {
		return nil, pp.fail(err)
	}

	for pp.tok.typ == tokDot {
		if err := pp.advance(); err != nil {
			return nil, pp.fail(err)
		}

		if pp.tok.typ != tokIdent {
			return nil, compileErrorf(pp.file, pp.tok.line, pp.rule, ErrMalformedSyntax,
				"identifier expected after . in %s", pathString(path))
		}

		path = append(path, pp.tok.text)

		if err := pp.advance(); err != nil {
			return nil, pp.fail(err)
		}
	}

	if pp.tok.typ != tokLParen {
		return pathPattern(path), nil
	}

	args, cerr := pp.parseCallArgs(path)
	if cerr != nil {
		return nil, cerr
	}

	return &Literal{
		Kind: kindCall,
		Children: Sequence{
			pathPattern(path),
			&Literal{Kind: kindArguments, Children: args},
		},
	}, nil
}

// parseCallArgs handles the comma-separated argument slots of call sugar.
// `f()` yields an empty, non-nil sequence, requiring zero arguments.
func (pp *patternParser) parseCallArgs(path []string) (Sequence, *CompileError) {
	if err := pp.advance(); err != nil {
		return nil, pp.fail(err)
	}

	args := Sequence{}

	for pp.tok.typ != tokRParen {
		if pp.tok.typ == tokEOF {
			return nil, compileErrorf(pp.file, pp.tok.line, pp.rule, ErrMalformedSyntax,
				"unterminated argument list for %s", pathString(path))
		}

		arg, cerr := pp.parsePattern()
		if cerr != nil {
			return nil, cerr
		}

		args = append(args, arg)

		if pp.tok.typ == tokComma {
			if err := pp.advance(); err != nil {
				return nil, pp.fail(err)
			}
		}
	}

	if err := pp.advance(); err != nil {
		return nil, pp.fail(err)
	}

	return args, nil
}

// pathPattern compiles a dotted path into its structural shape: a single
// segment is a token literal; segments chain into nested member expressions,
// left-associatively, so a.b.c becomes member(member(a, b), c).
func pathPattern(path []string) Node {
	current := Node(&Literal{Token: path[0]})

	for _, segment := range path[1:] {
		current = &Literal{
			Kind:     kindMember,
			Children: Sequence{current, &Literal{Token: segment}},
		}
	}

	return current
}

func pathString(path []string) string {
	joined := path[0]

	for _, segment := range path[1:] {
		joined += "." + segment
	}

	return joined
}

// String renders a sequence for debugging.
func (s Sequence) String() string {
	rendered := ""

	for idx, item := range s {
		if idx > 0 {
			rendered += " "
		}

		rendered += fmt.Sprintf("%v", item)
	}

	return rendered
}
