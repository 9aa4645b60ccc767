package pattern

import (
	"fmt"
	"strconv"
	"strings"
)

// tokenType enumerates the lexical token classes of the rule language.
type tokenType uint8

const (
	tokEOF tokenType = iota
	tokIdent
	tokString   // double-quoted, escapes resolved
	tokPatLit   // backtick-delimited pattern literal, delimiters stripped
	tokCapture  // $name
	tokVariadic // $...name or $...
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokComma
	tokDot
)

// token is one lexical token with its source line for error reporting.
type token struct {
	typ  tokenType
	text string
	line int
}

// lexer is a hand-rolled scanner over rule-language source. The same scanner
// serves rule files and the inside of backtick pattern literals.
type lexer struct {
	src  string
	pos  int
	line int
}

func newLexer(src string, startLine int) *lexer {
	return &lexer{src: src, line: startLine}
}

// next returns the following token, skipping whitespace and # comments.
func (lx *lexer) next() (token, error) {
	lx.skipSpace()

	if lx.pos >= len(lx.src) {
		return token{typ: tokEOF, line: lx.line}, nil
	}

	ch := lx.src[lx.pos]

	switch {
	case ch == '{':
		return lx.single(tokLBrace), nil
	case ch == '}':
		return lx.single(tokRBrace), nil
	case ch == '(':
		return lx.single(tokLParen), nil
	case ch == ')':
		return lx.single(tokRParen), nil
	case ch == ',':
		return lx.single(tokComma), nil
	case ch == '.':
		return lx.single(tokDot), nil
	case ch == '`':
		return lx.patLit()
	case ch == '"':
		return lx.stringLit()
	case ch == '$':
		return lx.capture()
	case isIdentStart(ch):
		return lx.ident(), nil
	default:
		return token{}, fmt.Errorf("line %d: unexpected character %q", lx.line, ch)
	}
}

func (lx *lexer) single(typ tokenType) token {
	tok := token{typ: typ, text: lx.src[lx.pos : lx.pos+1], line: lx.line}
	lx.pos++

	return tok
}

func (lx *lexer) skipSpace() {
	for lx.pos < len(lx.src) {
		ch := lx.src[lx.pos]

		switch {
		case ch == '\n':
			lx.line++
			lx.pos++
		case ch == ' ' || ch == '\t' || ch == '\r':
			lx.pos++
		case ch == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		default:
			return
		}
	}
}

// patLit consumes a backtick-delimited pattern literal. Newlines are allowed
// inside; the literal text is returned without the delimiters.
func (lx *lexer) patLit() (token, error) {
	startLine := lx.line
	lx.pos++ // opening backtick

	start := lx.pos

	for lx.pos < len(lx.src) {
		ch := lx.src[lx.pos]
		if ch == '`' {
			tok := token{typ: tokPatLit, text: lx.src[start:lx.pos], line: startLine}
			lx.pos++

			return tok, nil
		}

		if ch == '\n' {
			lx.line++
		}

		lx.pos++
	}

	return token{}, fmt.Errorf("line %d: unterminated pattern literal", startLine)
}

// stringLit consumes a double-quoted string and resolves escapes.
func (lx *lexer) stringLit() (token, error) {
	startLine := lx.line
	start := lx.pos
	lx.pos++ // opening quote

	for lx.pos < len(lx.src) {
		ch := lx.src[lx.pos]

		switch ch {
		case '\\':
			lx.pos += 2

			continue
		case '"':
			lx.pos++

			raw := lx.src[start:lx.pos]

			unquoted, err := strconv.Unquote(raw)
			if err != nil {
				return token{}, fmt.Errorf("line %d: bad string literal %s: %w", startLine, raw, err)
			}

			return token{typ: tokString, text: unquoted, line: startLine}, nil
		case '\n':
			return token{}, fmt.Errorf("line %d: unterminated string literal", startLine)
		default:
			lx.pos++
		}
	}

	return token{}, fmt.Errorf("line %d: unterminated string literal", startLine)
}

// capture consumes $name, $_name, $...name or $... forms.
func (lx *lexer) capture() (token, error) {
	startLine := lx.line
	lx.pos++ // $

	if strings.HasPrefix(lx.src[lx.pos:], "...") {
		lx.pos += len("...")
		name := lx.identText()

		return token{typ: tokVariadic, text: name, line: startLine}, nil
	}

	name := lx.identText()
	if name == "" {
		return token{}, fmt.Errorf("line %d: capture name expected after $", startLine)
	}

	return token{typ: tokCapture, text: name, line: startLine}, nil
}

func (lx *lexer) ident() token {
	startLine := lx.line

	return token{typ: tokIdent, text: lx.identText(), line: startLine}
}

// identText consumes an identifier run. Hyphens are allowed inside so rule
// names like no-db-select-in-step-run lex as one token.
func (lx *lexer) identText() string {
	start := lx.pos

	for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
		lx.pos++
	}

	return lx.src[start:lx.pos]
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch == '-' || (ch >= '0' && ch <= '9')
}
