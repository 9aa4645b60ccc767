package pattern

import (
	"strings"

	"github.com/Sumatoshi-tech/treelint/pkg/diag"
)

// Compile parses rule-language source and returns every rule that compiled,
// in declaration order, plus one CompileError per rule that did not. A bad
// rule never prevents its siblings from loading.
func Compile(source, label string) ([]*RuleSpec, []*CompileError) {
	p := &parser{lx: newLexer(source, 1), file: label}

	if err := p.advance(); err != nil {
		return nil, []*CompileError{p.lexError(err)}
	}

	return p.parseFile()
}

// parser consumes the token stream produced by the lexer. It keeps one token
// of lookahead, which the grammar is designed to need at most.
type parser struct {
	lx        *lexer
	tok       token
	file      string
	fileLangs []string
}

func (p *parser) advance() error {
	tok, err := p.lx.next()
	if err != nil {
		return err
	}

	p.tok = tok

	return nil
}

func (p *parser) lexError(err error) *CompileError {
	return &CompileError{File: p.file, Line: p.lx.line, Err: wrapMalformed(err)}
}

func wrapMalformed(err error) error {
	return &wrappedSyntaxError{cause: err}
}

// wrappedSyntaxError ties arbitrary scan/parse failures to the
// ErrMalformedSyntax sentinel.
type wrappedSyntaxError struct {
	cause error
}

func (w *wrappedSyntaxError) Error() string {
	return ErrMalformedSyntax.Error() + ": " + w.cause.Error()
}

func (w *wrappedSyntaxError) Unwrap() error {
	return ErrMalformedSyntax
}

func (p *parser) parseFile() ([]*RuleSpec, []*CompileError) {
	var (
		rules    []*RuleSpec
		failures []*CompileError
	)

	for p.tok.typ != tokEOF {
		switch {
		case p.tok.typ == tokIdent && p.tok.text == "language":
			if err := p.parseFileLanguages(); err != nil {
				failures = append(failures, err)
				p.skipToNextDecl()
			}
		case p.tok.typ == tokIdent && p.tok.text == "rule":
			rule, err := p.parseRule()
			if err != nil {
				failures = append(failures, err)
			} else {
				rules = append(rules, rule)
			}
		default:
			failures = append(failures, compileErrorf(p.file, p.tok.line, "", ErrMalformedSyntax,
				"expected rule or language declaration, got %q", p.tok.text))
			p.skipToNextDecl()
		}
	}

	return rules, failures
}

// parseFileLanguages handles a file-level `language a, b` default.
func (p *parser) parseFileLanguages() *CompileError {
	langs, err := p.parseLanguageList()
	if err != nil {
		return err
	}

	p.fileLangs = langs

	return nil
}

func (p *parser) parseLanguageList() ([]string, *CompileError) {
	if err := p.advance(); err != nil {
		return nil, p.lexError(err)
	}

	var langs []string

	for {
		if p.tok.typ != tokIdent {
			return nil, compileErrorf(p.file, p.tok.line, "", ErrMalformedSyntax,
				"expected language name, got %q", p.tok.text)
		}

		langs = append(langs, strings.ToLower(p.tok.text))

		if err := p.advance(); err != nil {
			return nil, p.lexError(err)
		}

		if p.tok.typ != tokComma {
			return langs, nil
		}

		if err := p.advance(); err != nil {
			return nil, p.lexError(err)
		}
	}
}

// skipToNextDecl recovers from a malformed declaration by discarding tokens
// until the next top-level `rule` or `language` keyword, balancing braces so
// keywords inside a broken rule body do not end the skip early.
func (p *parser) skipToNextDecl() {
	depth := 0

	for p.tok.typ != tokEOF {
		switch p.tok.typ {
		case tokLBrace:
			depth++
		case tokRBrace:
			if depth > 0 {
				depth--
			}
		case tokIdent:
			if depth == 0 && (p.tok.text == "rule" || p.tok.text == "language") {
				return
			}
		default:
		}

		if err := p.advance(); err != nil {
			p.tok = token{typ: tokEOF, line: p.lx.line}

			return
		}
	}
}

// ruleBuilder accumulates one rule's statements before validation.
type ruleBuilder struct {
	name        string
	line        int
	description string
	languages   []string
	severity    diag.Severity
	branches    []Branch
	where       []Condition
	reports     []Report
}

func (p *parser) parseRule() (*RuleSpec, *CompileError) {
	ruleLine := p.tok.line

	if err := p.advance(); err != nil {
		return nil, p.lexError(err)
	}

	if p.tok.typ != tokIdent {
		p.skipToNextDecl()

		return nil, compileErrorf(p.file, ruleLine, "", ErrMalformedSyntax, "rule name expected")
	}

	rb := &ruleBuilder{name: p.tok.text, line: ruleLine, severity: diag.SeverityWarning}

	if err := p.advance(); err != nil {
		return nil, p.lexError(err)
	}

	if p.tok.typ != tokLBrace {
		p.skipToNextDecl()

		return nil, compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax, "expected { after rule name")
	}

	if err := p.advance(); err != nil {
		return nil, p.lexError(err)
	}

	if cerr := p.parseRuleBody(rb); cerr != nil {
		p.skipRuleBody()

		return nil, cerr
	}

	return p.finishRule(rb)
}

// skipRuleBody discards tokens until the current rule's closing brace.
// The opening brace has already been consumed when this is called.
func (p *parser) skipRuleBody() {
	depth := 1

	for p.tok.typ != tokEOF && depth > 0 {
		switch p.tok.typ {
		case tokLBrace:
			depth++
		case tokRBrace:
			depth--
		default:
		}

		if err := p.advance(); err != nil {
			p.tok = token{typ: tokEOF, line: p.lx.line}

			return
		}
	}
}

func (p *parser) parseRuleBody(rb *ruleBuilder) *CompileError {
	for p.tok.typ != tokRBrace {
		if p.tok.typ == tokEOF {
			return compileErrorf(p.file, rb.line, rb.name, ErrMalformedSyntax, "unterminated rule body")
		}

		if p.tok.typ != tokIdent {
			return compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax,
				"expected statement keyword, got %q", p.tok.text)
		}

		var cerr *CompileError

		switch p.tok.text {
		case "severity":
			cerr = p.parseSeverity(rb)
		case "description":
			cerr = p.parseDescription(rb)
		case "languages":
			cerr = p.parseRuleLanguages(rb)
		case "match":
			cerr = p.parseMatch(rb)
		case "where":
			cerr = p.parseWhere(rb)
		case "report":
			cerr = p.parseReport(rb)
		default:
			cerr = compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax,
				"unknown statement %q", p.tok.text)
		}

		if cerr != nil {
			return cerr
		}
	}

	// Consume the closing brace.
	if err := p.advance(); err != nil {
		return p.lexError(err)
	}

	return nil
}

func (p *parser) parseSeverity(rb *ruleBuilder) *CompileError {
	if err := p.advance(); err != nil {
		return p.lexError(err)
	}

	if p.tok.typ != tokIdent {
		return compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax, "severity name expected")
	}

	sev, err := diag.ParseSeverity(p.tok.text)
	if err != nil {
		return compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax, "unknown severity %q", p.tok.text)
	}

	rb.severity = sev

	return p.advanceOr(rb)
}

func (p *parser) parseDescription(rb *ruleBuilder) *CompileError {
	if err := p.advance(); err != nil {
		return p.lexError(err)
	}

	if p.tok.typ != tokString {
		return compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax, "description string expected")
	}

	rb.description = p.tok.text

	return p.advanceOr(rb)
}

func (p *parser) parseRuleLanguages(rb *ruleBuilder) *CompileError {
	langs, cerr := p.parseLanguageList()
	if cerr != nil {
		cerr.Rule = rb.name

		return cerr
	}

	rb.languages = langs

	return nil
}

func (p *parser) parseMatch(rb *ruleBuilder) *CompileError {
	for {
		if err := p.advance(); err != nil {
			return p.lexError(err)
		}

		branch, cerr := p.parseBranch(rb)
		if cerr != nil {
			return cerr
		}

		rb.branches = append(rb.branches, branch)

		if p.tok.typ != tokIdent || p.tok.text != "or" {
			return nil
		}
	}
}

func (p *parser) parseBranch(rb *ruleBuilder) (Branch, *CompileError) {
	if p.tok.typ != tokPatLit {
		return Branch{}, compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax,
			"pattern literal expected after match")
	}

	pat, cerr := p.parsePatternLiteral(rb.name, p.tok.text, p.tok.line)
	if cerr != nil {
		return Branch{}, cerr
	}

	if err := p.advance(); err != nil {
		return Branch{}, p.lexError(err)
	}

	as, cerr := p.parseOptionalAs(rb)
	if cerr != nil {
		return Branch{}, cerr
	}

	return Branch{Pattern: pat, As: as}, nil
}

// parseOptionalAs consumes `as $name` when present, returning the name.
func (p *parser) parseOptionalAs(rb *ruleBuilder) (string, *CompileError) {
	if p.tok.typ != tokIdent || p.tok.text != "as" {
		return "", nil
	}

	if err := p.advance(); err != nil {
		return "", p.lexError(err)
	}

	if p.tok.typ != tokCapture {
		return "", compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax, "capture expected after as")
	}

	name := p.tok.text

	if err := p.advance(); err != nil {
		return "", p.lexError(err)
	}

	return name, nil
}

func (p *parser) parseWhere(rb *ruleBuilder) *CompileError {
	if err := p.advance(); err != nil {
		return p.lexError(err)
	}

	if p.tok.typ != tokCapture {
		return compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax, "capture expected after where")
	}

	cond := Condition{Capture: p.tok.text}

	if err := p.advance(); err != nil {
		return p.lexError(err)
	}

	if p.tok.typ != tokIdent || (p.tok.text != "contains" && p.tok.text != "matches") {
		return compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax,
			"contains or matches expected in where clause")
	}

	if p.tok.text == "matches" {
		cond.Op = CondMatches
	} else {
		cond.Op = CondContains
	}

	if err := p.advance(); err != nil {
		return p.lexError(err)
	}

	if p.tok.typ != tokPatLit {
		return compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax,
			"pattern literal expected in where clause")
	}

	sub, cerr := p.parsePatternLiteral(rb.name, p.tok.text, p.tok.line)
	if cerr != nil {
		return cerr
	}

	cond.Sub = sub

	if err := p.advance(); err != nil {
		return p.lexError(err)
	}

	if cond.Op == CondContains {
		as, asErr := p.parseOptionalAs(rb)
		if asErr != nil {
			return asErr
		}

		cond.As = as
	}

	rb.where = append(rb.where, cond)

	return nil
}

func (p *parser) parseReport(rb *ruleBuilder) *CompileError {
	if err := p.advance(); err != nil {
		return p.lexError(err)
	}

	if p.tok.typ != tokCapture {
		return compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax, "capture expected after report")
	}

	rep := Report{Capture: p.tok.text}

	if err := p.advance(); err != nil {
		return p.lexError(err)
	}

	if p.tok.typ != tokString {
		return compileErrorf(p.file, p.tok.line, rb.name, ErrMalformedSyntax, "message string expected in report")
	}

	rep.Message = p.tok.text
	rb.reports = append(rb.reports, rep)

	return p.advanceOr(rb)
}

// advanceOr wraps advance into the CompileError shape statement parsers use.
func (p *parser) advanceOr(_ *ruleBuilder) *CompileError {
	if err := p.advance(); err != nil {
		return p.lexError(err)
	}

	return nil
}

// finishRule checks structural completeness, applies file-level language
// defaults, and runs capture validation.
func (p *parser) finishRule(rb *ruleBuilder) (*RuleSpec, *CompileError) {
	if len(rb.branches) == 0 {
		return nil, compileErrorf(p.file, rb.line, rb.name, ErrIncompleteRule, "no match pattern")
	}

	if len(rb.reports) == 0 {
		return nil, compileErrorf(p.file, rb.line, rb.name, ErrIncompleteRule, "no report action")
	}

	langs := rb.languages
	if langs == nil && p.fileLangs != nil {
		langs = make([]string, len(p.fileLangs))
		copy(langs, p.fileLangs)
	}

	spec := &RuleSpec{
		Name:        rb.name,
		Description: rb.description,
		Languages:   langs,
		Severity:    rb.severity,
		Program: &Program{
			Branches: rb.branches,
			Where:    rb.where,
			Reports:  rb.reports,
		},
	}

	if cerr := validateRule(spec, p.file, rb.line); cerr != nil {
		return nil, cerr
	}

	return spec, nil
}
