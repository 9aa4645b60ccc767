// Package pattern compiles declarative lint rules into executable matcher
// programs. A rule file (.tlq) declares named rules, each built from a
// structural pattern with capture holes, an optional chain of where
// conditions, and one or more report actions. Compilation validates capture
// usage up front so a rule that references an unbound capture fails loudly
// instead of silently matching nothing.
package pattern

import (
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/treelint/pkg/diag"
)

// Node is one node of a compiled pattern tree. The set of implementations is
// closed: Literal, Capture, Variadic, Contains, Alternation and the Sequence
// child lists they carry. The matcher dispatches over this sum.
type Node interface {
	// String renders the pattern in rule-language form, for error messages
	// and debugging.
	String() string

	patternNode()
}

// Sequence is an ordered, positional list of child patterns. A sequence
// matches a run of sibling nodes position by position; Variadic elements may
// absorb zero or more siblings to make the rest line up.
type Sequence []Node

// Literal matches one node structurally.
//
// Kind, when set, must equal the node's grammar kind. Token, when set, must
// equal the node's source text; token matching unwraps single-child wrapper
// chains so the pattern `null` matches `literal_type(null)`. Children, when
// non-nil, must cover the node's named children positionally — a non-nil
// empty sequence requires zero children, while nil leaves children
// unconstrained.
type Literal struct {
	Kind     string
	Token    string
	Children Sequence
}

func (l *Literal) patternNode() {}

// String renders the literal in rule-language form.
func (l *Literal) String() string {
	var buf strings.Builder

	switch {
	case l.Kind != "" && l.Children == nil && l.Token == "":
		buf.WriteByte('(')
		buf.WriteString(l.Kind)
		buf.WriteByte(')')
	case l.Kind != "":
		buf.WriteByte('(')
		buf.WriteString(l.Kind)

		if l.Token != "" {
			buf.WriteByte(' ')
			buf.WriteString(l.Token)
		}

		for _, child := range l.Children {
			buf.WriteByte(' ')
			buf.WriteString(child.String())
		}

		buf.WriteByte(')')
	default:
		buf.WriteString(l.Token)
	}

	return buf.String()
}

// Capture matches any single node and binds it under Name. Names beginning
// with an underscore are wildcards: they match and discard.
type Capture struct {
	Name string
}

func (c *Capture) patternNode() {}

// Discards reports whether the capture drops its match instead of binding it.
func (c *Capture) Discards() bool {
	return strings.HasPrefix(c.Name, "_")
}

// String renders the capture in rule-language form.
func (c *Capture) String() string {
	return "$" + c.Name
}

// Variadic matches zero or more sibling nodes inside a Sequence. A named
// variadic binds the ordered run it absorbed; an anonymous one (empty Name)
// discards it.
type Variadic struct {
	Name string
}

func (v *Variadic) patternNode() {}

// String renders the variadic in rule-language form.
func (v *Variadic) String() string {
	return "$..." + v.Name
}

// Contains matches a node if Sub matches the node itself or any descendant,
// searched in pre-order; the first hit wins. As, when set, binds the hit.
type Contains struct {
	Sub Node
	As  string
}

func (c *Contains) patternNode() {}

// String renders the contains combinator in rule-language form.
func (c *Contains) String() string {
	rendered := "contains " + c.Sub.String()
	if c.As != "" {
		rendered += " as $" + c.As
	}

	return rendered
}

// Alternation tries Branches strictly in order and commits to the first that
// matches. Bindings made by a failed branch are discarded entirely.
type Alternation struct {
	Branches []Node
}

func (a *Alternation) patternNode() {}

// String renders the alternation in rule-language form.
func (a *Alternation) String() string {
	parts := make([]string, 0, len(a.Branches))

	for _, branch := range a.Branches {
		parts = append(parts, branch.String())
	}

	return strings.Join(parts, " or ")
}

// CondOp selects how a where clause tests its capture.
type CondOp uint8

const (
	// CondContains searches the capture's subtree for the sub-pattern.
	CondContains CondOp = iota

	// CondMatches matches the sub-pattern against the capture's root only.
	CondMatches
)

// Condition is one where clause: a predicate over a previously bound
// capture. For CondContains, As optionally binds the found descendant for
// later clauses and reports.
type Condition struct {
	Capture string
	Op      CondOp
	Sub     Node
	As      string
}

// String renders the condition in rule-language form.
func (c Condition) String() string {
	op := "contains"
	if c.Op == CondMatches {
		op = "matches"
	}

	rendered := "$" + c.Capture + " " + op + " `" + c.Sub.String() + "`"
	if c.As != "" {
		rendered += " as $" + c.As
	}

	return rendered
}

// Report is a terminal registration action: always succeeds, resolves
// Capture against the accumulated bindings, and yields one diagnostic
// spanning the bound node.
type Report struct {
	Capture string
	Message string
}

// String renders the report action in rule-language form.
func (r Report) String() string {
	return "report $" + r.Capture + " " + strconv.Quote(r.Message)
}

// Branch is one alternative of a rule's top-level match. As, when set, binds
// the node the branch pattern matched.
type Branch struct {
	Pattern Node
	As      string
}

// String renders the branch in rule-language form.
func (b Branch) String() string {
	rendered := "`" + b.Pattern.String() + "`"
	if b.As != "" {
		rendered += " as $" + b.As
	}

	return rendered
}

// Program is the executable form of one rule: the ordered match alternation,
// the where-condition conjunction, and the report actions. Programs are
// immutable after compilation and safe to share across concurrent matches.
type Program struct {
	Branches []Branch
	Where    []Condition
	Reports  []Report
}

// String renders the program in rule-language form. The rendering is
// canonical: two programs with the same semantics render identically, which
// is what registry fingerprints hash.
func (p *Program) String() string {
	var buf strings.Builder

	buf.WriteString("match ")

	for idx, branch := range p.Branches {
		if idx > 0 {
			buf.WriteString(" or ")
		}

		buf.WriteString(branch.String())
	}

	for _, cond := range p.Where {
		buf.WriteString(" where ")
		buf.WriteString(cond.String())
	}

	for _, rep := range p.Reports {
		buf.WriteByte(' ')
		buf.WriteString(rep.String())
	}

	return buf.String()
}

// RootKinds returns the set of node kinds the program's branches can match
// at the root, used by callers to skip candidate nodes cheaply. A nil result
// means the program cannot be gated by kind and every node is a candidate.
func (p *Program) RootKinds() map[string]struct{} {
	kinds := make(map[string]struct{}, len(p.Branches))

	for _, branch := range p.Branches {
		lit, ok := branch.Pattern.(*Literal)
		if !ok || lit.Kind == "" {
			return nil
		}

		kinds[lit.Kind] = struct{}{}
	}

	return kinds
}

// RuleSpec is one compiled rule definition.
type RuleSpec struct {
	Name        string
	Description string
	Languages   []string
	Severity    diag.Severity
	Program     *Program
}

// AppliesTo reports whether the rule runs for a language tag. A rule with no
// language list applies everywhere.
func (s *RuleSpec) AppliesTo(language string) bool {
	if len(s.Languages) == 0 {
		return true
	}

	for _, candidate := range s.Languages {
		if candidate == language {
			return true
		}
	}

	return false
}
