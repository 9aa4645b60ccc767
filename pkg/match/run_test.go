package match //nolint:testpackage // Tests need access to internal types.

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sumatoshi-tech/treelint/pkg/pattern"
	"github.com/Sumatoshi-tech/treelint/pkg/syntax"
)

const stepRunRuleSrc = `
rule no-db-select-in-step-run {
  severity error
  languages javascript, typescript, tsx
  match ` + "`step.run($_name, $callback)`" + ` or ` + "`step.run($callback)`" + `
  where $callback contains ` + "`db.select($...cols)`" + ` as $select
  report $select "Move the db.select call out of step.run."
}
`

const nullUnionRuleSrc = `
rule prefer-undefined-over-null {
  severity warning
  languages typescript, tsx
  match ` + "`(union_type $...before null $...after)`" + ` as $union
  report $union "Prefer undefined over null in type annotations."
}
`

func compileRule(t *testing.T, src string) *pattern.RuleSpec {
	t.Helper()

	rules, failures := pattern.Compile(src, "test.tlq")
	if len(failures) != 0 {
		t.Fatalf("rule compile failures: %v", failures)
	}

	if len(rules) != 1 {
		t.Fatalf("rule count = %d, want 1", len(rules))
	}

	return rules[0]
}

// memberCall builds obj.method(args...) the way the javascript grammar
// shapes it: call_expression(member_expression(identifier, property_identifier),
// arguments(...)).
func memberCall(obj, method string, startOff, endOff uint, args ...*syntax.Node) *syntax.Node {
	objEnd := startOff + uint(len(obj))
	methodEnd := objEnd + 1 + uint(len(method))

	return tnode("call_expression", "", startOff, endOff,
		tnode("member_expression", "", startOff, methodEnd,
			tnode("identifier", obj, startOff, objEnd),
			tnode("property_identifier", method, objEnd+1, methodEnd)),
		tnode("arguments", "", methodEnd, endOff, args...))
}

// stepRunSite builds step.run("x", async () => { <body> }) rooted in an
// expression_statement, mirroring the named-children-only shape the parser
// emits: the string argument keeps its string_fragment child, the arrow
// function keeps formal_parameters and statement_block.
func stepRunSite(startOff uint, body ...*syntax.Node) *syntax.Node {
	strArg := tnode("string", "", startOff+9, startOff+12,
		tnode("string_fragment", "x", startOff+10, startOff+11))

	arrow := tnode("arrow_function", "", startOff+14, startOff+44,
		tnode("formal_parameters", "", startOff+20, startOff+22),
		tnode("statement_block", "", startOff+26, startOff+44, body...))

	return tnode("expression_statement", "", startOff, startOff+45,
		memberCall("step", "run", startOff, startOff+45, strArg, arrow))
}

func TestRunReportsDBSelectInsideStepRun(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, stepRunRuleSrc)

	selectCall := memberCall("db", "select", 28, 41, tnode("identifier", "a", 38, 39))
	site := stepRunSite(0, tnode("expression_statement", "", 28, 42, selectCall))
	tree := tnode("program", "", 0, 46, site)

	found, err := Run(context.Background(), spec, tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 1 {
		t.Fatalf("findings = %d, want exactly 1: %+v", len(found), found)
	}

	got := found[0]

	if got.Rule != "no-db-select-in-step-run" {
		t.Errorf("Rule = %q", got.Rule)
	}

	if got.Span != selectCall.Span {
		t.Errorf("Span = %+v, want the db.select call span %+v", got.Span, selectCall.Span)
	}

	if got.Message != "Move the db.select call out of step.run." {
		t.Errorf("Message = %q", got.Message)
	}
}

func TestRunCleanStepRunReportsNothing(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, stepRunRuleSrc)

	// The callback logs instead of querying.
	logCall := memberCall("console", "log", 28, 42, tnode("identifier", "a", 40, 41))
	site := stepRunSite(0, tnode("expression_statement", "", 28, 43, logCall))
	tree := tnode("program", "", 0, 46, site)

	found, err := Run(context.Background(), spec, tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 0 {
		t.Errorf("findings = %+v, want none", found)
	}
}

func TestRunSingleArgumentAlternative(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, stepRunRuleSrc)

	// step.run(async () => { db.select(); }) — one argument, second branch.
	selectCall := memberCall("db", "select", 20, 31)
	arrow := tnode("arrow_function", "", 9, 34,
		tnode("formal_parameters", "", 9, 11),
		tnode("statement_block", "", 15, 34,
			tnode("expression_statement", "", 20, 32, selectCall)))
	tree := tnode("program", "", 0, 36,
		tnode("expression_statement", "", 0, 35,
			memberCall("step", "run", 0, 35, arrow)))

	found, err := Run(context.Background(), spec, tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 1 {
		t.Fatalf("findings = %d, want 1", len(found))
	}

	if found[0].Span != selectCall.Span {
		t.Errorf("Span = %+v, want %+v", found[0].Span, selectCall.Span)
	}
}

func TestRunContainsReachesNestedClosures(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, stepRunRuleSrc)

	// db.select buried three closures deep inside the callback.
	selectCall := memberCall("db", "select", 60, 73)

	inner := selectCall
	for depth := range 3 {
		off := 45 - uint(depth)*10
		inner = tnode("arrow_function", "", off, 76,
			tnode("formal_parameters", "", off, off+2),
			tnode("statement_block", "", off+3, 76,
				tnode("expression_statement", "", off+4, 75, inner)))
	}

	callback := tnode("arrow_function", "", 9, 78,
		tnode("formal_parameters", "", 9, 11),
		tnode("statement_block", "", 15, 78,
			tnode("return_statement", "", 20, 77, inner)))

	tree := tnode("program", "", 0, 80,
		tnode("expression_statement", "", 0, 80,
			memberCall("step", "run", 0, 79, callback)))

	found, err := Run(context.Background(), spec, tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 1 {
		t.Fatalf("findings = %d, want 1", len(found))
	}

	if found[0].Span != selectCall.Span {
		t.Errorf("Span = %+v, want the innermost call %+v", found[0].Span, selectCall.Span)
	}
}

func TestRunTwoSitesReportInDocumentOrder(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, stepRunRuleSrc)

	firstSelect := memberCall("db", "select", 28, 41)
	secondSelect := memberCall("db", "select", 128, 141)

	tree := tnode("program", "", 0, 150,
		stepRunSite(0, tnode("expression_statement", "", 28, 42, firstSelect)),
		stepRunSite(100, tnode("expression_statement", "", 128, 142, secondSelect)))

	found, err := Run(context.Background(), spec, tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 2 {
		t.Fatalf("findings = %d, want 2", len(found))
	}

	if found[0].Span != firstSelect.Span || found[1].Span != secondSelect.Span {
		t.Errorf("findings out of document order: %+v", found)
	}
}

// typeAlias builds `type T = <rhs>` in typescript grammar shape.
func typeAlias(rhs *syntax.Node) *syntax.Node {
	return tnode("program", "", 0, 30,
		tnode("type_alias_declaration", "", 0, 28,
			tnode("type_identifier", "T", 5, 6),
			rhs))
}

func TestRunFlagsNullInUnionType(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, nullUnionRuleSrc)

	union := tnode("union_type", "", 9, 22,
		tnode("predefined_type", "string", 9, 15),
		tnode("literal_type", "", 18, 22, tnode("null", "null", 18, 22)))

	found, err := Run(context.Background(), spec, typeAlias(union))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 1 {
		t.Fatalf("findings = %d, want 1", len(found))
	}

	got := found[0]

	if got.Rule != "prefer-undefined-over-null" {
		t.Errorf("Rule = %q", got.Rule)
	}

	if got.Span != union.Span {
		t.Errorf("Span = %+v, want the union span %+v", got.Span, union.Span)
	}
}

func TestRunIgnoresUndefinedUnion(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, nullUnionRuleSrc)

	union := tnode("union_type", "", 9, 27,
		tnode("predefined_type", "string", 9, 15),
		tnode("literal_type", "", 18, 27, tnode("undefined", "undefined", 18, 27)))

	found, err := Run(context.Background(), spec, typeAlias(union))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 0 {
		t.Errorf("findings = %+v, want none for undefined", found)
	}
}

func TestRunNestedUnionReportsOnce(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, nullUnionRuleSrc)

	// a | b | null parses left-nested: union_type(union_type(a, b), null).
	// Only the outer union has null among its direct children.
	inner := tnode("union_type", "", 9, 14,
		tnode("type_identifier", "a", 9, 10),
		tnode("type_identifier", "b", 13, 14))
	outer := tnode("union_type", "", 9, 21,
		inner,
		tnode("literal_type", "", 17, 21, tnode("null", "null", 17, 21)))

	found, err := Run(context.Background(), spec, typeAlias(outer))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 1 {
		t.Fatalf("findings = %d, want exactly 1", len(found))
	}

	if found[0].Span != outer.Span {
		t.Errorf("Span = %+v, want the outer union %+v", found[0].Span, outer.Span)
	}
}

func TestRunDeterministic(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, stepRunRuleSrc)

	tree := tnode("program", "", 0, 150,
		stepRunSite(0, tnode("expression_statement", "", 28, 42,
			memberCall("db", "select", 28, 41))),
		stepRunSite(100, tnode("expression_statement", "", 128, 142,
			memberCall("db", "select", 128, 141))))

	first, err := Run(context.Background(), spec, tree)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}

	second, err := Run(context.Background(), spec, tree)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("run lengths differ: %d vs %d", len(first), len(second))
	}

	for idx := range first {
		if first[idx] != second[idx] {
			t.Errorf("finding %d differs between runs: %+v vs %+v", idx, first[idx], second[idx])
		}
	}
}

// wideTree builds a tree with enough nodes to cross the poll interval.
func wideTree(t *testing.T) *syntax.Node {
	t.Helper()

	kids := make([]*syntax.Node, 0, pollInterval+64)
	for idx := range pollInterval + 64 {
		off := uint(idx * 2)
		kids = append(kids, tnode("expression_statement", "", off, off+1))
	}

	return tnode("program", "", 0, uint(len(kids)*2), kids...)
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, stepRunRuleSrc)
	tree := wideTree(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := Run(ctx, spec, tree)
	if err == nil {
		t.Fatal("Run with expired deadline returned nil error")
	}

	if !errors.Is(err, ErrMatchTimeout) {
		t.Errorf("err = %v, want ErrMatchTimeout", err)
	}
}

func TestRunCancellationIsNotATimeout(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, stepRunRuleSrc)
	tree := wideTree(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, spec, tree)
	if err == nil {
		t.Fatal("Run with canceled context returned nil error")
	}

	if errors.Is(err, ErrMatchTimeout) {
		t.Errorf("err = %v, cancellation must not read as a rule timeout", err)
	}

	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want wrapped context.Canceled", err)
	}
}

func TestRunEmptyRunReportSkipped(t *testing.T) {
	t.Parallel()

	// Reporting a variadic that absorbed nothing has no span to point at;
	// the action is skipped rather than panicking downstream.
	src := "rule empty-args {\n match `db.select($...cols)` as $call\n" +
		" report $cols \"args\"\n report $call \"call\"\n}"
	spec := compileRule(t, src)

	call := memberCall("db", "select", 0, 11)
	tree := tnode("program", "", 0, 12, tnode("expression_statement", "", 0, 12, call))

	found, err := Run(context.Background(), spec, tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 1 {
		t.Fatalf("findings = %d, want only the call report", len(found))
	}

	if found[0].Span != call.Span {
		t.Errorf("Span = %+v, want the call span", found[0].Span)
	}
}

func TestRunWhereMatchesOperator(t *testing.T) {
	t.Parallel()

	// matches anchors at the capture's root: an arrow callback passes, an
	// identifier callback does not, even when an arrow sits beneath it.
	src := "rule arrow-callback {\n match `step.run($callback)`\n" +
		" where $callback matches `(arrow_function)`\n report $callback \"m\"\n}"
	spec := compileRule(t, src)

	arrow := tnode("arrow_function", "", 9, 30,
		tnode("formal_parameters", "", 9, 11),
		tnode("statement_block", "", 15, 30))

	matching := tnode("program", "", 0, 32,
		tnode("expression_statement", "", 0, 31, memberCall("step", "run", 0, 31, arrow)))

	found, err := Run(context.Background(), spec, matching)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 1 {
		t.Fatalf("findings = %d, want 1 for arrow callback", len(found))
	}

	ident := tnode("identifier", "handler", 9, 16)
	nonMatching := tnode("program", "", 0, 20,
		tnode("expression_statement", "", 0, 18, memberCall("step", "run", 0, 18, ident)))

	found, err = Run(context.Background(), spec, nonMatching)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 0 {
		t.Errorf("findings = %+v, want none for identifier callback", found)
	}
}

func TestRunNilTree(t *testing.T) {
	t.Parallel()

	spec := compileRule(t, stepRunRuleSrc)

	found, err := Run(context.Background(), spec, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if found != nil {
		t.Errorf("findings = %+v, want nil", found)
	}
}

func TestRunRootKindGateStillDescends(t *testing.T) {
	t.Parallel()

	// The gate skips non-candidate kinds without pruning their subtrees: a
	// union_type nested under non-union wrappers is still found.
	spec := compileRule(t, nullUnionRuleSrc)

	union := tnode("union_type", "", 20, 33,
		tnode("predefined_type", "string", 20, 26),
		tnode("literal_type", "", 29, 33, tnode("null", "null", 29, 33)))

	tree := tnode("program", "", 0, 40,
		tnode("interface_declaration", "", 0, 38,
			tnode("type_identifier", "I", 10, 11),
			tnode("interface_body", "", 12, 38,
				tnode("property_signature", "", 14, 34,
					tnode("property_identifier", "v", 14, 15),
					tnode("type_annotation", "", 16, 34, union)))))

	found, err := Run(context.Background(), spec, tree)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(found) != 1 {
		t.Fatalf("findings = %d, want 1", len(found))
	}
}
