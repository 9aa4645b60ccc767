package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/treelint/pkg/diag"
	"github.com/Sumatoshi-tech/treelint/pkg/pattern"
	"github.com/Sumatoshi-tech/treelint/pkg/syntax"
)

// ErrMatchTimeout reports that a rule's context expired while it was
// scanning a tree. Engines surface it as a per-rule problem; findings of
// other rules are unaffected.
var ErrMatchTimeout = errors.New("match deadline exceeded")

// pollInterval is the number of candidate nodes scanned between context
// checks. Checking every node would dominate the scan loop.
const pollInterval = 256

// Run evaluates one compiled rule against a tree and returns its findings
// in document order of the matched sites.
//
// Every node is a match candidate, filtered through the program's root-kind
// gate when it has one; a match at a node never stops the scan from
// descending into that node, so independent sites inside each other all
// report. Run checks ctx every pollInterval candidates; an expired deadline
// aborts with ErrMatchTimeout, a canceled context aborts with the
// cancellation cause unwrapped.
func Run(ctx context.Context, spec *pattern.RuleSpec, tree *syntax.Node) ([]diag.Diagnostic, error) {
	if tree == nil {
		return nil, nil
	}

	exec := executor{spec: spec, gate: spec.Program.RootKinds()}

	var (
		found   []diag.Diagnostic
		scanned int
	)

	stack := []*syntax.Node{tree}

	for len(stack) > 0 {
		scanned++
		if scanned%pollInterval == 0 {
			if err := ctx.Err(); err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return nil, fmt.Errorf("%w after %d nodes", ErrMatchTimeout, scanned)
				}

				// Caller-initiated cancellation is not a rule timeout.
				return nil, fmt.Errorf("match aborted after %d nodes: %w", scanned, err)
			}
		}

		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if exec.admits(curr) {
			found = exec.runAt(curr, found)
		}

		for idx := len(curr.Children) - 1; idx >= 0; idx-- {
			stack = append(stack, curr.Children[idx])
		}
	}

	return found, nil
}

// executor applies one program to candidate nodes, reusing its env across
// candidates to keep the scan allocation-free on the no-match path.
type executor struct {
	spec *pattern.RuleSpec
	gate map[string]struct{}
	env  env
}

// admits applies the root-kind gate. A nil gate admits every node.
func (x *executor) admits(node *syntax.Node) bool {
	if x.gate == nil {
		return true
	}

	_, ok := x.gate[node.Kind]

	return ok
}

// runAt tries the program's alternatives at one candidate, strictly in
// order. An alternative succeeds only if its pattern matches and the whole
// where chain holds; a failed alternative's bindings are discarded and the
// next one starts clean. The first success fires the report actions, so one
// site never reports twice however many alternatives could cover it.
func (x *executor) runAt(candidate *syntax.Node, found []diag.Diagnostic) []diag.Diagnostic {
	prog := x.spec.Program

	for _, branch := range prog.Branches {
		x.env.reset()

		if !matchPattern(branch.Pattern, candidate, &x.env) {
			continue
		}

		if branch.As != "" && !x.env.bindNode(branch.As, candidate) {
			continue
		}

		if !x.conditionsHold(prog.Where) {
			continue
		}

		return x.report(found)
	}

	return found
}

// conditionsHold evaluates the where chain as a short-circuit conjunction.
// Bindings a condition makes (its as-name and sub-pattern captures) stay
// visible to later conditions and to the reports.
func (x *executor) conditionsHold(conds []pattern.Condition) bool {
	for idx := range conds {
		if !x.condition(&conds[idx]) {
			return false
		}
	}

	return true
}

// condition tests one where clause against the nodes its capture denotes: a
// single node for a plain capture, each element in order for a variadic
// run. The first element that satisfies the clause settles it.
func (x *executor) condition(cond *pattern.Condition) bool {
	bound, ok := x.env.get(cond.Capture)
	if !ok {
		// Unreachable for compiled rules; validation rejects unbound names.
		return false
	}

	targets := bound.run
	if !bound.isRun {
		targets = []*syntax.Node{bound.node}
	}

	for _, target := range targets {
		mark := x.env.mark()

		var hit bool

		switch cond.Op {
		case pattern.CondMatches:
			hit = matchPattern(cond.Sub, target, &x.env)
		case pattern.CondContains:
			hit = searchContains(cond.Sub, cond.As, target, &x.env)
		}

		if hit {
			return true
		}

		x.env.rollback(mark)
	}

	return false
}

// report resolves each report action against the bindings and appends one
// diagnostic per action. A report whose capture holds an empty variadic run
// has no source range to point at and emits nothing; the remaining actions
// of the rule still fire.
func (x *executor) report(found []diag.Diagnostic) []diag.Diagnostic {
	for _, action := range x.spec.Program.Reports {
		bound, ok := x.env.get(action.Capture)
		if !ok {
			continue
		}

		span, ok := bindingSpan(bound)
		if !ok {
			continue
		}

		found = append(found, diag.Diagnostic{
			Rule:     x.spec.Name,
			Span:     span,
			Message:  action.Message,
			Severity: x.spec.Severity,
		})
	}

	return found
}

// bindingSpan yields the source range a binding covers: the node's own span,
// or for a run the range from the first absorbed node to the last.
func bindingSpan(bound binding) (syntax.Span, bool) {
	if !bound.isRun {
		return bound.node.Span, true
	}

	if len(bound.run) == 0 {
		return syntax.Span{}, false
	}

	first := bound.run[0].Span
	last := bound.run[len(bound.run)-1].Span

	return syntax.Span{
		StartLine:   first.StartLine,
		StartCol:    first.StartCol,
		StartOffset: first.StartOffset,
		EndLine:     last.EndLine,
		EndCol:      last.EndCol,
		EndOffset:   last.EndOffset,
	}, true
}
