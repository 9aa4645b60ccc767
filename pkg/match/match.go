// Package match executes compiled rule programs against syntax trees. The
// matcher is structural: it dispatches over the closed pattern sum
// (Literal, Capture, Variadic, Contains, Alternation and the Sequence child
// lists), accumulating capture bindings on a trail that backtracking
// truncates. Nothing here mutates the tree.
package match

import (
	"github.com/Sumatoshi-tech/treelint/pkg/pattern"
	"github.com/Sumatoshi-tech/treelint/pkg/syntax"
)

// binding is one trail entry: a capture bound to a single node, or a
// variadic bound to the ordered run of siblings it absorbed.
type binding struct {
	name  string
	node  *syntax.Node
	run   []*syntax.Node
	isRun bool
}

// env holds the capture state of one match attempt. Bindings append to a
// trail; combinators record the trail length before trying a sub-match and
// truncate back to it on failure, so a failed alternative never leaks
// bindings and backtracking costs no copying.
type env struct {
	trail []binding
}

func (e *env) mark() int {
	return len(e.trail)
}

func (e *env) rollback(mark int) {
	e.trail = e.trail[:mark]
}

func (e *env) reset() {
	e.trail = e.trail[:0]
}

// get returns the binding for name, scanning newest-first. Rules bind a
// handful of names at most; a linear scan beats a map here.
func (e *env) get(name string) (binding, bool) {
	for idx := len(e.trail) - 1; idx >= 0; idx-- {
		if e.trail[idx].name == name {
			return e.trail[idx], true
		}
	}

	return binding{}, false
}

// bindNode records name -> node. Binding a name that is already bound
// succeeds only when it refers to the identical node, so programs built in
// Go with a repeated capture get equality semantics, never overwrite.
func (e *env) bindNode(name string, node *syntax.Node) bool {
	if prev, bound := e.get(name); bound {
		return !prev.isRun && prev.node == node
	}

	e.trail = append(e.trail, binding{name: name, node: node})

	return true
}

// bindRun records name -> run, with the same rebind rule as bindNode: an
// existing binding must hold the same nodes in the same order.
func (e *env) bindRun(name string, run []*syntax.Node) bool {
	prev, bound := e.get(name)
	if !bound {
		e.trail = append(e.trail, binding{name: name, run: run, isRun: true})

		return true
	}

	if !prev.isRun || len(prev.run) != len(run) {
		return false
	}

	for idx := range run {
		if prev.run[idx] != run[idx] {
			return false
		}
	}

	return true
}

// matchPattern reports whether pat matches node, extending e with captures.
// On failure, internal attempts are already undone; the caller rolls back
// its own mark to drop any partial bindings.
func matchPattern(pat pattern.Node, node *syntax.Node, e *env) bool {
	switch p := pat.(type) {
	case *pattern.Literal:
		return matchLiteral(p, node, e)
	case *pattern.Capture:
		if p.Discards() {
			return true
		}

		return e.bindNode(p.Name, node)
	case *pattern.Variadic:
		// Outside a sequence slot a variadic degenerates to a one-node run.
		if p.Name == "" {
			return true
		}

		return e.bindRun(p.Name, []*syntax.Node{node})
	case *pattern.Contains:
		return searchContains(p.Sub, p.As, node, e)
	case *pattern.Alternation:
		for _, branch := range p.Branches {
			mark := e.mark()

			if matchPattern(branch, node, e) {
				return true
			}

			e.rollback(mark)
		}

		return false
	default:
		return false
	}
}

// matchLiteral checks kind, token and children against one node. A nil
// Children sequence leaves children unconstrained; a non-nil one must cover
// the node's named children positionally, empty meaning zero children.
func matchLiteral(lit *pattern.Literal, node *syntax.Node, e *env) bool {
	if lit.Kind != "" && node.Kind != lit.Kind {
		return false
	}

	if lit.Token != "" && !tokenMatches(node, lit.Token) {
		return false
	}

	if lit.Children == nil {
		return true
	}

	return matchSequence(lit.Children, node.Children, e)
}

// tokenMatches compares want against the node's source text, descending
// through single-child wrapper chains. Grammars wrap keyword tokens in
// context nodes (`null` inside a type annotation parses as
// literal_type(null)); the unwrap makes the pattern token reach the leaf.
func tokenMatches(node *syntax.Node, want string) bool {
	for {
		if len(node.Children) == 0 {
			return node.Token == want
		}

		if len(node.Children) != 1 {
			return false
		}

		node = node.Children[0]
	}
}

// matchSequence matches a pattern sequence against a run of children,
// position by position. A variadic slot absorbs greedily and gives nodes
// back one at a time until the tail matches or nothing is left to give.
func matchSequence(seq pattern.Sequence, kids []*syntax.Node, e *env) bool {
	if len(seq) == 0 {
		return len(kids) == 0
	}

	if variadic, ok := seq[0].(*pattern.Variadic); ok {
		for take := len(kids); take >= 0; take-- {
			mark := e.mark()

			if variadic.Name != "" && !e.bindRun(variadic.Name, kids[:take]) {
				e.rollback(mark)

				continue
			}

			if matchSequence(seq[1:], kids[take:], e) {
				return true
			}

			e.rollback(mark)
		}

		return false
	}

	if len(kids) == 0 {
		return false
	}

	mark := e.mark()

	if matchPattern(seq[0], kids[0], e) && matchSequence(seq[1:], kids[1:], e) {
		return true
	}

	e.rollback(mark)

	return false
}

// searchContains finds the first node in root's subtree (root included,
// pre-order) that sub matches. A hit keeps the sub-pattern's bindings and,
// when as is set, binds the hit node itself. Descent does not stop at any
// node kind, so a pattern is found through arbitrarily nested closures.
func searchContains(sub pattern.Node, as string, root *syntax.Node, e *env) bool {
	stack := []*syntax.Node{root}

	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		mark := e.mark()

		if matchPattern(sub, curr, e) && (as == "" || e.bindNode(as, curr)) {
			return true
		}

		e.rollback(mark)

		for idx := len(curr.Children) - 1; idx >= 0; idx-- {
			stack = append(stack, curr.Children[idx])
		}
	}

	return false
}
