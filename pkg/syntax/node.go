// Package syntax defines the tree data model the lint engine matches against.
// Nodes are produced by a tree provider (see pkg/parser), carry their source
// spans, and are immutable for the duration of one analysis pass.
package syntax

import (
	"strconv"
	"strings"
	"sync"
)

// Span holds the source range of a node. Line and column are 1-based;
// StartOffset and EndOffset are byte offsets into the original source.
type Span struct {
	StartLine   uint `json:"start_line" msgpack:"start_line"`
	StartCol    uint `json:"start_col" msgpack:"start_col"`
	StartOffset uint `json:"start_offset" msgpack:"start_offset"`
	EndLine     uint `json:"end_line" msgpack:"end_line"`
	EndCol      uint `json:"end_col" msgpack:"end_col"`
	EndOffset   uint `json:"end_offset" msgpack:"end_offset"`
}

// IsZero reports whether the span carries no position information.
func (s Span) IsZero() bool {
	return s == Span{}
}

// Before reports whether s starts strictly before other in document order.
// On tied starts the wider span sorts first, so an enclosing node precedes
// the descendants it starts with, matching pre-order traversal.
func (s Span) Before(other Span) bool {
	if s.StartOffset != other.StartOffset {
		return s.StartOffset < other.StartOffset
	}

	return s.EndOffset > other.EndOffset
}

// Node is one syntax tree node.
//
// Fields:
//
//	Kind: grammar node type (e.g., "call_expression", "union_type").
//	Token: source text, set only for leaves (nodes without named children).
//	Span: source range covered by the node.
//	Children: named child nodes in document order.
type Node struct {
	Kind     string  `json:"kind"`
	Token    string  `json:"token,omitempty"`
	Span     Span    `json:"span"`
	Children []*Node `json:"children,omitempty"`
}

// nodePool recycles Node structs across analysis passes.
//
//nolint:gochecknoglobals // Shared pool for node allocation performance.
var nodePool = sync.Pool{
	New: func() any {
		return &Node{}
	},
}

// NodeBuilder provides a fluent interface for constructing Node values.
type NodeBuilder struct {
	node *Node
}

// NewBuilder creates a NodeBuilder backed by the node pool.
func NewBuilder() *NodeBuilder {
	pooled, ok := nodePool.Get().(*Node)
	if !ok {
		pooled = &Node{}
	}

	*pooled = Node{}

	return &NodeBuilder{node: pooled}
}

// WithKind sets the node kind.
func (builder *NodeBuilder) WithKind(kind string) *NodeBuilder {
	builder.node.Kind = kind

	return builder
}

// WithToken sets the leaf token text.
func (builder *NodeBuilder) WithToken(token string) *NodeBuilder {
	builder.node.Token = token

	return builder
}

// WithSpan sets the node's source span.
func (builder *NodeBuilder) WithSpan(span Span) *NodeBuilder {
	builder.node.Span = span

	return builder
}

// WithChildren appends child nodes in order.
func (builder *NodeBuilder) WithChildren(children ...*Node) *NodeBuilder {
	builder.node.Children = append(builder.node.Children, children...)

	return builder
}

// Build returns the constructed node.
func (builder *NodeBuilder) Build() *Node {
	return builder.node
}

// New creates a node with the given kind, token and span.
func New(kind, token string, span Span) *Node {
	return NewBuilder().WithKind(kind).WithToken(token).WithSpan(span).Build()
}

// Release returns the node and its entire subtree to the pool.
// The caller must not touch the tree afterwards.
func (root *Node) Release() {
	if root == nil {
		return
	}

	stack := []*Node{root}

	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		stack = append(stack, curr.Children...)

		*curr = Node{}
		nodePool.Put(curr)
	}
}

// IsLeaf reports whether the node has no named children. Leaves carry their
// source text in Token.
func (root *Node) IsLeaf() bool {
	return root != nil && len(root.Children) == 0
}

// Walk visits the subtree rooted at the node in pre-order (node first, then
// children depth-first left to right). Walking stops early when fn returns
// false for a node's descent, but siblings are still visited.
func (root *Node) Walk(fn func(*Node) bool) {
	if root == nil {
		return
	}

	stack := []*Node{root}

	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !fn(curr) {
			continue
		}

		pushReversedChildren(curr, &stack)
	}
}

// Find returns all nodes in the subtree satisfying the predicate, in
// pre-order. The traversal is iterative; tree depth does not grow the Go
// stack.
func (root *Node) Find(predicate func(*Node) bool) []*Node {
	var result []*Node

	root.Walk(func(curr *Node) bool {
		if predicate(curr) {
			result = append(result, curr)
		}

		return true
	})

	return result
}

// FirstByKind returns the first node of the given kind in pre-order, or nil.
func (root *Node) FirstByKind(kind string) *Node {
	var found *Node

	root.Walk(func(curr *Node) bool {
		if found != nil {
			return false
		}

		if curr.Kind == kind {
			found = curr

			return false
		}

		return true
	})

	return found
}

// Count returns the number of nodes in the subtree, the node included.
func (root *Node) Count() int {
	total := 0

	root.Walk(func(*Node) bool {
		total++

		return true
	})

	return total
}

// String renders the subtree as a compact one-line debug form, e.g.
// call_expression(member_expression(identifier:"db" property_identifier:"select") arguments(identifier:"a")).
func (root *Node) String() string {
	if root == nil {
		return "<nil>"
	}

	var buf strings.Builder

	writeNodeString(&buf, root)

	return buf.String()
}

func writeNodeString(buf *strings.Builder, curr *Node) {
	buf.WriteString(curr.Kind)

	if curr.Token != "" {
		buf.WriteByte(':')
		buf.WriteString(strconv.Quote(curr.Token))
	}

	if len(curr.Children) == 0 {
		return
	}

	buf.WriteByte('(')

	for idx, child := range curr.Children {
		if idx > 0 {
			buf.WriteByte(' ')
		}

		writeNodeString(buf, child)
	}

	buf.WriteByte(')')
}

func pushReversedChildren(curr *Node, stack *[]*Node) {
	children := curr.Children

	for idx := len(children) - 1; idx >= 0; idx-- {
		*stack = append(*stack, children[idx])
	}
}
