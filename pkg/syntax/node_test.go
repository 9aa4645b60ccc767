package syntax //nolint:testpackage // Tests need access to internal types.

import (
	"reflect"
	"testing"
)

func makeTestTree() *Node {
	// Tree structure:
	//        program
	//       /       \
	//     call      union
	//    /    \        \
	//  callee args    leaf
	//           |
	//          arg.
	arg := &Node{Kind: "identifier", Token: "a", Span: Span{StartOffset: 14, EndOffset: 15}}
	args := &Node{Kind: "arguments", Span: Span{StartOffset: 13, EndOffset: 16}, Children: []*Node{arg}}
	callee := &Node{Kind: "identifier", Token: "f", Span: Span{StartOffset: 12, EndOffset: 13}}
	call := &Node{Kind: "call_expression", Span: Span{StartOffset: 12, EndOffset: 16}, Children: []*Node{callee, args}}
	leaf := &Node{Kind: "null", Token: "null", Span: Span{StartOffset: 20, EndOffset: 24}}
	union := &Node{Kind: "union_type", Span: Span{StartOffset: 18, EndOffset: 24}, Children: []*Node{leaf}}

	return &Node{Kind: "program", Span: Span{StartOffset: 0, EndOffset: 24}, Children: []*Node{call, union}}
}

func TestWalkPreOrder(t *testing.T) {
	t.Parallel()

	tree := makeTestTree()

	var visited []string

	tree.Walk(func(n *Node) bool {
		visited = append(visited, n.Kind)

		return true
	})

	want := []string{"program", "call_expression", "identifier", "arguments", "identifier", "union_type", "null"}
	if !reflect.DeepEqual(visited, want) {
		t.Errorf("Walk order = %v, want %v", visited, want)
	}
}

func TestWalkPruneSubtree(t *testing.T) {
	t.Parallel()

	tree := makeTestTree()

	var visited []string

	tree.Walk(func(n *Node) bool {
		visited = append(visited, n.Kind)

		return n.Kind != "call_expression"
	})

	// Pruning the call still visits its later sibling subtree.
	want := []string{"program", "call_expression", "union_type", "null"}
	if !reflect.DeepEqual(visited, want) {
		t.Errorf("Walk pruned order = %v, want %v", visited, want)
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	tree := makeTestTree()

	tests := []struct {
		name      string
		predicate func(*Node) bool
		wantKinds []string
	}{
		{"all identifiers", func(n *Node) bool { return n.Kind == "identifier" }, []string{"identifier", "identifier"}},
		{"none", func(*Node) bool { return false }, nil},
		{"leaf token", func(n *Node) bool { return n.Token == "null" }, []string{"null"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			found := tree.Find(tt.predicate)

			var got []string //nolint:prealloc // nil slice needed for DeepEqual comparison.

			for _, n := range found {
				got = append(got, n.Kind)
			}

			if !reflect.DeepEqual(got, tt.wantKinds) {
				t.Errorf("Find() kinds = %v, want %v", got, tt.wantKinds)
			}
		})
	}
}

func TestFirstByKind(t *testing.T) {
	t.Parallel()

	tree := makeTestTree()

	first := tree.FirstByKind("identifier")
	if first == nil || first.Token != "f" {
		t.Fatalf("FirstByKind(identifier) = %v, want the callee leaf", first)
	}

	if tree.FirstByKind("no_such_kind") != nil {
		t.Errorf("FirstByKind on absent kind should return nil")
	}
}

func TestCount(t *testing.T) {
	t.Parallel()

	if got := makeTestTree().Count(); got != 7 {
		t.Errorf("Count() = %d, want 7", got)
	}

	single := &Node{Kind: "program"}
	if got := single.Count(); got != 1 {
		t.Errorf("Count() on leaf = %d, want 1", got)
	}
}

func TestBuilder(t *testing.T) {
	t.Parallel()

	span := Span{StartLine: 1, StartCol: 1, EndLine: 1, EndCol: 5, EndOffset: 4}
	built := NewBuilder().
		WithKind("identifier").
		WithToken("step").
		WithSpan(span).
		Build()

	if built.Kind != "identifier" || built.Token != "step" || built.Span != span {
		t.Errorf("builder produced %+v", built)
	}

	if !built.IsLeaf() {
		t.Errorf("node without children should be a leaf")
	}

	parent := NewBuilder().WithKind("program").WithChildren(built).Build()
	if len(parent.Children) != 1 || parent.Children[0] != built {
		t.Errorf("WithChildren did not attach child")
	}

	if parent.IsLeaf() {
		t.Errorf("node with children should not be a leaf")
	}
}

func TestSpanBefore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{"earlier start", Span{StartOffset: 1, EndOffset: 9}, Span{StartOffset: 2, EndOffset: 3}, true},
		{"later start", Span{StartOffset: 5, EndOffset: 6}, Span{StartOffset: 2, EndOffset: 3}, false},
		{"same start enclosing first", Span{StartOffset: 2, EndOffset: 9}, Span{StartOffset: 2, EndOffset: 3}, true},
		{"same start descendant second", Span{StartOffset: 2, EndOffset: 3}, Span{StartOffset: 2, EndOffset: 9}, false},
		{"identical", Span{StartOffset: 2, EndOffset: 3}, Span{StartOffset: 2, EndOffset: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.a.Before(tt.b); got != tt.want {
				t.Errorf("Before() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSpanIsZero(t *testing.T) {
	t.Parallel()

	if !(Span{}).IsZero() {
		t.Errorf("zero span should report IsZero")
	}

	if (Span{EndOffset: 1}).IsZero() {
		t.Errorf("non-zero span should not report IsZero")
	}
}

func TestStringRendering(t *testing.T) {
	t.Parallel()

	leaf := &Node{Kind: "identifier", Token: "db"}
	sel := &Node{Kind: "property_identifier", Token: "select"}
	member := &Node{Kind: "member_expression", Children: []*Node{leaf, sel}}

	got := member.String()
	want := `member_expression(identifier:"db" property_identifier:"select")`

	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	var nilNode *Node
	if nilNode.String() != "<nil>" {
		t.Errorf("nil node String() should be <nil>")
	}
}

func TestReleaseReturnsCleanNodes(t *testing.T) {
	t.Parallel()

	tree := makeTestTree()
	tree.Release()

	reused := NewBuilder().Build()
	if reused.Kind != "" || reused.Token != "" || len(reused.Children) != 0 || !reused.Span.IsZero() {
		t.Errorf("pooled node not reset: %+v", reused)
	}
}
