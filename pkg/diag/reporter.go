package diag

import "sort"

// Reporter accumulates the diagnostics of one analysis pass over one tree.
// It is append-only: nothing ever mutates or removes a reported finding.
// One Reporter belongs to one tree's pass and is not safe for concurrent
// use; the engine merges per-rule results into it sequentially.
type Reporter struct {
	ruleOrder map[string]int
	findings  []Diagnostic
}

// NewReporter creates a Reporter that orders findings by the given rule
// declaration order, then by span position within the tree.
func NewReporter(ruleOrder []string) *Reporter {
	index := make(map[string]int, len(ruleOrder))

	for pos, name := range ruleOrder {
		index[name] = pos
	}

	return &Reporter{ruleOrder: index}
}

// Report appends one finding. A diagnostic whose span carries no position
// information would point at nothing in the analyzed tree; emitting one is a
// programming defect in the caller, not a user-facing condition, so it
// panics rather than being returned as an error.
func (r *Reporter) Report(rule string, finding Diagnostic) {
	if finding.Span.IsZero() {
		panic("diag: diagnostic for rule " + rule + " has no source span")
	}

	finding.Rule = rule
	r.findings = append(r.findings, finding)
}

// Len returns the number of findings reported so far.
func (r *Reporter) Len() int {
	return len(r.findings)
}

// Snapshot returns a sorted copy of all findings: rule declaration order
// first, span start then end offset within a rule. Rules unknown to the
// declaration order sort after declared ones, by name. The stable sort keeps
// report order for exact duplicates, so repeated runs produce byte-identical
// sequences.
func (r *Reporter) Snapshot() []Diagnostic {
	out := make([]Diagnostic, len(r.findings))
	copy(out, r.findings)

	sort.SliceStable(out, func(i, j int) bool {
		left, right := out[i], out[j]

		leftRank, leftKnown := r.ruleOrder[left.Rule]
		rightRank, rightKnown := r.ruleOrder[right.Rule]

		switch {
		case leftKnown && !rightKnown:
			return true
		case !leftKnown && rightKnown:
			return false
		case !leftKnown && !rightKnown && left.Rule != right.Rule:
			return left.Rule < right.Rule
		case leftRank != rightRank:
			return leftRank < rightRank
		}

		return left.Span.Before(right.Span)
	})

	return out
}
