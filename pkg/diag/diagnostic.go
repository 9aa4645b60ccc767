package diag

import (
	"encoding/json"
	"fmt"

	"github.com/Sumatoshi-tech/treelint/pkg/syntax"
)

// Diagnostic is one finding produced by one rule at one location.
// Values are immutable once reported.
type Diagnostic struct {
	Rule     string      `json:"rule" msgpack:"rule"`
	Span     syntax.Span `json:"span" msgpack:"span"`
	Message  string      `json:"message" msgpack:"message"`
	Severity Severity    `json:"severity" msgpack:"severity"`
}

// Stage identifies where in a rule's lifecycle a problem occurred.
type Stage string

const (
	// StageCompile covers rule-definition loading and pattern compilation.
	StageCompile Stage = "compile"

	// StageMatch covers evaluating a compiled rule against one tree.
	StageMatch Stage = "match"
)

// Problem records a rule-execution failure. Problems are surfaced alongside
// diagnostics, never mixed into them: a broken rule must not look like a
// clean one.
type Problem struct {
	Rule  string
	Stage Stage
	Err   error
}

// Error renders the problem as "rule stage: cause".
func (p Problem) Error() string {
	return fmt.Sprintf("%s %s: %v", p.Rule, p.Stage, p.Err)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (p Problem) Unwrap() error {
	return p.Err
}

// MarshalJSON renders the problem with its cause as a string.
func (p Problem) MarshalJSON() ([]byte, error) {
	payload := struct {
		Rule  string `json:"rule"`
		Stage Stage  `json:"stage"`
		Error string `json:"error"`
	}{Rule: p.Rule, Stage: p.Stage, Error: p.Err.Error()}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal problem: %w", err)
	}

	return encoded, nil
}
