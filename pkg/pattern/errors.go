package pattern

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by CompileError.
var (
	// ErrMalformedSyntax marks rule text the parser could not understand.
	ErrMalformedSyntax = errors.New("malformed rule syntax")

	// ErrUnboundCapture marks a where clause or report referencing a capture
	// no enclosing pattern binds.
	ErrUnboundCapture = errors.New("undefined capture")

	// ErrDuplicateCapture marks a capture name bound more than once on one
	// match path.
	ErrDuplicateCapture = errors.New("duplicate capture")

	// ErrIncompleteRule marks a rule missing a match pattern or a report.
	ErrIncompleteRule = errors.New("incomplete rule")
)

// CompileError describes why one rule definition failed to compile. It is
// fatal to that rule only; sibling rules in the same file keep loading.
type CompileError struct {
	Rule string // rule name, empty when the failure precedes the name
	File string // source label (file path or "<builtin>")
	Line int    // 1-based line in the rule source
	Err  error  // wraps one of the sentinel causes above
}

// Error renders "file:line: rule name: cause".
func (e *CompileError) Error() string {
	pos := e.File
	if e.Line > 0 {
		pos = fmt.Sprintf("%s:%d", e.File, e.Line)
	}

	if e.Rule == "" {
		return fmt.Sprintf("%s: %v", pos, e.Err)
	}

	return fmt.Sprintf("%s: rule %s: %v", pos, e.Rule, e.Err)
}

// Unwrap exposes the sentinel cause to errors.Is.
func (e *CompileError) Unwrap() error {
	return e.Err
}

func compileErrorf(file string, line int, rule string, cause error, format string, args ...any) *CompileError {
	detail := fmt.Sprintf(format, args...)

	return &CompileError{
		Rule: rule,
		File: file,
		Line: line,
		Err:  fmt.Errorf("%w: %s", cause, detail),
	}
}
