package diag //nolint:testpackage // Tests need access to internal types.

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Sumatoshi-tech/treelint/pkg/syntax"
)

func TestSeverityRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sev  Severity
	}{
		{"error", SeverityError},
		{"warning", SeverityWarning},
		{"info", SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.sev.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}

			parsed, err := ParseSeverity(tt.name)
			if err != nil {
				t.Fatalf("ParseSeverity(%q) error: %v", tt.name, err)
			}

			if parsed != tt.sev {
				t.Errorf("ParseSeverity(%q) = %v, want %v", tt.name, parsed, tt.sev)
			}
		})
	}
}

func TestParseSeverityUnknown(t *testing.T) {
	t.Parallel()

	_, err := ParseSeverity("fatal")
	if !errors.Is(err, ErrUnknownSeverity) {
		t.Errorf("ParseSeverity(fatal) error = %v, want ErrUnknownSeverity", err)
	}
}

func TestSeverityJSON(t *testing.T) {
	t.Parallel()

	encoded, err := json.Marshal(SeverityWarning)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if string(encoded) != `"warning"` {
		t.Errorf("marshal = %s, want \"warning\"", encoded)
	}

	var decoded Severity
	if unmarshalErr := json.Unmarshal([]byte(`"error"`), &decoded); unmarshalErr != nil {
		t.Fatalf("unmarshal: %v", unmarshalErr)
	}

	if decoded != SeverityError {
		t.Errorf("unmarshal = %v, want SeverityError", decoded)
	}
}

func span(start, end uint) syntax.Span {
	return syntax.Span{StartLine: 1, StartCol: start + 1, StartOffset: start, EndLine: 1, EndCol: end + 1, EndOffset: end}
}

func TestReporterOrdersByRuleThenSpan(t *testing.T) {
	t.Parallel()

	reporter := NewReporter([]string{"first-rule", "second-rule"})

	// Reported deliberately out of order.
	reporter.Report("second-rule", Diagnostic{Span: span(5, 9), Message: "b1", Severity: SeverityWarning})
	reporter.Report("first-rule", Diagnostic{Span: span(40, 44), Message: "a2", Severity: SeverityError})
	reporter.Report("first-rule", Diagnostic{Span: span(2, 8), Message: "a1", Severity: SeverityError})
	reporter.Report("second-rule", Diagnostic{Span: span(1, 3), Message: "b0", Severity: SeverityWarning})

	var messages []string //nolint:prealloc // nil slice needed for DeepEqual comparison.

	for _, d := range reporter.Snapshot() {
		messages = append(messages, d.Message)
	}

	want := []string{"a1", "a2", "b0", "b1"}
	if !reflect.DeepEqual(messages, want) {
		t.Errorf("Snapshot order = %v, want %v", messages, want)
	}
}

func TestReporterCoStartingSpansEnclosingFirst(t *testing.T) {
	t.Parallel()

	// A node and its first descendant share a start offset; the enclosing
	// span must come first, matching pre-order position in the tree.
	reporter := NewReporter([]string{"r"})
	reporter.Report("r", Diagnostic{Span: span(2, 8), Message: "inner"})
	reporter.Report("r", Diagnostic{Span: span(2, 20), Message: "outer"})

	var messages []string //nolint:prealloc // nil slice needed for DeepEqual comparison.

	for _, d := range reporter.Snapshot() {
		messages = append(messages, d.Message)
	}

	want := []string{"outer", "inner"}
	if !reflect.DeepEqual(messages, want) {
		t.Errorf("Snapshot order = %v, want %v", messages, want)
	}
}

func TestReporterSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	reporter := NewReporter([]string{"r"})
	reporter.Report("r", Diagnostic{Span: span(0, 1), Message: "original"})

	first := reporter.Snapshot()
	first[0].Message = "mutated"

	second := reporter.Snapshot()
	if second[0].Message != "original" {
		t.Errorf("snapshot mutation leaked into reporter state")
	}
}

func TestReporterDeterministic(t *testing.T) {
	t.Parallel()

	build := func() []Diagnostic {
		reporter := NewReporter([]string{"x", "y"})
		reporter.Report("y", Diagnostic{Span: span(3, 4), Message: "m1"})
		reporter.Report("x", Diagnostic{Span: span(3, 4), Message: "m2"})
		reporter.Report("x", Diagnostic{Span: span(3, 4), Message: "m3"})

		return reporter.Snapshot()
	}

	if !reflect.DeepEqual(build(), build()) {
		t.Errorf("identical input produced different snapshots")
	}
}

func TestReporterPanicsOnZeroSpan(t *testing.T) {
	t.Parallel()

	defer func() {
		recovered := recover()
		if recovered == nil {
			t.Fatalf("Report with zero span did not panic")
		}

		msg, ok := recovered.(string)
		if !ok || !strings.Contains(msg, "broken-rule") {
			t.Errorf("panic %v should name the offending rule", recovered)
		}
	}()

	NewReporter([]string{"broken-rule"}).Report("broken-rule", Diagnostic{Message: "no span"})
}

func TestProblemRendering(t *testing.T) {
	t.Parallel()

	cause := errors.New("undefined capture $unbound")
	problem := Problem{Rule: "bad-rule", Stage: StageCompile, Err: cause}

	if got := problem.Error(); got != "bad-rule compile: undefined capture $unbound" {
		t.Errorf("Error() = %q", got)
	}

	if !errors.Is(problem, cause) {
		t.Errorf("Unwrap should expose the cause")
	}

	encoded, err := json.Marshal(problem)
	if err != nil {
		t.Fatalf("marshal problem: %v", err)
	}

	if !strings.Contains(string(encoded), `"stage":"compile"`) {
		t.Errorf("marshal = %s, want stage field", encoded)
	}
}
