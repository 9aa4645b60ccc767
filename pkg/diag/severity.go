// Package diag defines the finding model shared by every rule: severity
// levels, diagnostics, rule-execution problems, and the per-tree reporter
// that orders findings deterministically.
package diag

import (
	"errors"
	"fmt"
)

// Severity classifies how a finding should be treated by callers.
type Severity uint8

const (
	// SeverityError marks findings that should fail a run.
	SeverityError Severity = iota

	// SeverityWarning marks findings that should be surfaced but not fail a run.
	SeverityWarning

	// SeverityInfo marks advisory findings.
	SeverityInfo
)

// ErrUnknownSeverity is returned when parsing an unrecognized severity name.
var ErrUnknownSeverity = errors.New("unknown severity")

// severityNames maps severities to their canonical names.
//
//nolint:gochecknoglobals // Fixed lookup table.
var severityNames = map[Severity]string{
	SeverityError:   "error",
	SeverityWarning: "warning",
	SeverityInfo:    "info",
}

// String returns the canonical lowercase name of the severity.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}

	return fmt.Sprintf("severity(%d)", uint8(s))
}

// ParseSeverity converts a severity name into a Severity.
func ParseSeverity(name string) (Severity, error) {
	for sev, sevName := range severityNames {
		if sevName == name {
			return sev, nil
		}
	}

	return SeverityInfo, fmt.Errorf("%w: %q", ErrUnknownSeverity, name)
}

// MarshalText renders the severity as its canonical name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity from its canonical name.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}
