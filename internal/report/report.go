// Package report renders lint run results for human and machine consumers:
// colored text, JSON, YAML, a findings table, an HTML chart report, and a
// humanized run summary.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/Sumatoshi-tech/treelint/internal/runner"
)

// Format names accepted by Render.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
	FormatHTML  = "html"
)

// ColorMode controls ANSI coloring of the text renderer.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// ErrUnknownFormat is returned when Render is asked for a format it does not
// implement.
var ErrUnknownFormat = errors.New("unknown output format")

// Options configure rendering.
type Options struct {
	// Color selects the text renderer's color mode. Empty means auto.
	Color string

	// Summary appends the run summary to human-readable formats.
	Summary bool
}

// Render writes the run result to w in the named format.
func Render(w io.Writer, result runner.RunResult, format string, opts Options) error {
	switch format {
	case FormatText, "":
		return renderText(w, result, opts)
	case FormatJSON:
		return renderJSON(w, result)
	case FormatYAML:
		return renderYAML(w, result)
	case FormatTable:
		return renderTable(w, result, opts)
	case FormatHTML:
		return renderHTML(w, result)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
