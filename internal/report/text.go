package report

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"

	"github.com/Sumatoshi-tech/treelint/internal/runner"
	"github.com/Sumatoshi-tech/treelint/pkg/diag"
)

//nolint:gochecknoglobals // Fixed severity color table.
var severityColors = map[diag.Severity]*color.Color{
	diag.SeverityError:   color.New(color.FgRed, color.Bold),
	diag.SeverityWarning: color.New(color.FgYellow),
	diag.SeverityInfo:    color.New(color.FgCyan),
}

func renderText(w io.Writer, result runner.RunResult, opts Options) error {
	restore := applyColorMode(opts.Color)
	defer restore()

	for _, file := range result.Files {
		for _, finding := range file.Result.Diagnostics {
			sevColor, ok := severityColors[finding.Severity]
			if !ok {
				sevColor = color.New()
			}

			fmt.Fprintf(w, "%s:%d:%d: %s %s (%s)\n",
				file.Path,
				finding.Span.StartLine,
				finding.Span.StartCol,
				sevColor.Sprint(finding.Severity.String()),
				finding.Message,
				finding.Rule,
			)
		}
	}

	renderProblemsText(w, result)

	if opts.Summary {
		renderSummaryText(w, result)
	}

	return nil
}

// renderProblemsText prints rule-execution failures apart from findings, so
// a broken rule never reads as a clean one.
func renderProblemsText(w io.Writer, result runner.RunResult) {
	problems := result.Problems()
	if len(problems) == 0 {
		return
	}

	header := color.New(color.FgMagenta, color.Bold)
	fmt.Fprintf(w, "\n%s\n", header.Sprintf("%d rule execution %s:",
		len(problems), english.PluralWord(len(problems), "problem", "problems")))

	for _, problem := range problems {
		fmt.Fprintf(w, "  %s\n", problem.Error())
	}
}

func renderSummaryText(w io.Writer, result runner.RunResult) {
	findings := result.Diagnostics()

	counts := make(map[diag.Severity]int)
	for _, finding := range findings {
		counts[finding.Severity]++
	}

	fmt.Fprintf(w, "\n%s scanned in %s: %s (%d error, %d warning, %d info)",
		english.Plural(result.FilesScanned, "file", "files"),
		humanizeElapsed(result.Elapsed),
		english.Plural(len(findings), "finding", "findings"),
		counts[diag.SeverityError],
		counts[diag.SeverityWarning],
		counts[diag.SeverityInfo],
	)

	if result.FilesSkipped > 0 {
		fmt.Fprintf(w, ", %d skipped", result.FilesSkipped)
	}

	if result.FilesFailed > 0 {
		fmt.Fprintf(w, ", %d failed", result.FilesFailed)
	}

	total := result.CacheStats.Hits + result.CacheStats.Misses
	if total > 0 {
		fmt.Fprintf(w, ", cache %s", humanize.FtoaWithDigits(result.CacheStats.HitRate()*100, 1)+"% hit")
	}

	fmt.Fprintln(w)
}

// humanizeElapsed keeps fast runs readable: sub-second runs render in
// milliseconds, everything else rounds to 10ms.
func humanizeElapsed(elapsed time.Duration) string {
	if elapsed < time.Second {
		return elapsed.Round(time.Millisecond).String()
	}

	return elapsed.Round(10 * time.Millisecond).String()
}

// applyColorMode overrides the color library's global toggle and returns a
// restore func, so render calls don't leak mode into each other.
func applyColorMode(mode string) func() {
	previous := color.NoColor

	switch mode {
	case ColorAlways:
		color.NoColor = false //nolint:reassign // intentional override of library global
	case ColorNever:
		color.NoColor = true //nolint:reassign // intentional override of library global
	default:
		// Auto: keep the library's TTY detection.
	}

	return func() {
		color.NoColor = previous //nolint:reassign // restore library global
	}
}
