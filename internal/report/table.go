package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/treelint/internal/runner"
)

func renderTable(w io.Writer, result runner.RunResult, opts Options) error {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"File", "Line", "Severity", "Rule", "Message"})

	total := 0

	for _, file := range result.Files {
		for _, finding := range file.Result.Diagnostics {
			total++

			tbl.AppendRow(table.Row{
				file.Path,
				fmt.Sprintf("%d:%d", finding.Span.StartLine, finding.Span.StartCol),
				finding.Severity.String(),
				finding.Rule,
				finding.Message,
			})
		}
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("%d findings in %d files", total, result.FilesScanned)})
	tbl.Render()

	renderProblemsText(w, result)

	if opts.Summary {
		renderSummaryText(w, result)
	}

	return nil
}

// RuleRow is one row of the rules listing table.
type RuleRow struct {
	Name        string
	Severity    string
	Languages   string
	Description string
}

// RenderRulesTable writes the registered-rules listing.
func RenderRulesTable(w io.Writer, rows []RuleRow) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	tbl.AppendHeader(table.Row{"Rule", "Severity", "Languages", "Description"})

	for _, row := range rows {
		tbl.AppendRow(table.Row{row.Name, row.Severity, row.Languages, row.Description})
	}

	tbl.Render()
}
