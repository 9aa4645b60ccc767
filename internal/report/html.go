package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/treelint/internal/runner"
)

const (
	chartWidth  = "900px"
	chartHeight = "500px"
)

// renderHTML writes a standalone HTML page with a findings-per-rule bar
// chart. Rules sort by finding count descending, names tie-break.
func renderHTML(w io.Writer, result runner.RunResult) error {
	counts := make(map[string]int)

	for _, finding := range result.Diagnostics() {
		counts[finding.Rule]++
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}

		return names[i] < names[j]
	})

	bars := make([]opts.BarData, 0, len(names))
	for _, name := range names {
		bars = append(bars, opts.BarData{Value: counts[name]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "treelint findings by rule",
			Subtitle: fmt.Sprintf("%d findings across %d files", len(result.Diagnostics()), result.FilesScanned),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 30, Show: opts.Bool(true)}}),
	)
	bar.SetXAxis(names)
	bar.AddSeries("findings", bars)

	err := bar.Render(w)
	if err != nil {
		return fmt.Errorf("render html report: %w", err)
	}

	return nil
}
