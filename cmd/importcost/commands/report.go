package commands

import (
	"io"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

const (
	reportChartWidth  = "1100px"
	reportChartHeight = "560px"
	reportAxisRotate  = 45
)

// renderReport writes a bar chart of raw vs gzipped size per import across
// all analyzed files.
func renderReport(w io.Writer, results map[string][]importmodel.Entry) error {
	labels, raw, gzipped := reportSeries(results)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Import costs",
			Width:     reportChartWidth,
			Height:    reportChartHeight,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Import costs",
			Subtitle: "Minified production bundle bytes per import",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{Rotate: reportAxisRotate, Interval: "0"},
		}),
		charts.WithYAxisOpts(opts.YAxis{Name: "bytes"}),
	)

	bar.SetXAxis(labels)
	bar.AddSeries("minified", barData(raw))
	bar.AddSeries("gzipped", barData(gzipped))

	return bar.Render(w)
}

// reportSeries flattens all results into chart series, heaviest first.
// Entries that produced no output are still charted at zero.
func reportSeries(results map[string][]importmodel.Entry) (labels []string, raw, gzipped []int) {
	type item struct {
		label string
		entry importmodel.Entry
	}

	var items []item

	for fileName, entries := range results {
		base := filepath.Base(fileName)

		for _, entry := range entries {
			label := entry.Name
			if len(results) > 1 {
				label = base + ": " + entry.Name
			}

			items = append(items, item{label: label, entry: entry})
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].entry.Size > items[j].entry.Size })

	for _, it := range items {
		labels = append(labels, it.label)
		raw = append(raw, it.entry.Size)
		gzipped = append(gzipped, it.entry.Gzip)
	}

	return labels, raw, gzipped
}

func barData(values []int) []opts.BarData {
	data := make([]opts.BarData, len(values))
	for i, v := range values {
		data[i] = opts.BarData{Value: v}
	}

	return data
}
