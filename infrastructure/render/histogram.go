package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/ahrav/go-mqm/internal/application"
)

const (
	chartWidth  = "100%"
	chartHeight = "500px"
	stackName   = "segments"
)

// HistogramLabels returns the x axis of a histogram page: the first
// system's bins from widest to narrowest as negative differences, the equal
// bucket, then the second system's bins.
func HistogramLabels(h *application.Histogram) []string {
	labels := make([]string, 0, 2*(h.MaxBin+1)+1)
	for bin := h.MaxBin; bin >= 0; bin-- {
		lo, hi := binBounds(bin)
		if lo != 0 {
			lo = -lo
		}
		labels = append(labels, fmt.Sprintf("(%g, %g]", -hi, lo))
	}
	labels = append(labels, "0")
	for bin := 0; bin <= h.MaxBin; bin++ {
		lo, hi := binBounds(bin)
		labels = append(labels, fmt.Sprintf("[%g, %g)", lo, hi))
	}
	return labels
}

func binBounds(bin int) (lo, hi float64) {
	return float64(bin) * application.HistogramBinWidth, float64(bin+1) * application.HistogramBinWidth
}

// histogramSeries lays out three stacked series over HistogramLabels: the
// first system's wins, the equal bucket and the second system's wins.
func histogramSeries(h *application.Histogram) (first, equal, second []opts.BarData) {
	n := 2*(h.MaxBin+1) + 1
	first = make([]opts.BarData, n)
	equal = make([]opts.BarData, n)
	second = make([]opts.BarData, n)
	for i := range n {
		first[i] = opts.BarData{Value: 0}
		equal[i] = opts.BarData{Value: 0}
		second[i] = opts.BarData{Value: 0}
	}
	for bin, keys := range h.Better[0] {
		first[h.MaxBin-bin] = opts.BarData{Value: len(keys)}
	}
	equal[h.MaxBin+1] = opts.BarData{Value: len(h.Equal)}
	for bin, keys := range h.Better[1] {
		second[h.MaxBin+2+bin] = opts.BarData{Value: len(keys)}
	}
	return first, equal, second
}

// HistogramChart builds a bar chart of the per-segment score differences of
// two systems.
func HistogramChart(h *application.Histogram) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "MQM score differences",
			Width:     chartWidth,
			Height:    chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s vs %s", h.System1, h.System2),
			Subtitle: fmt.Sprintf("%d common segments (%d and %d rated), bin width %g",
				h.Common, h.Segs1, h.Segs2, application.HistogramBinWidth),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "score difference"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "segments"}),
	)
	bar.SetXAxis(HistogramLabels(h))

	first, equal, second := histogramSeries(h)
	bar.AddSeries(h.System1+" better", first,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: application.HistogramColors[0]}))
	bar.AddSeries("equal", equal,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: application.HistogramEqualColor}))
	bar.AddSeries(h.System2+" better", second,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: application.HistogramColors[1]}))
	bar.SetSeriesOptions(charts.WithBarChartOpts(opts.BarChart{Stack: stackName}))
	return bar
}

// HistogramPage writes a standalone HTML page with the histogram chart.
func HistogramPage(w io.Writer, h *application.Histogram) error {
	if err := HistogramChart(h).Render(w); err != nil {
		return fmt.Errorf("render histogram: %w", err)
	}
	return nil
}
