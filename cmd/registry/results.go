package main

import (
	"fmt"
	"io"
	"math/big"
	"os"
	"path"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	chartTypes "github.com/go-echarts/go-echarts/v2/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/stat"
)

// PrintTabularResults renders the run summary the way the simulation
// output is meant to be read: a totals table plus payment and gas
// distributions across all executed items.
func (r *runResults) PrintTabularResults(w io.Writer) {
	successes := 0
	payments := make([]float64, 0, len(r.Performs))
	gasUsed := make([]float64, 0, len(r.Performs))

	for _, perform := range r.Performs {
		if perform.Success {
			successes++
		}

		payment, _ := new(big.Float).SetInt(perform.Payment).Float64()
		payments = append(payments, payment)
		gasUsed = append(gasUsed, float64(perform.GasUsed))
	}

	tw := table.NewWriter()
	tw.SetTitle("Simulation Totals")
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"blocks", r.Duration},
		{"transmits accepted", r.TransmitsOK},
		{"transmits rejected", r.TransmitsFailed},
		{"performs", len(r.Performs)},
		{"perform successes", successes},
		{"perform failures", len(r.Performs) - successes},
	})
	fmt.Fprintln(w, tw.Render())

	if len(r.SkipsByReason) > 0 {
		sw := table.NewWriter()
		sw.SetTitle("Skipped Items by Reason")
		sw.AppendHeader(table.Row{"Reason", "Count"})

		reasons := make([]string, 0, len(r.SkipsByReason))
		for reason := range r.SkipsByReason {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)

		for _, reason := range reasons {
			sw.AppendRow(table.Row{reason, r.SkipsByReason[reason]})
		}
		fmt.Fprintln(w, sw.Render())
	}

	if len(payments) > 0 {
		dw := table.NewWriter()
		dw.SetTitle("Per-Item Distributions")
		dw.AppendHeader(table.Row{"Series", "p50", "p90", "p99", "max"})
		dw.AppendRow(distributionRow("payment (juels)", payments))
		dw.AppendRow(distributionRow("gas used", gasUsed))
		fmt.Fprintln(w, dw.Render())
	}
}

func distributionRow(name string, values []float64) table.Row {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return table.Row{
		name,
		fmt.Sprintf("%.0f", stat.Quantile(0.50, stat.Empirical, sorted, nil)),
		fmt.Sprintf("%.0f", stat.Quantile(0.90, stat.Empirical, sorted, nil)),
		fmt.Sprintf("%.0f", stat.Quantile(0.99, stat.Empirical, sorted, nil)),
		fmt.Sprintf("%.0f", sorted[len(sorted)-1]),
	}
}

// WriteCharts renders the per-block perform counts to an HTML page in
// the output directory.
func (r *runResults) WriteCharts(outDir string) error {
	if err := os.MkdirAll(outDir, 0750); err != nil && !os.IsExist(err) {
		return err
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: chartTypes.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Upkeep Performs per Block",
			Subtitle: fmt.Sprintf("%d blocks simulated", r.Duration),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "block", Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value"}),
		charts.WithLegendOpts(opts.Legend{Left: "center", Top: "top"}),
	)

	blocks := make([]uint64, 0, len(r.PerformsByBlock))
	for block := range r.PerformsByBlock {
		blocks = append(blocks, block)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })

	labels := make([]string, len(blocks))
	items := make([]opts.LineData, len(blocks))
	for i, block := range blocks {
		labels[i] = fmt.Sprintf("%d", block)
		items[i] = opts.LineData{Value: r.PerformsByBlock[block]}
	}

	line.SetXAxis(labels).
		AddSeries("performs", items).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: true}))

	page := components.NewPage()
	page.AddCharts(line)

	file, err := os.Create(path.Join(outDir, "performs.html"))
	if err != nil {
		return err
	}
	defer file.Close()

	return page.Render(file)
}
