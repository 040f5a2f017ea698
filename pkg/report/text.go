package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// scoreDigits is the precision of scores in the text table.
const scoreDigits = 6

// RenderTable writes the score table as an aligned text table.
func RenderTable(w io.Writer, r *Result) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false

	header := table.Row{iterColumn}
	for _, name := range r.Metrics {
		header = append(header, name)
	}

	tbl.AppendHeader(header)

	for k, it := range r.Iterations {
		row := table.Row{it}
		for i := range r.Metrics {
			row = append(row, strconv.FormatFloat(r.Scores[i][k], 'f', scoreDigits, 64))
		}

		tbl.AppendRow(row)
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("%d checkpoints", len(r.Iterations))})

	_, err := io.WriteString(w, tbl.Render()+"\n")
	if err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	return nil
}

// PrintSummary writes one colored line per metric with its best score and
// trajectory statistics.
func PrintSummary(w io.Writer, summaries []Summary) {
	for _, s := range summaries {
		if s.BestIteration < 0 {
			color.New(color.FgRed).Fprintf(w, "%s: no finite score\n", s.Metric)

			continue
		}

		color.New(color.FgGreen, color.Bold).Fprintf(w, "%s", s.Metric)
		fmt.Fprintf(w, ": best %s at iteration %d", formatScore(s.Best), s.BestIteration)
		color.New(color.FgCyan).Fprintf(w, " (mean %s, stddev %s, final %s)\n",
			formatScore(s.Mean), formatScore(s.StdDev), formatScore(s.Final))
	}
}

func formatScore(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}

	return strconv.FormatFloat(v, 'f', scoreDigits, 64)
}
