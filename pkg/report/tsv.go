package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	// PartialStatsFile holds the raw (error, weight) pairs per checkpoint.
	PartialStatsFile = "partial_stats.tsv"
	// DefaultMetricsFile holds the final scores per checkpoint.
	DefaultMetricsFile = "eval_metrics.tsv"

	iterColumn = "iter"
)

// WritePartialStats writes one row per checkpoint with every metric's
// accumulated error and weight.
func WritePartialStats(w io.Writer, r *Result) error {
	tbl := table.NewWriter()

	header := table.Row{iterColumn}
	for _, name := range r.Metrics {
		header = append(header, name+":error", name+":weight")
	}

	tbl.AppendHeader(header)

	for k, it := range r.Iterations {
		row := table.Row{strconv.Itoa(it)}
		for i := range r.Metrics {
			row = append(row, formatFloat(r.Stats[i][k].Error), formatFloat(r.Stats[i][k].Weight))
		}

		tbl.AppendRow(row)
	}

	return writeTSV(w, tbl)
}

// WriteScores writes one row per checkpoint with every metric's final score.
func WriteScores(w io.Writer, r *Result) error {
	tbl := table.NewWriter()

	header := table.Row{iterColumn}
	for _, name := range r.Metrics {
		header = append(header, name)
	}

	tbl.AppendHeader(header)

	for k, it := range r.Iterations {
		row := table.Row{strconv.Itoa(it)}
		for i := range r.Metrics {
			row = append(row, formatFloat(r.Scores[i][k]))
		}

		tbl.AppendRow(row)
	}

	return writeTSV(w, tbl)
}

func writeTSV(w io.Writer, tbl table.Writer) error {
	_, err := io.WriteString(w, tbl.RenderTSV()+"\n")
	if err != nil {
		return fmt.Errorf("write tsv: %w", err)
	}

	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
