package plotpage

import (
	"fmt"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	// missingValue is the echarts marker for a gap in a line series.
	missingValue = "-"

	chartWidth  = "100%"
	chartHeight = "420px"

	// zoomThreshold is the checkpoint count above which the chart gets a
	// zoom slider.
	zoomThreshold = 50

	iterationAxis = "iteration"
)

// Curve is the score trajectory of one metric.
type Curve struct {
	Metric string
	Scores []float64
	// HigherIsBetter selects which extreme is marked as the best score.
	HigherIsBetter bool
}

// Best returns the best finite score and its checkpoint ordinal, or -1 when
// no score is finite.
func (c Curve) Best() (float64, int) {
	best, at := 0.0, -1

	for i, v := range c.Scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		if at < 0 || (c.HigherIsBetter && v > best) || (!c.HigherIsBetter && v < best) {
			best, at = v, i
		}
	}

	return best, at
}

// CurveChart draws curve against the model iterations of its checkpoints.
// Non-finite scores are drawn as gaps and the best score is marked.
func CurveChart(theme Theme, iterations []int, curve Curve, color string) *charts.Line {
	tc := GetThemeConfig(theme)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:           chartWidth,
			Height:          chartHeight,
			BackgroundColor: tc.ChartBackground,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithGridOpts(opts.Grid{Top: "12%", Bottom: "15%", Left: "5%", Right: "5%", ContainLabel: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      iterationAxis,
			AxisLabel: &opts.AxisLabel{Color: tc.ChartTextMuted},
			AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: tc.ChartAxis}},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      curve.Metric,
			AxisLabel: &opts.AxisLabel{Color: tc.ChartTextMuted},
			AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: tc.ChartAxis}},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: tc.ChartGrid}},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
	)

	if len(iterations) > zoomThreshold {
		line.SetGlobalOptions(charts.WithDataZoomOpts(
			opts.DataZoom{Type: "slider", Start: 0, End: 100},
			opts.DataZoom{Type: "inside"},
		))
	}

	line.SetXAxis(IterationLabels(iterations))

	points := make([]opts.LineData, len(curve.Scores))

	for i, v := range curve.Scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			points[i] = opts.LineData{Value: missingValue}

			continue
		}

		points[i] = opts.LineData{Value: v}
	}

	extreme := "min"
	if curve.HigherIsBetter {
		extreme = "max"
	}

	seriesOpts := []charts.SeriesOpts{
		charts.WithMarkPointNameTypeItemOpts(opts.MarkPointNameTypeItem{Name: "best", Type: extreme}),
	}

	if color != "" {
		seriesOpts = append(seriesOpts,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: color}),
		)
	}

	line.AddSeries(curve.Metric, points, seriesOpts...)

	return line
}

// IterationLabels formats model iterations as x-axis labels.
func IterationLabels(iterations []int) []string {
	labels := make([]string, len(iterations))
	for i, it := range iterations {
		labels[i] = strconv.Itoa(it)
	}

	return labels
}

// LearningCurve builds one section per curve.
func LearningCurve(theme Theme, iterations []int, curves []Curve) []Section {
	sections := make([]Section, 0, len(curves))

	for i, curve := range curves {
		sections = append(sections, Section{
			Title:    curve.Metric,
			Subtitle: curveSubtitle(iterations, curve),
			Chart:    CurveChart(theme, iterations, curve, SeriesColor(theme, i)),
		})
	}

	return sections
}

func curveSubtitle(iterations []int, curve Curve) string {
	direction := "lower is better"
	if curve.HigherIsBetter {
		direction = "higher is better"
	}

	best, at := curve.Best()
	if at < 0 || at >= len(iterations) {
		return direction + ", no finite score"
	}

	return fmt.Sprintf("%s, best %s at iteration %d",
		direction, strconv.FormatFloat(best, 'g', 6, 64), iterations[at])
}
