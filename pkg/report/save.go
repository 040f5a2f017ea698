package report

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/metricplot/pkg/plotpage"
)

// HTMLFile is the learning-curve page written when Options.HTML is set.
const HTMLFile = "learning_curve.html"

// Options controls which files Save writes.
type Options struct {
	// MetricsFile names the score table. Empty means DefaultMetricsFile.
	MetricsFile string
	HTML        bool
	Theme       plotpage.Theme
	// Title is shown on the learning-curve page.
	Title  string
	Logger *slog.Logger
}

type reportFile struct {
	name  string
	write func(io.Writer) error
}

// Save writes every report file for r into dir, creating dir if needed.
// It returns the paths written, in order.
func Save(ctx context.Context, dir string, r *Result, opts Options) ([]string, error) {
	err := r.Validate()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	metricsFile := opts.MetricsFile
	if metricsFile == "" {
		metricsFile = DefaultMetricsFile
	}

	err = os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	writers := []reportFile{
		{PartialStatsFile, func(w io.Writer) error { return WritePartialStats(w, r) }},
		{metricsFile, func(w io.Writer) error { return WriteScores(w, r) }},
		{EventsFile, func(w io.Writer) error {
			WriteEvents(ctx, NewEventLogger(w), r)

			return nil
		}},
	}

	if opts.HTML {
		writers = append(writers, reportFile{HTMLFile, func(w io.Writer) error {
			return r.LearningCurve(opts.Title, opts.Theme).Render(w)
		}})
	}

	written := make([]string, 0, len(writers)+2)

	for _, wr := range writers {
		path := filepath.Join(dir, wr.name)

		err = writeFile(path, wr.write)
		if err != nil {
			return written, err
		}

		written = append(written, path)
	}

	err = metaPersister.Save(dir, r.Meta())
	if err != nil {
		return written, fmt.Errorf("write metadata: %w", err)
	}

	written = append(written, metaPersister.Path(dir))

	err = resultPersister.Save(dir, r)
	if err != nil {
		return written, fmt.Errorf("write result: %w", err)
	}

	written = append(written, resultPersister.Path(dir))

	logger.InfoContext(ctx, "report: saved", "dir", dir, "files", len(written))

	return written, nil
}

// LearningCurve builds the learning-curve page for r.
func (r *Result) LearningCurve(title string, theme plotpage.Theme) *plotpage.Page {
	if title == "" {
		title = "Learning curve"
	}

	page := plotpage.NewPage(title, fmt.Sprintf("%d checkpoints, %d metrics", len(r.Iterations), len(r.Metrics))).
		WithTheme(theme)
	page.Add(plotpage.LearningCurve(theme, r.Iterations, r.Curves())...)

	return page
}

// Curves returns the score trajectory of every metric.
func (r *Result) Curves() []plotpage.Curve {
	curves := make([]plotpage.Curve, len(r.Metrics))
	for i, name := range r.Metrics {
		curves[i] = plotpage.Curve{Metric: name, Scores: r.Scores[i], HigherIsBetter: r.Maximize[i]}
	}

	return curves
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	defer func() {
		err = errors.Join(err, file.Close())
	}()

	buf := bufio.NewWriter(file)

	err = write(buf)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	err = buf.Flush()
	if err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}

	return nil
}
