package report

import (
	"context"
	"io"
	"log/slog"
	"math"
)

// EventsFile is the structured event log, one JSON object per line.
const EventsFile = "events.jsonl"

// WriteEvents logs one "metric value" event per (checkpoint, metric) through
// a JSON slog handler. Timestamps are omitted so the log is reproducible.
func WriteEvents(ctx context.Context, logger *slog.Logger, r *Result) {
	for k, it := range r.Iterations {
		for i, name := range r.Metrics {
			logger.InfoContext(ctx, "metric value",
				"iteration", it,
				"metric", name,
				eventValue(r.Scores[i][k]),
			)
		}
	}
}

// NewEventLogger returns a logger writing JSON lines without timestamps.
func NewEventLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}

			return a
		},
	}))
}

// eventValue keeps non-finite scores representable in JSON.
func eventValue(v float64) slog.Attr {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return slog.String("value", formatFloat(v))
	}

	return slog.Float64("value", v)
}
