package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrEnv     = "env"
	attrMode    = "mode"
	attrRun     = "run"
	attrPart    = "part"
)

// RunInfo identifies one evaluation run in every log record.
type RunInfo struct {
	Service string
	Env     string
	Mode    AppMode
	// RunID tags all records of a run. Empty means a fresh random ID.
	RunID string
}

type partKey struct{}

// WithPart returns ctx tagged with the 0-based index of the dataset part being
// processed. Records logged with the returned context carry a part attribute.
func WithPart(ctx context.Context, part int) context.Context {
	return context.WithValue(ctx, partKey{}, part)
}

// PartFromContext returns the dataset part index set by WithPart.
func PartFromContext(ctx context.Context) (int, bool) {
	part, ok := ctx.Value(partKey{}).(int)

	return part, ok
}

// RunHandler is an [slog.Handler] that stamps records with the run identity,
// the dataset part from the context and the OTel trace_id/span_id.
// Run attributes are attached at construction so they stay at the top level
// under WithGroup.
type RunHandler struct {
	inner slog.Handler
	runID string
}

// NewRunHandler wraps inner with the attributes of run.
func NewRunHandler(inner slog.Handler, run RunInfo) *RunHandler {
	runID := run.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	attrs := []slog.Attr{
		slog.String(attrService, run.Service),
		slog.String(attrMode, string(run.Mode)),
		slog.String(attrRun, runID),
	}

	if run.Env != "" {
		attrs = append(attrs, slog.String(attrEnv, run.Env))
	}

	return &RunHandler{inner: inner.WithAttrs(attrs), runID: runID}
}

// RunID returns the ID attached to every record.
func (h *RunHandler) RunID() string { return h.runID }

// Enabled delegates to the inner handler.
func (h *RunHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds the part and span context, then delegates.
func (h *RunHandler) Handle(ctx context.Context, record slog.Record) error {
	if part, ok := PartFromContext(ctx); ok {
		record.AddAttrs(slog.Int(attrPart, part))
	}

	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	err := h.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("run handler: %w", err)
	}

	return nil
}

// WithAttrs returns a RunHandler with attrs added to the inner handler.
func (h *RunHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RunHandler{inner: h.inner.WithAttrs(attrs), runID: h.runID}
}

// WithGroup returns a RunHandler with the inner handler grouped under name.
func (h *RunHandler) WithGroup(name string) slog.Handler {
	return &RunHandler{inner: h.inner.WithGroup(name), runID: h.runID}
}
