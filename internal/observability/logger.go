package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// spanContextHandler decorates an slog.Handler so every record that fires
// inside an active span carries trace_id and span_id, letting a log line in a
// lint run be joined to its trace. Service identity (service, env, mode) is
// attached once at construction, so those keys stay at the record top level
// even after WithGroup.
type spanContextHandler struct {
	inner slog.Handler
}

func newSpanContextHandler(inner slog.Handler, cfg Config) *spanContextHandler {
	attrs := []slog.Attr{
		slog.String("service", cfg.ServiceName),
		slog.String("mode", string(cfg.Mode)),
	}

	if cfg.Environment != "" {
		attrs = append(attrs, slog.String("env", cfg.Environment))
	}

	return &spanContextHandler{inner: inner.WithAttrs(attrs)}
}

func (h *spanContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle stamps the record with the active span context, if any, and forwards
// it to the wrapped handler.
func (h *spanContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	if err := h.inner.Handle(ctx, record); err != nil {
		return fmt.Errorf("log record: %w", err)
	}

	return nil
}

func (h *spanContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &spanContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *spanContextHandler) WithGroup(name string) slog.Handler {
	return &spanContextHandler{inner: h.inner.WithGroup(name)}
}
