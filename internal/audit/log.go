package audit

import (
	"context"
	"log/slog"
)

// LogSink decorates another sink with structured logging. Every recorded
// event is also emitted on the logger before being forwarded.
type LogSink struct {
	logger *slog.Logger
	next   Sink
}

var _ Sink = (*LogSink)(nil)

// NewLogSink wraps next so every event is logged as it is recorded.
func NewLogSink(logger *slog.Logger, next Sink) *LogSink {
	return &LogSink{logger: logger, next: next}
}

func (s *LogSink) Record(ctx context.Context, ev *Event) error {
	attrs := []any{
		slog.String("action", ev.Action),
		slog.String("document_id", ev.DocumentID),
		slog.Bool("success", ev.Success),
	}
	if ev.Step != "" {
		attrs = append(attrs,
			slog.String("step", ev.Step),
			slog.Float64("duration_ms", ev.DurationMS),
		)
	}
	if ev.Error != "" {
		attrs = append(attrs, slog.String("error", ev.Error))
	}
	s.logger.InfoContext(ctx, "audit event", attrs...)
	return s.next.Record(ctx, ev)
}
