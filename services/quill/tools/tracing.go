// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const toolsTracerName = "quill.tools"

// Tracer provides OpenTelemetry tracing for tool invocations.
//
// # Description
//
// Wraps the OpenTelemetry tracer with invocation-specific span creation
// and attribute management. When disabled, returns noop spans.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	logger  *slog.Logger
	enabled bool
}

// NewTracer creates a tracer backed by the global tracer provider.
//
// # Inputs
//
//   - logger: Logger for structured logging. Uses slog.Default() if nil.
//   - enabled: Whether tracing is enabled. When false, uses noop spans.
func NewTracer(logger *slog.Logger, enabled bool) *Tracer {
	return NewTracerFromProvider(logger, otel.GetTracerProvider(), enabled)
}

// NewTracerFromProvider creates a tracer backed by an explicit provider.
func NewTracerFromProvider(logger *slog.Logger, provider trace.TracerProvider, enabled bool) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		tracer:  provider.Tracer(toolsTracerName),
		logger:  logger,
		enabled: enabled,
	}
}

// StartExecute starts a span for a tool invocation.
//
// # Outputs
//
//   - context.Context: Context with span attached.
//   - trace.Span: The created span. Caller must call EndExecute when done.
func (t *Tracer) StartExecute(ctx context.Context, inv *Invocation) (context.Context, trace.Span) {
	if t == nil || !t.enabled {
		return ctx, noop.Span{}
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool.name", inv.ToolName),
		attribute.String("tool.invocation_id", inv.ID),
	}
	if path, ok := inv.Parameters["path"].(string); ok {
		attrs = append(attrs, attribute.String("tool.path", truncateForTrace(path, 256)))
	}

	ctx, span := t.tracer.Start(ctx, "tool."+inv.ToolName,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	t.logger.DebugContext(ctx, "starting tool",
		slog.String("tool", inv.ToolName),
		slog.String("invocation_id", inv.ID),
	)

	return ctx, span
}

// EndExecute completes an invocation span.
//
// A Result with Success=false marks the span as errored even when err is nil.
func (t *Tracer) EndExecute(span trace.Span, result *Result, err error) {
	if span == nil {
		return
	}
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if result == nil {
		return
	}

	span.SetAttributes(
		attribute.Bool("tool.success", result.Success),
		attribute.Int64("tool.duration_ms", result.Duration.Milliseconds()),
		attribute.Int("tool.modified_files", len(result.ModifiedFiles)),
	)
	if module, ok := result.Metadata["module"].(string); ok && module != "" {
		span.SetAttributes(attribute.String("tool.module", module))
	}

	if !result.Success {
		span.SetStatus(codes.Error, truncateForTrace(result.Error, 256))
		return
	}
	span.SetStatus(codes.Ok, "")
}

// truncateForTrace truncates a string for use in span attributes.
func truncateForTrace(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 4 {
		if maxLen <= 0 {
			return ""
		}
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// LoggerWithTrace returns a logger with trace_id and span_id fields when
// ctx carries a valid span.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
