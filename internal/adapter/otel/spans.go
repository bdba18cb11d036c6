package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "aia"

// StartToolCallSpan starts a span for an MCP tool call.
func StartToolCallSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "mcp.toolcall",
		trace.WithAttributes(attribute.String("toolcall.tool", tool)),
	)
}

// StartSprintSpan starts a span for a sprint execution.
func StartSprintSpan(ctx context.Context, sprintID string, agents int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "sprint.execute",
		trace.WithAttributes(
			attribute.String("sprint.id", sprintID),
			attribute.Int("sprint.agents", agents),
		),
	)
}

// StartConsensusSpan starts a span for a consensus round.
func StartConsensusSpan(ctx context.Context, agents int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "consensus.validate",
		trace.WithAttributes(attribute.Int("consensus.agents", agents)),
	)
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
