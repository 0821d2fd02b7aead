package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "bankx-supervisor"

// StartDispatchSpan starts a span covering one dispatch.
func StartDispatchSpan(ctx context.Context, requestID, correlationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("bankx.request_id", requestID),
			attribute.String("bankx.correlation_id", correlationID),
		),
	)
}

// StartAttemptSpan starts a span for one network attempt against an agent.
func StartAttemptSpan(ctx context.Context, capability, agentID string, attempt int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "invoke.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("bankx.capability", capability),
			attribute.String("bankx.agent_id", agentID),
			attribute.Int("bankx.attempt", attempt),
		),
	)
}
