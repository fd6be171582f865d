package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const sessionTracerName = "agentum-session"

func sessionTracer() trace.Tracer {
	return Tracer(sessionTracerName)
}

// TraceSessionCreate creates a span around session creation (metadata row and
// directory allocation).
func TraceSessionCreate(ctx context.Context, sessionID, userID string) (context.Context, trace.Span) {
	ctx, span := sessionTracer().Start(ctx, "session.create", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("user_id", userID),
	)
	return ctx, span
}

// TraceSessionRun creates a span spanning the full lifetime of a supervised
// agent process, from spawn to exit classification.
func TraceSessionRun(ctx context.Context, sessionID, profile string) (context.Context, trace.Span) {
	ctx, span := sessionTracer().Start(ctx, "session.run", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("permission_profile", profile),
	)
	return ctx, span
}

// TraceSessionEnd records the terminal outcome of a session run span.
func TraceSessionEnd(span trace.Span, state string, err error) {
	span.SetAttributes(attribute.String("final_state", state))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// TracePermissionDecision creates a span for a single permission rule
// evaluation against the agent's tool call.
func TracePermissionDecision(ctx context.Context, sessionID, tool string) (context.Context, trace.Span) {
	ctx, span := sessionTracer().Start(ctx, "permission.decide", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("tool", tool),
	)
	return ctx, span
}

// TracePermissionResult records the decision reached for a permission span.
func TracePermissionResult(span trace.Span, decision string) {
	span.SetAttributes(attribute.String("decision", decision))
}
