package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "studyprogress"

var globalTracer trace.Tracer

// InitGlobalTracer binds the package tracer to the current global provider.
func InitGlobalTracer() {
	globalTracer = otel.Tracer(instrumentationName)
}

// GetGlobalTracer returns the package tracer, falling back to the global provider.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		globalTracer = otel.Tracer(instrumentationName)
	}
	return globalTracer
}

// TraceFunction starts a span named "<component>.<function>".
func TraceFunction(ctx context.Context, component, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("%s.%s", component, functionName)
	return GetGlobalTracer().Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceSessionFunction starts a span for the study session manager.
func TraceSessionFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "session", functionName, attributes...)
}

// TraceQuizFunction starts a span for the quiz scoring engine.
func TraceQuizFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "quiz", functionName, attributes...)
}

// TraceDifficultyFunction starts a span for difficulty recalibration.
func TraceDifficultyFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "difficulty", functionName, attributes...)
}

// TraceGoalFunction starts a span for the goal deadline monitor.
func TraceGoalFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "goal", functionName, attributes...)
}

// TraceStoreFunction starts a span for a progress store call.
func TraceStoreFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "store", functionName, attributes...)
}

// TraceCheckpointFunction starts a span for checkpoint persistence.
func TraceCheckpointFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "checkpoint", functionName, attributes...)
}

// TraceWorkerFunction starts a span for a scheduled worker job.
func TraceWorkerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "worker", functionName, attributes...)
}

// TraceHandlerFunction starts a span for an HTTP handler.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// AttributeUserID returns a tracing attribute for a user ID.
func AttributeUserID(id int) attribute.KeyValue {
	return attribute.Int("user.id", id)
}

// AttributeItemID returns a tracing attribute for a study item ID.
func AttributeItemID(id int) attribute.KeyValue {
	return attribute.Int("item.id", id)
}

// AttributeItemSetID returns a tracing attribute for an item set ID.
func AttributeItemSetID(id int) attribute.KeyValue {
	return attribute.Int("item_set.id", id)
}

// AttributeSessionID returns a tracing attribute for a study or quiz session ID.
func AttributeSessionID(id string) attribute.KeyValue {
	return attribute.String("session.id", id)
}

// AttributeGoalID returns a tracing attribute for a goal ID.
func AttributeGoalID(id int) attribute.KeyValue {
	return attribute.Int("goal.id", id)
}

// AttributeActivityType returns a tracing attribute for a session activity type.
func AttributeActivityType(activity fmt.Stringer) attribute.KeyValue {
	return attribute.String("session.activity_type", activity.String())
}

// AttributeAction returns a tracing attribute for a bulk action name.
func AttributeAction(action string) attribute.KeyValue {
	return attribute.String("goal.bulk_action", action)
}

// AttributeLimit returns a tracing attribute for a limit value.
func AttributeLimit(limit int) attribute.KeyValue {
	return attribute.Int("limit", limit)
}

// TraceDatabaseFunction starts a span for connection and migration work.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}
