// Package telemetry defines the logging, metrics, and tracing contracts used
// across the session runtime: every staged-graph node, tool invocation, and
// knowledge-store repair is observed through these three small interfaces.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging. Implementations typically delegate to
// goa.design/clue/log, but the interface stays small so tests can supply
// lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter/timer/gauge helpers for per-phase budget tracking
// (input/output tokens, duration, tool-call counts, repair events).
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation over OpenTelemetry so node handlers remain
// agnostic of the configured provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span covering one graph node or tool
// invocation.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// NodeTelemetry captures the per-node metrics recorded in facts.debug, mirroring
// spec §4.7: input/output tokens, wall-clock duration, tool-call count, cache
// hits, and repair events for one staged-graph node execution.
type NodeTelemetry struct {
	DurationMs      int64
	InputTokens     int
	OutputTokens    int
	ToolCallCount   int
	CacheHits       int
	RepairEvents    int
	Model           string
	Extra           map[string]any
}
