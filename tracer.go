package core

import "context"

// Tracer creates spans for the execution loop, tool dispatch, and the
// parallel sub-agent executor. The observer package provides an OTEL-backed
// implementation; when no Tracer is configured, callers skip span creation
// via a nil check rather than a no-op implementation, keeping the hot path
// allocation-free.
type Tracer interface {
	// Start creates a new span and returns a child context carrying it.
	// Callers must call Span.End() when the operation completes.
	Start(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span)
}

// Span represents one traced operation.
type Span interface {
	SetAttr(attrs ...SpanAttr)
	Event(name string, attrs ...SpanAttr)
	Error(err error)
	End()
}

// SpanAttr is a key-value attribute attached to a span or event.
type SpanAttr struct {
	Key   string
	Value any
}

func StringAttr(k, v string) SpanAttr    { return SpanAttr{Key: k, Value: v} }
func IntAttr(k string, v int) SpanAttr   { return SpanAttr{Key: k, Value: v} }
func BoolAttr(k string, v bool) SpanAttr { return SpanAttr{Key: k, Value: v} }
func Float64Attr(k string, v float64) SpanAttr {
	return SpanAttr{Key: k, Value: v}
}
