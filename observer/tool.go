package observer

import (
	"context"
	"encoding/json"
	"time"

	oasis "github.com/oasis-run/core"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oasislog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// toolCatalog is the subset of *oasis.ToolManager this package instruments.
// Kept as a local interface rather than depending on the concrete manager so
// tests can substitute a fake catalog without registering real tool packs.
type toolCatalog interface {
	Definitions() []oasis.ToolDefinition
	Execute(ctx context.Context, name string, input json.RawMessage) (oasis.ToolOutput, error)
}

// ObservedTool wraps a tool catalog (normally *oasis.ToolManager) with OTEL
// instrumentation, emitting one span/metric/log record per dispatched call.
type ObservedTool struct {
	inner toolCatalog
	inst  *Instruments
}

// WrapTool returns an instrumented catalog that proxies Definitions/Execute
// to inner, recording telemetry around every Execute call.
func WrapTool(inner toolCatalog, inst *Instruments) *ObservedTool {
	return &ObservedTool{inner: inner, inst: inst}
}

func (o *ObservedTool) Definitions() []oasis.ToolDefinition {
	return o.inner.Definitions()
}

func (o *ObservedTool) Execute(ctx context.Context, name string, input json.RawMessage) (oasis.ToolOutput, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		AttrToolName.String(name),
	))
	defer span.End()
	start := time.Now()

	result, err := o.inner.Execute(ctx, name, input)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if !result.Success {
		status = "tool_error"
	}
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(
		AttrToolStatus.String(status),
		AttrToolResultLength.Int(len(result.Content)),
	)

	o.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
		AttrToolName.String(name),
		attribute.String("status", status),
	))
	o.inst.ToolDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrToolName.String(name),
	))

	// Structured log
	var rec oasislog.Record
	rec.SetSeverity(oasislog.SeverityInfo)
	rec.SetBody(oasislog.StringValue("tool executed"))
	rec.AddAttributes(
		oasislog.String("tool.name", name),
		oasislog.String("tool.status", status),
		oasislog.Int("tool.result_length", len(result.Content)),
		oasislog.Float64("tool.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}
