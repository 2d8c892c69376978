package observer

import (
	"context"
	"time"

	oasis "github.com/oasis-run/core"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oasislog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedAgent wraps any Agent to emit OTEL lifecycle spans, metrics, and logs.
// The wrapper creates one span for each Execute call, tagged with the RunContext's
// request/session ids. The span's context is not passed to the inner agent, so
// inner operations (LLM calls, tool dispatch, etc.) are not recorded as its children.
type ObservedAgent struct {
	inner oasis.Agent
	inst  *Instruments
}

// WrapAgent returns an instrumented Agent that emits lifecycle telemetry.
func WrapAgent(inner oasis.Agent, inst *Instruments) *ObservedAgent {
	return &ObservedAgent{inner: inner, inst: inst}
}

func (o *ObservedAgent) Name() string        { return o.inner.Name() }
func (o *ObservedAgent) Description() string { return o.inner.Description() }

// Execute wraps the inner agent's Execute, emitting an agent.execute span
// around the call. run carries its own
// request/session ids and tier, which become span attributes rather than
// a concrete-type switch — an Agent implementation is opaque to this package.
func (o *ObservedAgent) Execute(run *oasis.RunContext) (oasis.AgentResult, error) {
	ctx, span := StartRunSpan(o.inst.Tracer, context.Background(), "agent.execute", run,
		AttrAgentName.String(o.inner.Name()),
	)
	defer span.End()
	start := time.Now()

	span.AddEvent("agent.started")

	result, err := o.inner.Execute(run)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"

	switch {
	case run.Aborted() && err != nil:
		status = "aborted"
		span.AddEvent("agent.aborted")
		span.SetStatus(codes.Error, "aborted")
	case err != nil:
		status = "error"
		span.AddEvent("agent.failed", trace.WithAttributes(
			attribute.String("error", err.Error()),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.AddEvent("agent.completed")
	}

	span.SetAttributes(
		AttrAgentStatus.String(status),
		AttrTokensInput.Int(result.Usage.InputTokens),
		AttrTokensOutput.Int(result.Usage.OutputTokens),
	)

	// Metrics
	attrs := metric.WithAttributes(
		AttrAgentName.String(o.inner.Name()),
		attribute.String("status", status),
		attribute.String("tier", string(run.Tier)),
	)
	o.inst.AgentExecutions.Add(ctx, 1, attrs)
	o.inst.AgentDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrAgentName.String(o.inner.Name()),
		attribute.String("tier", string(run.Tier)),
	))

	// Structured log
	var rec oasislog.Record
	rec.SetSeverity(oasislog.SeverityInfo)
	rec.SetBody(oasislog.StringValue("agent execution completed"))
	rec.AddAttributes(
		oasislog.String("agent.name", o.inner.Name()),
		oasislog.String("agent.tier", string(run.Tier)),
		oasislog.String("agent.session_id", run.SessionID),
		oasislog.String("agent.status", status),
		oasislog.Int("tokens.input", result.Usage.InputTokens),
		oasislog.Int("tokens.output", result.Usage.OutputTokens),
		oasislog.Float64("duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}

// compile-time check
var _ oasis.Agent = (*ObservedAgent)(nil)
