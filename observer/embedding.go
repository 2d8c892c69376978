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

// ObservedEmbedding wraps an oasis.EmbeddingProvider with OTEL instrumentation.
type ObservedEmbedding struct {
	inner oasis.EmbeddingProvider
	inst  *Instruments
	model string
}

// WrapEmbedding returns an instrumented embedding provider.
func WrapEmbedding(inner oasis.EmbeddingProvider, model string, inst *Instruments) *ObservedEmbedding {
	return &ObservedEmbedding{inner: inner, inst: inst, model: model}
}

func (o *ObservedEmbedding) Name() string   { return o.inner.Name() }
func (o *ObservedEmbedding) Dimensions() int { return o.inner.Dimensions() }

// embedBatchWarnThreshold flags batches large enough that most hosted
// embedding APIs either reject or silently truncate them, so the span
// carries a visible warning instead of a generic error surfacing downstream.
const embedBatchWarnThreshold = 2048

func (o *ObservedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	totalChars := 0
	for _, t := range texts {
		totalChars += len(t)
	}

	ctx, span := o.inst.Tracer.Start(ctx, "llm.embed", trace.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrEmbedTextCount.Int(len(texts)),
		AttrEmbedDimensions.Int(o.inner.Dimensions()),
		attribute.Int("llm.embed.char_count", totalChars),
	))
	defer span.End()
	start := time.Now()

	if len(texts) > embedBatchWarnThreshold {
		span.AddEvent("llm.embed.oversized_batch", trace.WithAttributes(
			attribute.Int("llm.embed.text_count", len(texts)),
			attribute.Int("llm.embed.threshold", embedBatchWarnThreshold),
		))
	}

	result, err := o.inner.Embed(ctx, texts)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	attrs := metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
	)

	o.inst.EmbedRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.EmbedDuration.Record(ctx, durationMs, attrs)
	o.inst.EmbedChars.Add(ctx, int64(totalChars), attrs)

	// Structured log
	var rec oasislog.Record
	rec.SetSeverity(oasislog.SeverityInfo)
	rec.SetBody(oasislog.StringValue("embedding completed"))
	rec.AddAttributes(
		oasislog.String("llm.model", o.model),
		oasislog.String("llm.provider", o.inner.Name()),
		oasislog.Int("llm.embed.text_count", len(texts)),
		oasislog.Int("llm.embed.char_count", totalChars),
		oasislog.Float64("llm.duration_ms", durationMs),
		oasislog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result, err
}
