package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/2389/ava-gateway/internal/pipeline"

var tracer = otel.Tracer(scopeName)

type instruments struct {
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
	tokens      metric.Int64Counter
}

var (
	instOnce sync.Once
	inst     instruments
)

// initInstruments binds against whatever MeterProvider is global at first use.
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(scopeName)

		inst.invocations, _ = m.Int64Counter("ava.pipeline.invocations.total",
			metric.WithDescription("Assistant invocations by tool and status"),
		)
		inst.duration, _ = m.Float64Histogram("ava.pipeline.duration",
			metric.WithDescription("Assistant invocation wall time"),
			metric.WithUnit("s"),
		)
		inst.tokens, _ = m.Int64Counter("ava.pipeline.tokens.total",
			metric.WithDescription("Chat completion tokens consumed"),
		)
	})
}

func recordMetrics(ctx context.Context, tool, status string, elapsed time.Duration, prompt, completion int64) {
	initInstruments()

	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	if inst.invocations != nil {
		inst.invocations.Add(ctx, 1, attrs)
	}
	if inst.duration != nil {
		inst.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if inst.tokens != nil {
		inst.tokens.Add(ctx, prompt, metric.WithAttributes(attribute.String("direction", "prompt")))
		inst.tokens.Add(ctx, completion, metric.WithAttributes(attribute.String("direction", "completion")))
	}
}
