package gateway

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/2389/ava-gateway/internal/gateway"

type instruments struct {
	lagged  metric.Int64Counter
	streams metric.Int64UpDownCounter
}

var (
	instOnce sync.Once
	inst     instruments
)

func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(scopeName)

		inst.lagged, _ = m.Int64Counter("ava.gateway.lagged_events.total",
			metric.WithDescription("Events dropped for lagging stream subscribers"),
		)
		inst.streams, _ = m.Int64UpDownCounter("ava.gateway.streams.active",
			metric.WithDescription("Open event streams by transport"),
		)
	})
}

func recordLag(ctx context.Context, skipped uint64) {
	initInstruments()
	if inst.lagged != nil {
		inst.lagged.Add(ctx, int64(skipped))
	}
}

func trackStream(ctx context.Context, transport string, delta int64) {
	initInstruments()
	if inst.streams != nil {
		inst.streams.Add(ctx, delta, metric.WithAttributes(attribute.String("transport", transport)))
	}
}
