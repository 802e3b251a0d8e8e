package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/Aidin1998/pincex_spot/pkg/models"
)

const meterName = "pincex-engine"

// instruments mirror the prometheus collectors on the global otel meter
// provider.
type instruments struct {
	matchDuration metric.Float64Histogram
	trades        metric.Int64Counter
}

func newInstruments(logger *zap.Logger) instruments {
	meter := otel.GetMeterProvider().Meter(meterName)
	inst := instruments{}

	var err error
	inst.matchDuration, err = meter.Float64Histogram("engine.match.duration",
		metric.WithDescription("Duration of one matching loop"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("Failed to create match duration instrument", zap.Error(err))
		inst.matchDuration = noop.Float64Histogram{}
	}
	inst.trades, err = meter.Int64Counter("engine.trades",
		metric.WithDescription("Trades executed by the matching engine"),
		metric.WithUnit("{trade}"))
	if err != nil {
		logger.Warn("Failed to create trade counter instrument", zap.Error(err))
		inst.trades = noop.Int64Counter{}
	}
	return inst
}

func (i instruments) recordMatch(ctx context.Context, symbol models.Symbol, d time.Duration) {
	i.matchDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("symbol", string(symbol))))
}

func (i instruments) recordTrade(ctx context.Context, symbol models.Symbol) {
	i.trades.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", string(symbol))))
}
