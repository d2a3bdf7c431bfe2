package main

import (
	"context"
	"fmt"

	"github.com/slackmgr/types"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// consumeMetrics keeps the consumer's measurements in-process so they can be
// summarised when the command exits.
type consumeMetrics struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

func newConsumeMetrics() *consumeMetrics {
	reader := sdkmetric.NewManualReader()

	return &consumeMetrics{
		reader:   reader,
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
}

// totals returns the sum of every counter and the observation count of every
// histogram, keyed by instrument name.
func (m *consumeMetrics) totals(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}

	totals := make(map[string]int64)

	for _, sm := range rm.ScopeMetrics {
		for _, instrument := range sm.Metrics {
			switch data := instrument.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					totals[instrument.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					totals[instrument.Name] += int64(dp.Count) //nolint:gosec // Observation counts fit an int64
				}
			}
		}
	}

	return totals, nil
}

func (m *consumeMetrics) logSummary(ctx context.Context, logger types.Logger) {
	totals, err := m.totals(ctx)
	if err != nil {
		logger.Errorf("Failed to summarise consumer metrics: %v", err)
		return
	}

	fields := make(map[string]any, len(totals))
	for name, v := range totals {
		fields[name] = v
	}

	logger.WithFields(fields).Info("Consumer metrics")
}

func (m *consumeMetrics) shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
