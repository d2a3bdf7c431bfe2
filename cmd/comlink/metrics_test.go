package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/slackmgr/comlink"
	"github.com/slackmgr/comlink/memory"
	"github.com/slackmgr/comlink/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeMetrics_CollectsConsumerMeasurements(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	queue := memory.New()

	for _, body := range []string{"one", "two"} {
		_, err := queue.Put(ctx, body)
		require.NoError(t, err)
	}

	metrics := newConsumeMetrics()
	t.Cleanup(func() { _ = metrics.shutdown(context.Background()) })

	recorder, err := telemetry.NewRecorder(
		telemetry.WithMeterProvider(metrics.provider),
		telemetry.WithQueueName("orders"),
	)
	require.NoError(t, err)

	logger := newLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	err = runConsumer(ctx, queue, comlink.NewStopToken(), io.Discard, 2, logger,
		comlink.WithWaitTimeSeconds(1),
		comlink.WithRecorder(recorder),
	)
	require.NoError(t, err)

	totals, err := metrics.totals(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), totals["comlink_messages_received_total"])
	assert.Equal(t, int64(2), totals["comlink_messages_processed_total"])
	assert.Equal(t, int64(2), totals["comlink_processing_duration_seconds"])
	assert.Zero(t, totals["comlink_receive_errors_total"])
}

func TestConsumeMetrics_LogSummary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	metrics := newConsumeMetrics()
	t.Cleanup(func() { _ = metrics.shutdown(context.Background()) })

	recorder, err := telemetry.NewRecorder(telemetry.WithMeterProvider(metrics.provider))
	require.NoError(t, err)

	recorder.RecordReceive(ctx, 3, nil)

	var buf bytes.Buffer

	metrics.logSummary(ctx, newLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	assert.Contains(t, buf.String(), `msg="Consumer metrics"`)
	assert.Contains(t, buf.String(), "comlink_messages_received_total=3")
}
