package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/slackmgr/comlink"
	"github.com/slackmgr/comlink/memory"
	"github.com/slackmgr/comlink/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newRecorder(t *testing.T, opts ...telemetry.Option) (*telemetry.Recorder, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	recorder, err := telemetry.NewRecorder(append([]telemetry.Option{telemetry.WithMeterProvider(provider)}, opts...)...)
	require.NoError(t, err)

	return recorder, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	metrics := map[string]metricdata.Metrics{}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			metrics[m.Name] = m
		}
	}

	return metrics
}

func sumByAttr(t *testing.T, m metricdata.Metrics, key attribute.Key) map[string]int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum for %s", m.Name)

	out := map[string]int64{}

	for _, dp := range sum.DataPoints {
		value, _ := dp.Attributes.Value(key)
		out[value.AsString()] += dp.Value
	}

	return out
}

func TestNewRecorder_Validation(t *testing.T) {
	t.Parallel()

	_, err := telemetry.NewRecorder(telemetry.WithMeterProvider(nil))
	require.Error(t, err)

	_, err = telemetry.NewRecorder(telemetry.WithMeterName(""))
	require.Error(t, err)

	recorder, err := telemetry.NewRecorder()
	require.NoError(t, err)
	assert.NotNil(t, recorder)
}

func TestRecorder_RecordReceive(t *testing.T) {
	t.Parallel()

	recorder, reader := newRecorder(t, telemetry.WithQueueName("orders"))
	ctx := context.Background()

	recorder.RecordReceive(ctx, 3, nil)
	recorder.RecordReceive(ctx, 0, nil)
	recorder.RecordReceive(ctx, 2, nil)
	recorder.RecordReceive(ctx, 0, errors.New("throttled"))

	metrics := collect(t, reader)

	received := sumByAttr(t, metrics["comlink_messages_received_total"], "queue")
	assert.Equal(t, map[string]int64{"orders": 5}, received)

	receiveErrors := sumByAttr(t, metrics["comlink_receive_errors_total"], "queue")
	assert.Equal(t, map[string]int64{"orders": 1}, receiveErrors)
}

func TestRecorder_RecordResult(t *testing.T) {
	t.Parallel()

	recorder, reader := newRecorder(t)
	ctx := context.Background()

	recorder.RecordResult(ctx, comlink.Result{MessageID: "m1", Outcome: comlink.OutcomeAcked, Duration: 20 * time.Millisecond})
	recorder.RecordResult(ctx, comlink.Result{MessageID: "m2", Outcome: comlink.OutcomeAcked, Duration: 40 * time.Millisecond})
	recorder.RecordResult(ctx, comlink.Result{MessageID: "m3", Outcome: comlink.OutcomeHandlerFailed, Err: errors.New("boom")})
	recorder.RecordResult(ctx, comlink.Result{MessageID: "m4", Outcome: comlink.OutcomeParseFailed})

	metrics := collect(t, reader)

	processed := sumByAttr(t, metrics["comlink_messages_processed_total"], "outcome")
	assert.Equal(t, map[string]int64{"acked": 2, "handler_failed": 1, "parse_failed": 1}, processed)

	histogram, ok := metrics["comlink_processing_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)

	var count uint64
	for _, dp := range histogram.DataPoints {
		count += dp.Count
	}

	assert.Equal(t, uint64(4), count)
}

func TestRecorder_WithConsumer(t *testing.T) {
	t.Parallel()

	recorder, reader := newRecorder(t)
	queue := memory.New()

	_, err := queue.Put(context.Background(), "ok")
	require.NoError(t, err)

	stop := comlink.NewStopToken()

	consumer, err := comlink.NewRaw(queue, comlink.NonBlocking(func(_ context.Context, _ string) error {
		stop.Set()
		return nil
	}), nopLogger{}, comlink.WithRecorder(recorder))
	require.NoError(t, err)

	require.NoError(t, consumer.Run(t.Context(), stop))

	processed := sumByAttr(t, collect(t, reader)["comlink_messages_processed_total"], "outcome")
	assert.Equal(t, map[string]int64{"acked": 1}, processed)
}
