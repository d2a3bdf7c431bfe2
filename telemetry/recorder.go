package telemetry

import (
	"context"
	"fmt"
	"slices"

	"github.com/slackmgr/comlink"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var _ comlink.Recorder = (*Recorder)(nil)

// Recorder implements comlink.Recorder using OpenTelemetry.
type Recorder struct {
	received          metric.Int64Counter
	receiveErrors     metric.Int64Counter
	processed         metric.Int64Counter
	processingLatency metric.Float64Histogram
	baseAttrs         []attribute.KeyValue
}

// NewRecorder creates the instruments and returns a Recorder. It is safe for
// concurrent use by several consumers.
func NewRecorder(opts ...Option) (*Recorder, error) {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	if err := o.validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry options: %w", err)
	}

	meter := o.meterProvider.Meter(o.meterName)

	received, err := meter.Int64Counter(
		"comlink_messages_received_total",
		metric.WithDescription("Total number of messages received from the queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create comlink_messages_received_total counter: %w", err)
	}

	receiveErrors, err := meter.Int64Counter(
		"comlink_receive_errors_total",
		metric.WithDescription("Total number of failed receive calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create comlink_receive_errors_total counter: %w", err)
	}

	processed, err := meter.Int64Counter(
		"comlink_messages_processed_total",
		metric.WithDescription("Total number of dispatched messages by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create comlink_messages_processed_total counter: %w", err)
	}

	latency, err := meter.Float64Histogram(
		"comlink_processing_duration_seconds",
		metric.WithDescription("Time taken to parse, handle and remove a message"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create comlink_processing_duration_seconds histogram: %w", err)
	}

	var baseAttrs []attribute.KeyValue
	if o.queueName != "" {
		baseAttrs = append(baseAttrs, attribute.String("queue", o.queueName))
	}

	return &Recorder{
		received:          received,
		receiveErrors:     receiveErrors,
		processed:         processed,
		processingLatency: latency,
		baseAttrs:         baseAttrs,
	}, nil
}

// RecordReceive counts received messages, or a receive error when err is
// non-nil.
func (r *Recorder) RecordReceive(ctx context.Context, count int, err error) {
	attrs := metric.WithAttributes(r.baseAttrs...)

	if err != nil {
		r.receiveErrors.Add(ctx, 1, attrs)
		return
	}

	if count > 0 {
		r.received.Add(ctx, int64(count), attrs)
	}
}

// RecordResult counts the message by outcome and records its processing time.
func (r *Recorder) RecordResult(ctx context.Context, result comlink.Result) {
	attrs := metric.WithAttributes(slices.Concat(r.baseAttrs, []attribute.KeyValue{
		attribute.String("outcome", result.Outcome.String()),
	})...)

	r.processed.Add(ctx, 1, attrs)
	r.processingLatency.Record(ctx, result.Duration.Seconds(), attrs)
}
