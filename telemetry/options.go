package telemetry

import (
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const defaultMeterName = "github.com/slackmgr/comlink"

// Option is a functional option for configuring a Recorder.
type Option func(*options)

type options struct {
	meterProvider metric.MeterProvider
	meterName     string
	queueName     string
}

func newOptions() *options {
	return &options{
		meterProvider: otel.GetMeterProvider(),
		meterName:     defaultMeterName,
	}
}

// WithMeterProvider sets the provider the instruments are created from.
// Default: the global provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = provider
	}
}

// WithMeterName sets the instrumentation scope name.
func WithMeterName(name string) Option {
	return func(o *options) {
		o.meterName = name
	}
}

// WithQueueName adds a queue attribute to every recorded measurement.
func WithQueueName(name string) Option {
	return func(o *options) {
		o.queueName = name
	}
}

func (o *options) validate() error {
	if o.meterProvider == nil {
		return errors.New("meter provider cannot be nil")
	}

	if o.meterName == "" {
		return errors.New("meter name cannot be empty")
	}

	return nil
}
