package dynamodb

import (
	"errors"
	"time"
)

// Option is a functional option for configuring a [Queue].
type Option func(*Options)

// Options holds the configuration for a [Queue]. Use [Option] functions
// (such as [WithMessageRetention] or [WithPollInterval]) to customise the
// defaults.
type Options struct {
	messageRetention time.Duration
	pollInterval     time.Duration
	baseEndpoint     string
	dynamoDBAPI      API
	clock            func() time.Time
}

func newOptions() *Options {
	return &Options{
		messageRetention: 4 * 24 * time.Hour,
		pollInterval:     time.Second,
		clock:            time.Now,
	}
}

func (o *Options) validate() error {
	if o.messageRetention < time.Minute || o.messageRetention > 14*24*time.Hour {
		return errors.New("message retention must be between 1 minute and 14 days")
	}

	if o.pollInterval < 10*time.Millisecond || o.pollInterval > 20*time.Second {
		return errors.New("poll interval must be between 10 milliseconds and 20 seconds")
	}

	if o.clock == nil {
		return errors.New("clock cannot be nil")
	}

	return nil
}

// WithMessageRetention sets how long an unremoved message is kept before
// DynamoDB TTL expires it. Expired messages are never delivered, even before
// DynamoDB deletes them. Must be between 1 minute and 14 days. Default: 4 days.
func WithMessageRetention(d time.Duration) Option {
	return func(o *Options) {
		o.messageRetention = d
	}
}

// WithPollInterval sets how often [Queue.Take] looks for visible messages
// while waiting. Must be between 10 milliseconds and 20 seconds.
// Default: 1 second.
func WithPollInterval(d time.Duration) Option {
	return func(o *Options) {
		o.pollInterval = d
	}
}

// WithBaseEndpoint overrides the DynamoDB endpoint, for example to use
// DynamoDB Local.
func WithBaseEndpoint(endpoint string) Option {
	return func(o *Options) {
		o.baseEndpoint = endpoint
	}
}

// WithAPI sets a custom [API] implementation. This is useful when a custom
// DynamoDB configuration is required, or for injecting mocks in tests.
func WithAPI(api API) Option {
	return func(o *Options) {
		o.dynamoDBAPI = api
	}
}

// WithClock sets a custom clock function used for visibility and TTL values.
// Defaults to [time.Now]. This is useful for controlling time in tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.clock = clock
	}
}
