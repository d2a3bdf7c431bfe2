package pubsub

import (
	"errors"
	"time"
)

// maxAckDeadlineSeconds is the longest ack deadline Pub/Sub accepts.
const maxAckDeadlineSeconds = 600

type Option func(*Options)

type Options struct {
	publisherDelayThreshold time.Duration
	publisherCountThreshold int
	publisherByteThreshold  int
	messageOrdering         bool
	minPullTimeout          time.Duration
	pubsubClient            pubsubClient
}

func newOptions() *Options {
	return &Options{
		publisherDelayThreshold: 10 * time.Millisecond,
		publisherCountThreshold: 100,
		publisherByteThreshold:  1e6, // 1 MB
		messageOrdering:         true,
		minPullTimeout:          time.Second,
	}
}

func (o *Options) validate() error {
	if o.publisherDelayThreshold < 0 {
		return errors.New("publisher delay threshold must be non-negative")
	}

	if o.publisherCountThreshold <= 0 {
		return errors.New("publisher count threshold must be greater than zero")
	}

	if o.publisherByteThreshold <= 0 {
		return errors.New("publisher byte threshold must be greater than zero")
	}

	if o.minPullTimeout < 100*time.Millisecond || o.minPullTimeout > 20*time.Second {
		return errors.New("min pull timeout must be between 100 milliseconds and 20 seconds")
	}

	return nil
}

func WithPublisherDelayThreshold(d time.Duration) Option {
	return func(o *Options) {
		o.publisherDelayThreshold = d
	}
}

func WithPublisherCountThreshold(n int) Option {
	return func(o *Options) {
		o.publisherCountThreshold = n
	}
}

func WithPublisherByteThreshold(n int) Option {
	return func(o *Options) {
		o.publisherByteThreshold = n
	}
}

// WithoutMessageOrdering disables ordering keys. The group ID put option is
// then ignored.
func WithoutMessageOrdering() Option {
	return func(o *Options) {
		o.messageOrdering = false
	}
}

// WithMinPullTimeout sets how long a pull waits when the requested wait time
// is zero. Default: 1 second.
func WithMinPullTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.minPullTimeout = d
	}
}

// WithPubSubClient sets a custom pubsubClient implementation for testing.
func WithPubSubClient(client pubsubClient) Option {
	return func(o *Options) {
		o.pubsubClient = client
	}
}
