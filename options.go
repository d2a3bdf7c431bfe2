package comlink

import (
	"errors"
	"time"
)

// Option is a functional option for configuring a [Consumer].
type Option func(*Options)

// Options holds the resolved configuration of a [Consumer]. It is immutable
// once the consumer has been created.
type Options struct {
	batchSize                int32
	visibilityTimeoutSeconds int32
	waitTimeSeconds          int32
	receiveErrorBackoff      time.Duration
	stopOnReceiveError       bool
	removeTimeout            time.Duration
	workerPool               *WorkerPool
	recorder                 Recorder
	heartbeatMaxExtension    time.Duration
	heartbeatInterval        time.Duration // zero means half the visibility timeout
}

func newOptions() *Options {
	return &Options{
		batchSize:                1,
		visibilityTimeoutSeconds: 120,
		waitTimeSeconds:          20,
		receiveErrorBackoff:      5 * time.Second,
		removeTimeout:            2 * time.Second,
		recorder:                 noopRecorder{},
	}
}

func (o *Options) validate() error {
	if o.batchSize < 1 || o.batchSize > 10 {
		return errors.New("batch size must be between 1 and 10")
	}

	if o.visibilityTimeoutSeconds < 0 || o.visibilityTimeoutSeconds > 43200 {
		return errors.New("visibility timeout must be between 0 seconds and 12 hours")
	}

	if o.waitTimeSeconds < 0 || o.waitTimeSeconds > 20 {
		return errors.New("wait time must be between 0 and 20 seconds")
	}

	if o.receiveErrorBackoff < 0 {
		return errors.New("receive error backoff cannot be negative")
	}

	if o.removeTimeout <= 0 {
		return errors.New("remove timeout must be greater than zero")
	}

	if o.recorder == nil {
		return errors.New("recorder cannot be nil")
	}

	if o.heartbeatMaxExtension < 0 {
		return errors.New("visibility heartbeat max extension cannot be negative")
	}

	if o.heartbeatMaxExtension > 0 && o.visibilityTimeoutSeconds < 2 {
		return errors.New("visibility heartbeat requires a visibility timeout of at least 2 seconds")
	}

	return nil
}

// WithBatchSize sets the maximum number of messages requested per receive.
// Must be between 1 and 10. Default: 1.
func WithBatchSize(n int32) Option {
	return func(o *Options) {
		o.batchSize = n
	}
}

// WithVisibilityTimeout sets how long received messages stay hidden from
// other receivers. Must be between 0 and 43200 seconds. Default: 120.
func WithVisibilityTimeout(seconds int32) Option {
	return func(o *Options) {
		o.visibilityTimeoutSeconds = seconds
	}
}

// WithWaitTimeSeconds sets the long-poll duration of each receive. Must be
// between 0 and 20 seconds. Default: 20.
func WithWaitTimeSeconds(seconds int32) Option {
	return func(o *Options) {
		o.waitTimeSeconds = seconds
	}
}

// WithReceiveErrorBackoff sets the pause after a failed receive before the
// next attempt. The pause is cut short by the stop token. Default: 5 seconds.
func WithReceiveErrorBackoff(d time.Duration) Option {
	return func(o *Options) {
		o.receiveErrorBackoff = d
	}
}

// WithStopOnReceiveError makes Run return the transport error of a failed
// receive instead of logging it and retrying.
func WithStopOnReceiveError() Option {
	return func(o *Options) {
		o.stopOnReceiveError = true
	}
}

// WithRemoveTimeout bounds each Remove call. Removal runs on a context that
// is detached from the run context so a successful message is still
// acknowledged during a hard abort. Default: 2 seconds.
func WithRemoveTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.removeTimeout = d
	}
}

// WithWorkerPool runs blocking handlers on the given pool. A pool may be
// shared between consumers to bound blocking work process-wide.
func WithWorkerPool(pool *WorkerPool) Option {
	return func(o *Options) {
		o.workerPool = pool
	}
}

// WithRecorder sets the metrics recorder. Default: no-op.
func WithRecorder(r Recorder) Option {
	return func(o *Options) {
		o.recorder = r
	}
}

// WithVisibilityHeartbeat extends the visibility timeout of a message while
// its handler runs, every half timeout, for at most maxExtension after the
// message was received. It requires a queue implementing
// [VisibilityChanger]; other queues ignore it. Extension is best-effort: a
// failed extension stops the heartbeat for that message. Disabled by default.
func WithVisibilityHeartbeat(maxExtension time.Duration) Option {
	return func(o *Options) {
		o.heartbeatMaxExtension = maxExtension
	}
}
