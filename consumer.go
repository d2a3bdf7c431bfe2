package comlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slackmgr/types"
)

// errStopRequested is returned internally when the stop token ends a wait.
var errStopRequested = errors.New("stop requested")

// Consumer receives messages from a [Queue] and dispatches them to a
// [Handler], removing each message only after its handler succeeded.
//
// A Consumer runs a single loop and never has more than one receive in
// flight. Run several consumers to scale out (see [RunAll]).
type Consumer[T any] struct {
	queue  Queue
	parse  ParseFunc[T]
	kind   HandlerKind
	invoke invokeFunc[T]
	opts   *Options
	logger types.Logger
}

// New creates a Consumer that parses each message body with parse before
// passing it to handler. The handler's invocation strategy is fixed here.
func New[T any](queue Queue, parse ParseFunc[T], handler Handler[T], logger types.Logger, opts ...Option) (*Consumer[T], error) {
	if queue == nil {
		return nil, errors.New("queue cannot be nil")
	}

	if parse == nil {
		return nil, errors.New("parse function cannot be nil")
	}

	if err := handler.validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	if err := options.validate(); err != nil {
		return nil, fmt.Errorf("invalid consumer options: %w", err)
	}

	logger = logger.
		WithField("component", "comlink-consumer").
		WithField("handler_kind", handler.Kind().String())

	return &Consumer[T]{
		queue:  queue,
		parse:  parse,
		kind:   handler.Kind(),
		invoke: handler.invoker(options.workerPool),
		opts:   options,
		logger: logger,
	}, nil
}

// NewRaw creates a Consumer that passes message bodies to handler unparsed.
func NewRaw(queue Queue, handler Handler[string], logger types.Logger, opts ...Option) (*Consumer[string], error) {
	return New(queue, RawBody, handler, logger, opts...)
}

// Start runs the consumer on a new goroutine. The returned channel receives
// the result of [Consumer.Run] and is then closed.
func (c *Consumer[T]) Start(ctx context.Context, stop *StopToken) <-chan error {
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		errCh <- c.Run(ctx, stop)
	}()

	c.logger.Debug("Consumer loop goroutine started")

	return errCh
}

// Run receives and dispatches messages until stop is set, returning nil. It
// returns ctx.Err() if ctx is cancelled first, and a transport error only
// when [WithStopOnReceiveError] is set.
//
// Setting stop cancels an in-flight receive; it never interrupts a running
// handler.
func (c *Consumer[T]) Run(ctx context.Context, stop *StopToken) error {
	if stop == nil {
		return errors.New("stop token cannot be nil")
	}

	c.logger.Debug("Consumer loop started")
	defer c.logger.Debug("Consumer loop exited")

	for {
		if stop.IsSet() {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := c.poll(ctx, stop)
		if err != nil {
			if errors.Is(err, errStopRequested) {
				return nil
			}

			// If the context was cancelled, return without logging an error
			if ctx.Err() != nil {
				return ctx.Err()
			}

			c.opts.recorder.RecordReceive(ctx, 0, err)

			if c.opts.stopOnReceiveError {
				return fmt.Errorf("failed to receive messages: %w", err)
			}

			c.logger.Errorf("Error receiving messages, retrying in %s: %v", c.opts.receiveErrorBackoff, err)

			if err := c.pause(ctx, stop, c.opts.receiveErrorBackoff); err != nil {
				if errors.Is(err, errStopRequested) {
					return nil
				}

				return err
			}

			continue
		}

		c.opts.recorder.RecordReceive(ctx, len(batch.messages), nil)

		if len(batch.messages) > 0 {
			c.logger.WithField("count", len(batch.messages)).Debug("Received messages")
		}

		if err := c.dispatch(ctx, stop, batch); err != nil {
			return err
		}
	}
}

type takeResult struct {
	messages   []*Message
	receivedAt time.Time
	err        error
}

// poll races one receive against the stop token. If the token wins, the
// receive is cancelled and poll waits for it to return, so there is never
// more than one receive in flight. Messages it may still have fetched are
// abandoned and reappear after their visibility timeout.
func (c *Consumer[T]) poll(ctx context.Context, stop *StopToken) (takeResult, error) {
	takeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan takeResult, 1)

	go func() {
		messages, err := c.queue.Take(takeCtx, c.opts.batchSize, c.opts.visibilityTimeoutSeconds, c.opts.waitTimeSeconds)
		resultCh <- takeResult{messages: messages, receivedAt: time.Now(), err: err}
	}()

	select {
	case res := <-resultCh:
		return res, res.err
	case <-stop.Done():
		c.logger.Debug("Stop requested, cancelling in-flight receive")
		cancel()
		<-resultCh

		return takeResult{}, errStopRequested
	case <-ctx.Done():
		<-resultCh
		return takeResult{}, ctx.Err()
	}
}

// dispatch processes the received batch one message at a time, in order. It
// returns a non-nil error only when ctx is cancelled.
func (c *Consumer[T]) dispatch(ctx context.Context, stop *StopToken, batch takeResult) error {
	messages := batch.messages

	for i, msg := range messages {
		if stop.IsSet() {
			c.logger.WithField("abandoned", len(messages)-i).Debug("Stop requested, leaving remaining messages unacknowledged")
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		result := c.process(ctx, msg, batch.receivedAt)
		c.opts.recorder.RecordResult(ctx, result)
	}

	return nil
}

// process parses, handles and acknowledges a single message received at
// receivedAt.
func (c *Consumer[T]) process(ctx context.Context, msg *Message, receivedAt time.Time) Result {
	started := time.Now()
	logger := c.logger.WithField("message_id", msg.ID)

	finish := func(outcome Outcome, err error) Result {
		return Result{
			MessageID: msg.ID,
			Outcome:   outcome,
			Err:       err,
			Duration:  time.Since(started),
		}
	}

	value, err := c.parse(msg.Body)
	if err != nil {
		logger.Errorf("Failed to parse message body: %v", err)
		return finish(OutcomeParseFailed, err)
	}

	msgCtx := NewContext(ctx, msg)

	stopHeartbeat := c.startHeartbeat(msgCtx, msg, receivedAt, logger)
	err = c.invoke(msgCtx, value)
	stopHeartbeat()

	if err != nil {
		logger.WithField("receive_count", msg.ReceiveCount).Errorf("Message handler error: %v", err)
		return finish(OutcomeHandlerFailed, err)
	}

	if err := c.remove(ctx, msg); err != nil {
		logger.Errorf("Failed to remove message: %v", err)
		return finish(OutcomeRemoveFailed, err)
	}

	logger.Debug("Message handled and removed")

	return finish(OutcomeAcked, nil)
}

// remove acknowledges msg. It must complete regardless of the run context's
// state, so it uses a detached context with a short timeout.
func (c *Consumer[T]) remove(ctx context.Context, msg *Message) error {
	removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.removeTimeout)
	defer cancel()

	return c.queue.Remove(removeCtx, msg.ReceiptHandle)
}

// pause sleeps for d, returning early when stop is set or ctx is done.
func (c *Consumer[T]) pause(ctx context.Context, stop *StopToken, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-stop.Done():
		return errStopRequested
	case <-ctx.Done():
		return ctx.Err()
	}
}
