package comlink

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// HandlerKind identifies the invocation strategy of a [Handler].
type HandlerKind int

const (
	// KindNonBlocking handlers take a context, are expected to honour it, and
	// are called directly on the consumer goroutine.
	KindNonBlocking HandlerKind = iota

	// KindBlocking handlers may block without regard to cancellation. They
	// run on their own goroutine.
	KindBlocking
)

func (k HandlerKind) String() string {
	switch k {
	case KindNonBlocking:
		return "non_blocking"
	case KindBlocking:
		return "blocking"
	default:
		return fmt.Sprintf("HandlerKind(%d)", int(k))
	}
}

// Handler processes one message value. Returning an error (or panicking)
// marks the message as failed for this attempt, leaving it on the queue.
//
// A Handler is created with [Blocking] or [NonBlocking]. The zero value is
// invalid and rejected by [New].
type Handler[T any] struct {
	kind        HandlerKind
	blocking    func(T) error
	nonBlocking func(context.Context, T) error
}

// Blocking wraps a handler that may block without observing cancellation,
// such as one calling a synchronous client library.
func Blocking[T any](fn func(T) error) Handler[T] {
	return Handler[T]{kind: KindBlocking, blocking: fn}
}

// NonBlocking wraps a context-aware handler. The context carries the message
// being processed (see [FromContext]).
func NonBlocking[T any](fn func(context.Context, T) error) Handler[T] {
	return Handler[T]{kind: KindNonBlocking, nonBlocking: fn}
}

// Kind returns the handler's invocation strategy.
func (h Handler[T]) Kind() HandlerKind {
	return h.kind
}

func (h Handler[T]) validate() error {
	switch h.kind {
	case KindBlocking:
		if h.blocking == nil {
			return errors.New("blocking handler func cannot be nil")
		}
	case KindNonBlocking:
		if h.nonBlocking == nil {
			return errors.New("handler must be created with Blocking or NonBlocking")
		}
	default:
		return fmt.Errorf("unknown handler kind %s", h.kind)
	}

	return nil
}

// invokeFunc is the uniform invocation contract used by the dispatch loop.
type invokeFunc[T any] func(ctx context.Context, v T) error

// invoker picks the invocation strategy for h. It is called once, when the
// consumer is constructed.
func (h Handler[T]) invoker(pool *WorkerPool) invokeFunc[T] {
	if h.kind == KindBlocking {
		fn := h.blocking

		return func(ctx context.Context, v T) error {
			return invokeOffLoop(ctx, pool, fn, v)
		}
	}

	fn := h.nonBlocking

	return func(ctx context.Context, v T) (err error) {
		defer recoverHandlerPanic(&err)
		return fn(ctx, v)
	}
}

// invokeOffLoop runs fn on its own goroutine and waits for it, or for ctx to
// be done. When ctx wins, fn keeps running in the background and its result
// is discarded; its worker pool slot is released when it returns.
func invokeOffLoop[T any](ctx context.Context, pool *WorkerPool, fn func(T) error, v T) error {
	if pool != nil {
		if err := pool.acquire(ctx); err != nil {
			return fmt.Errorf("failed to acquire worker: %w", err)
		}
	}

	done := make(chan error, 1)

	go func() {
		if pool != nil {
			defer pool.release()
		}

		done <- callBlocking(fn, v)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("stopped waiting for blocking handler: %w", ctx.Err())
	}
}

func callBlocking[T any](fn func(T) error, v T) (err error) {
	defer recoverHandlerPanic(&err)
	return fn(v)
}

// PanicError is the failure reported for a handler that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

func recoverHandlerPanic(err *error) {
	if r := recover(); r != nil {
		*err = &PanicError{Value: r}
	}
}

// WorkerPool bounds the number of blocking handlers running at the same time
// across every consumer sharing the pool. Abandoned handlers (see [Blocking])
// keep their slot until they return.
type WorkerPool struct {
	sem  *semaphore.Weighted
	size int
}

// NewWorkerPool creates a pool with size slots. Sizes below 1 are treated as 1.
func NewWorkerPool(size int) *WorkerPool {
	size = max(size, 1)

	return &WorkerPool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size returns the number of slots in the pool.
func (p *WorkerPool) Size() int {
	return p.size
}

func (p *WorkerPool) acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

func (p *WorkerPool) release() {
	p.sem.Release(1)
}
