// Package comlink consumes messages from an at-least-once, visibility-timeout
// based message queue and dispatches them to a caller-supplied handler. A
// message is removed from the queue only after its handler returns without
// error; failed messages become visible again once their visibility timeout
// expires, which is the only retry mechanism.
//
// # Queue
//
// [Queue] is the transport contract: Put, Take and Remove. Implementations
// live in sub-packages:
//
//   - [github.com/slackmgr/comlink/sqs]: AWS SQS (standard and FIFO queues)
//   - [github.com/slackmgr/comlink/dynamodb]: a DynamoDB table used as a queue
//   - [github.com/slackmgr/comlink/postgres]: a PostgreSQL table used as a queue
//   - [github.com/slackmgr/comlink/pubsub]: Google Cloud Pub/Sub topics and subscriptions
//   - [github.com/slackmgr/comlink/memory]: an in-process queue for tests and local runs
//
// Every implementation must abort an in-flight Take when its context is
// cancelled. The consumer relies on this to stop without waiting out a long
// poll.
//
// # Handlers
//
// A [Handler] is created once with either [Blocking] or [NonBlocking]:
//
//	h := comlink.NonBlocking(func(ctx context.Context, o Order) error {
//	    return store.Save(ctx, o)
//	})
//
// Non-blocking handlers are called directly on the consumer goroutine and are
// expected to honour their context. Blocking handlers are run on a separate
// goroutine (optionally bounded by a shared [WorkerPool]) so the consumer can
// give up on them when its run context is cancelled.
//
// # Consumer
//
// Create a consumer with [New] (or [NewRaw] when the body should be passed
// through unparsed) and run it until a [StopToken] is set:
//
//	stop, release := comlink.NotifyStop()
//	defer release()
//
//	consumer, err := comlink.New(queue, comlink.JSONParser[Order](), h, logger,
//	    comlink.WithBatchSize(10),
//	    comlink.WithVisibilityTimeout(60),
//	)
//	if err != nil {
//	    return err
//	}
//
//	return consumer.Run(ctx, stop)
//
// Each loop iteration races a receive against the stop token. When the token
// wins, the in-flight receive is cancelled and Run returns nil. Messages of a
// batch are dispatched sequentially in the order they were received; the
// token is checked before each one and any remaining messages are left
// unacknowledged.
//
// Per-message outcomes are reported to a [Recorder]; see
// [github.com/slackmgr/comlink/telemetry] for an OpenTelemetry one.
//
// Cancelling the context passed to Run is a hard abort: Run returns the
// context error and stops waiting for blocking handlers.
//
// # Delivery Semantics
//
// Delivery is at-least-once. The consumer never deduplicates and gives no
// ordering guarantee across batches or across consumer instances. Running
// several consumers against the same queue (see [RunAll]) is the intended way
// to scale; the queue's visibility timeout arbitrates between them.
package comlink
