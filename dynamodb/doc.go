// Package dynamodb provides a DynamoDB-backed implementation of the
// [github.com/slackmgr/comlink.Queue] interface.
//
// # Overview
//
// Messages are stored in a single table. The partition key ("pk") is the
// queue name and the sort key ("sk") orders messages by enqueue time:
//
//   - Messages: MSG#<unix_nanos>#<message_id>
//
// Each item carries its own visibility state. [Queue.Take] claims visible
// messages with a conditional UpdateItem, so a message is delivered to one
// consumer at a time even when many consumers share the queue. Every claim
// writes a fresh receipt token; [Queue.Remove] and [Queue.ChangeVisibility]
// are conditional on that token and fail with
// [github.com/slackmgr/comlink.ErrInvalidReceiptHandle] once the message has
// been redelivered.
//
// # Getting Started
//
//	queue := dynamodb.New(&awsCfg, tableName, "events", logger,
//	    dynamodb.WithPollInterval(500*time.Millisecond),
//	)
//
//	if err := queue.Connect(); err != nil {
//	    return err
//	}
//
//	if err := queue.Init(ctx, false); err != nil {
//	    return err
//	}
//
// By default, [Queue.Connect] creates an AWS SDK v2 DynamoDB client from the
// supplied [aws.Config]. Supply [WithAPI] to inject a custom or mock
// implementation.
//
// # TTL Behaviour
//
// Messages expire after 4 days by default, configurable via
// [WithMessageRetention]. TTL values are stored as Unix timestamps and rely on
// DynamoDB's built-in TTL feature for deletion.
//
// # Concurrency
//
// [Queue] is safe for concurrent use by multiple goroutines.
package dynamodb
