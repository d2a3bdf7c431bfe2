// Package sqs provides an AWS SQS backend for comlink.
//
// [Queue] implements [github.com/slackmgr/comlink.Queue] and
// [github.com/slackmgr/comlink.VisibilityChanger] on top of the SQS
// SendMessage, ReceiveMessage, DeleteMessage and ChangeMessageVisibility
// APIs. Standard and FIFO queues are supported.
//
// Create a queue with [New] and initialise it with [Queue.Init]:
//
//	queue, err := sqs.New(&awsCfg, "events.fifo", logger,
//	    sqs.WithCreateQueue(),
//	).Init(ctx)
//
// Then pass it to a consumer:
//
//	consumer, err := comlink.NewRaw(queue, comlink.Blocking(process), logger,
//	    comlink.WithVisibilityHeartbeat(10*time.Minute),
//	)
//
// # FIFO Queues
//
// Messages sent to a FIFO queue must carry a group ID, set with
// [github.com/slackmgr/comlink.WithGroupID]. If no deduplication ID is given,
// [Queue.Put] derives one from a SHA-256 hash of the group ID and body.
//
// # Receipt Handles
//
// Deleting or changing the visibility of a message with a stale receipt
// handle returns an error wrapping
// [github.com/slackmgr/comlink.ErrInvalidReceiptHandle].
package sqs
