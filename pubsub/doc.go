// Package pubsub provides a Google Cloud Pub/Sub implementation of
// comlink.Queue.
//
// Put publishes to a topic through a batching publisher. Take uses
// synchronous pull on a subscription and then sets the ack deadline of every
// pulled message to the requested visibility timeout; the ack ID is the
// receipt handle. Remove acknowledges and ChangeVisibility modifies the ack
// deadline, so the consumer visibility heartbeat works unchanged.
//
// Pub/Sub caps ack deadlines at 600 seconds; longer visibility timeouts are
// capped. ReceiveCount is the delivery attempt, which Pub/Sub only reports
// for subscriptions with a dead letter policy; it is 0 otherwise.
//
// Usage:
//
//	client, err := pubsub.NewClient(ctx, projectID)
//	...
//	queue, err := comlinkpubsub.New(client, "orders", "orders-worker", logger)
//	...
//	queue, err = queue.Init()
//	...
//	defer queue.Close()
package pubsub
