// Package postgres provides a PostgreSQL-backed implementation of
// comlink.Queue.
//
// It uses pgx v5 with connection pooling (pgxpool). Every queue stored in a
// database shares one messages table; rows carry the queue name, the body,
// attributes as JSONB, and the time at which the message becomes visible.
//
// # Usage
//
// Create a queue using [New] with functional options, call [Queue.Connect]
// to establish the connection pool, and then [Queue.Init] to create the
// table:
//
//	queue := postgres.New("orders", logger,
//	    postgres.WithHost("localhost"),
//	    postgres.WithPort(5432),
//	    postgres.WithUser("postgres"),
//	    postgres.WithPassword("secret"),
//	    postgres.WithDatabase("comlink"),
//	)
//
//	if err := queue.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer queue.Close(ctx)
//
//	if err := queue.Init(ctx, false); err != nil {
//	    log.Fatal(err)
//	}
//
// # Delivery
//
// [Queue.Take] claims rows with SELECT ... FOR UPDATE SKIP LOCKED, so
// consumers sharing a queue never receive the same delivery. Each claim
// writes a fresh receipt token; [Queue.Remove] and [Queue.ChangeVisibility]
// only succeed with the handle of the latest delivery and otherwise return
// comlink.ErrInvalidReceiptHandle.
//
// # Retention
//
// Messages expire after the retention period (default 4 days, see
// [WithMessageRetention]). Expired rows are never delivered and are deleted
// by a background goroutine started in [Queue.Init]; see
// [WithTTLCleanupInterval] and [WithTTLCleanupDisabled].
package postgres
