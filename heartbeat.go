package comlink

import (
	"context"
	"time"

	"github.com/slackmgr/types"
)

// startHeartbeat keeps msg invisible while its handler runs, until the
// maximum extension counted from receivedAt is reached. The returned
// function stops the heartbeat and waits for it to exit, so no extension can
// race the removal that follows.
func (c *Consumer[T]) startHeartbeat(ctx context.Context, msg *Message, receivedAt time.Time, logger types.Logger) func() {
	if c.opts.heartbeatMaxExtension <= 0 {
		return func() {}
	}

	changer, ok := c.queue.(VisibilityChanger)
	if !ok {
		return func() {}
	}

	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		c.runHeartbeat(hbCtx, changer, msg, receivedAt, logger)
	}()

	return func() {
		cancel()
		<-done
	}
}

func (c *Consumer[T]) runHeartbeat(ctx context.Context, changer VisibilityChanger, msg *Message, receivedAt time.Time, logger types.Logger) {
	timeout := time.Duration(c.opts.visibilityTimeoutSeconds) * time.Second

	interval := c.opts.heartbeatInterval
	if interval <= 0 {
		interval = timeout / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(receivedAt)+timeout >= c.opts.heartbeatMaxExtension {
				logger.Error("Message has reached maximum visibility timeout extension, no longer extending")
				return
			}

			if err := changer.ChangeVisibility(ctx, msg.ReceiptHandle, c.opts.visibilityTimeoutSeconds); err != nil {
				if ctx.Err() != nil {
					return
				}

				logger.Errorf("Failed to extend message visibility, no longer extending: %v", err)

				return
			}

			logger.WithField("visibility_timeout_seconds", c.opts.visibilityTimeoutSeconds).Debug("Message visibility extended")
		}
	}
}
