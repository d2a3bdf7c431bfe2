package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slackmgr/comlink"
)

var (
	_ comlink.Queue             = (*Queue)(nil)
	_ comlink.VisibilityChanger = (*Queue)(nil)
)

type entry struct {
	id            string
	body          string
	attributes    map[string]string
	receiptHandle string
	receiveCount  int
	visibleAt     time.Time
}

// Queue is an in-memory queue. The zero value is not usable; create queues
// with [New]. Queue is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	entries []*entry
	changed chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{changed: make(chan struct{})}
}

// Put appends a message. Only the delay and attribute options apply.
func (q *Queue) Put(_ context.Context, body string, opts ...comlink.PutOption) (string, error) {
	o := comlink.NewPutOptions(opts...)

	e := &entry{
		id:         uuid.NewString(),
		body:       body,
		attributes: maps.Clone(o.Attributes),
		visibleAt:  time.Now().Add(time.Duration(o.DelaySeconds) * time.Second),
	}

	q.mu.Lock()
	q.entries = append(q.entries, e)
	q.notifyLocked()
	q.mu.Unlock()

	return e.id, nil
}

// Take returns up to maxMessages visible messages in insertion order, waiting
// up to waitTimeSeconds for at least one to become available.
func (q *Queue) Take(ctx context.Context, maxMessages, visibilityTimeoutSeconds, waitTimeSeconds int32) ([]*comlink.Message, error) {
	deadline := time.Now().Add(time.Duration(waitTimeSeconds) * time.Second)
	timeout := time.Duration(visibilityTimeoutSeconds) * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		now := time.Now()

		q.mu.Lock()
		messages := q.receiveLocked(now, int(maxMessages), timeout)
		changed := q.changed
		nextVisible := q.nextVisibleLocked(now)
		q.mu.Unlock()

		if len(messages) > 0 || !now.Before(deadline) {
			return messages, nil
		}

		wake := deadline
		if !nextVisible.IsZero() && nextVisible.Before(wake) {
			wake = nextVisible
		}

		timer := time.NewTimer(time.Until(wake))

		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-changed:
		case <-timer.C:
		}

		timer.Stop()
	}
}

// Remove deletes the message received under receiptHandle. A handle stays
// valid until the message is received again, even after its visibility
// timeout has passed. It returns [comlink.ErrInvalidReceiptHandle] for an
// unknown or superseded handle.
func (q *Queue) Remove(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(receiptHandle)
	if i < 0 {
		return comlink.ErrInvalidReceiptHandle
	}

	q.entries = append(q.entries[:i], q.entries[i+1:]...)

	return nil
}

// ChangeVisibility hides the message held under receiptHandle for another
// timeoutSeconds, counted from now. A timeout of zero makes it visible
// immediately.
func (q *Queue) ChangeVisibility(_ context.Context, receiptHandle string, timeoutSeconds int32) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(receiptHandle)
	if i < 0 {
		return comlink.ErrInvalidReceiptHandle
	}

	q.entries[i].visibleAt = time.Now().Add(time.Duration(timeoutSeconds) * time.Second)

	if timeoutSeconds == 0 {
		q.notifyLocked()
	}

	return nil
}

// Len returns the number of messages in the queue, visible or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

func (q *Queue) receiveLocked(now time.Time, maxMessages int, timeout time.Duration) []*comlink.Message {
	var messages []*comlink.Message

	for _, e := range q.entries {
		if len(messages) >= maxMessages {
			break
		}

		if now.Before(e.visibleAt) {
			continue
		}

		e.receiptHandle = uuid.NewString()
		e.receiveCount++
		e.visibleAt = now.Add(timeout)

		messages = append(messages, &comlink.Message{
			ID:            e.id,
			Body:          e.body,
			ReceiptHandle: e.receiptHandle,
			Attributes:    maps.Clone(e.attributes),
			ReceiveCount:  e.receiveCount,
		})
	}

	return messages
}

func (q *Queue) nextVisibleLocked(now time.Time) time.Time {
	var next time.Time

	for _, e := range q.entries {
		if e.visibleAt.After(now) && (next.IsZero() || e.visibleAt.Before(next)) {
			next = e.visibleAt
		}
	}

	return next
}

func (q *Queue) indexLocked(receiptHandle string) int {
	if receiptHandle == "" {
		return -1
	}

	for i, e := range q.entries {
		if e.receiptHandle == receiptHandle {
			return i
		}
	}

	return -1
}

// notifyLocked wakes every waiting Take.
func (q *Queue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
