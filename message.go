package comlink

import (
	"context"
	"errors"
)

// ErrInvalidReceiptHandle is returned by queue implementations when a receipt
// handle is unknown, has been superseded by a later receive, or its visibility
// timeout has already expired.
var ErrInvalidReceiptHandle = errors.New("invalid or expired receipt handle")

// Message is a single delivery of a queue entry.
//
// The receipt handle identifies this delivery attempt only. The same entry may
// be returned by a later Take with a different receipt handle once its
// visibility timeout lapses.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
	Attributes    map[string]string
	ReceiveCount  int
}

// Queue is the transport contract the consumer depends on.
//
// Take blocks for up to waitTimeSeconds waiting for at least one message and
// returns between 0 and maxMessages messages, each hidden from other receivers
// for visibilityTimeoutSeconds. Implementations must return promptly with the
// context error when ctx is cancelled during the wait.
//
// Remove deletes the message identified by receiptHandle. Put is used by
// producers only.
type Queue interface {
	Put(ctx context.Context, body string, opts ...PutOption) (string, error)
	Take(ctx context.Context, maxMessages, visibilityTimeoutSeconds, waitTimeSeconds int32) ([]*Message, error)
	Remove(ctx context.Context, receiptHandle string) error
}

// VisibilityChanger is implemented by queues that can reset the visibility
// timeout of a received message. The consumer uses it for the optional
// visibility heartbeat (see [WithVisibilityHeartbeat]).
type VisibilityChanger interface {
	ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int32) error
}

// PutOption configures a single Put call. Transports ignore options they
// cannot express.
type PutOption func(*PutOptions)

// PutOptions holds the resolved per-message options of a Put call.
type PutOptions struct {
	DelaySeconds    int32
	GroupID         string
	DeduplicationID string
	Attributes      map[string]string
}

// NewPutOptions applies opts to an empty PutOptions value.
func NewPutOptions(opts ...PutOption) *PutOptions {
	o := &PutOptions{}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// WithDelaySeconds keeps the message invisible for the given number of
// seconds after it is enqueued.
func WithDelaySeconds(seconds int32) PutOption {
	return func(o *PutOptions) { o.DelaySeconds = seconds }
}

// WithGroupID sets the message group ID. Required by FIFO SQS queues.
func WithGroupID(groupID string) PutOption {
	return func(o *PutOptions) { o.GroupID = groupID }
}

// WithDeduplicationID sets the deduplication ID used by FIFO SQS queues.
func WithDeduplicationID(dedupID string) PutOption {
	return func(o *PutOptions) { o.DeduplicationID = dedupID }
}

// WithAttribute adds a string message attribute.
func WithAttribute(key, value string) PutOption {
	return func(o *PutOptions) {
		if o.Attributes == nil {
			o.Attributes = map[string]string{}
		}

		o.Attributes[key] = value
	}
}

// key is a type to prevent collisions with keys in other packages.
type key int

const messageKey key = 0

// NewContext returns a new Context carrying msg. The consumer attaches the
// message being processed to the context passed to non-blocking handlers.
func NewContext(ctx context.Context, msg *Message) context.Context {
	return context.WithValue(ctx, messageKey, msg)
}

// FromContext extracts the message from ctx, if present.
func FromContext(ctx context.Context) (*Message, bool) {
	msg, ok := ctx.Value(messageKey).(*Message)
	return msg, ok
}
