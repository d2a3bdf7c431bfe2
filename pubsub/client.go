package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/slackmgr/comlink"
	"github.com/slackmgr/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	_ comlink.Queue             = (*Queue)(nil)
	_ comlink.VisibilityChanger = (*Queue)(nil)
)

// Queue is a Pub/Sub backed [comlink.Queue]. Put publishes to a topic; Take,
// Remove and ChangeVisibility use synchronous pull on a subscription, with
// the ack deadline acting as the visibility timeout.
type Queue struct {
	gcpClient    *pubsub.Client
	client       pubsubClient
	publisher    pubsubPublisher
	subscriber   subscriberAPI
	topic        string
	subscription string
	opts         *Options
	logger       types.Logger
	initialized  atomic.Bool
}

// New creates a Queue. topic is required for Put and subscription for Take;
// at least one must be set. Call [Queue.Init] before use.
func New(c *pubsub.Client, topic string, subscription string, logger types.Logger, opts ...Option) (*Queue, error) {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	if c == nil && options.pubsubClient == nil {
		return nil, errors.New("pub/sub client cannot be nil")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	logger = logger.WithField("plugin", "pubsub")

	if topic != "" {
		logger = logger.WithField("topic", topic)
	}

	if subscription != "" {
		logger = logger.WithField("subscription", subscription)
	}

	return &Queue{
		gcpClient:    c,
		topic:        topic,
		subscription: subscription,
		opts:         options,
		logger:       logger,
	}, nil
}

func (q *Queue) Init() (*Queue, error) {
	if q.initialized.Load() {
		return q, nil
	}

	if q.topic == "" && q.subscription == "" {
		return nil, errors.New("pub/sub topic and subscription cannot both be empty")
	}

	if err := q.opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid pub/sub options: %w", err)
	}

	// Use injected client for testing, otherwise wrap the real GCP client.
	if q.opts.pubsubClient != nil {
		q.client = q.opts.pubsubClient
	} else {
		q.client = newRealPubSubClient(q.gcpClient)
	}

	if q.topic != "" {
		q.publisher = q.client.Publisher(q.topic)

		q.publisher.SetEnableMessageOrdering(q.opts.messageOrdering)
		q.publisher.SetDelayThreshold(q.opts.publisherDelayThreshold)
		q.publisher.SetCountThreshold(q.opts.publisherCountThreshold)
		q.publisher.SetByteThreshold(q.opts.publisherByteThreshold)
	}

	if q.subscription != "" {
		q.subscription = subscriptionName(q.client.Project(), q.subscription)
		q.subscriber = q.client.Subscriber()
	}

	q.initialized.Store(true)

	return q, nil
}

// Name returns the topic, or the subscription when no topic is configured.
func (q *Queue) Name() string {
	if q.topic != "" {
		return q.topic
	}

	return q.subscription
}

// Close stops the publisher, flushing any pending messages.
func (q *Queue) Close() {
	if q.publisher != nil {
		q.publisher.Stop()
	}
}

// Put publishes body and returns the server-assigned message ID. The group ID
// becomes the ordering key unless ordering is disabled. Delay and
// deduplication IDs cannot be expressed on Pub/Sub and are ignored.
func (q *Queue) Put(ctx context.Context, body string, opts ...comlink.PutOption) (string, error) {
	if !q.initialized.Load() {
		return "", errors.New("pub/sub queue not initialized")
	}

	if q.publisher == nil {
		return "", errors.New("pub/sub queue has no topic configured")
	}

	if body == "" {
		return "", errors.New("body cannot be empty")
	}

	o := comlink.NewPutOptions(opts...)

	msg := &pubsub.Message{
		Data:       []byte(body),
		Attributes: o.Attributes,
	}

	if q.opts.messageOrdering {
		msg.OrderingKey = o.GroupID
	}

	id, err := q.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if msg.OrderingKey != "" {
			q.publisher.ResumePublish(msg.OrderingKey)
		}

		return "", fmt.Errorf("failed to publish message to pub/sub topic %s: %w", q.topic, err)
	}

	return id, nil
}

// Take pulls up to maxMessages messages and sets their ack deadline to
// visibilityTimeoutSeconds, capped at 600. The pull waits up to
// waitTimeSeconds; a wait of zero uses the minimum pull timeout.
func (q *Queue) Take(ctx context.Context, maxMessages, visibilityTimeoutSeconds, waitTimeSeconds int32) ([]*comlink.Message, error) {
	if !q.initialized.Load() {
		return nil, errors.New("pub/sub queue not initialized")
	}

	if q.subscriber == nil {
		return nil, errors.New("pub/sub queue has no subscription configured")
	}

	if maxMessages < 1 {
		return nil, errors.New("max messages must be at least 1")
	}

	timeout := max(time.Duration(waitTimeSeconds)*time.Second, q.opts.minPullTimeout)

	pullCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := q.subscriber.Pull(pullCtx, &pubsubpb.PullRequest{
		Subscription: q.subscription,
		MaxMessages:  maxMessages,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		// The wait elapsed without messages.
		if pullCtx.Err() != nil || status.Code(err) == codes.DeadlineExceeded {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to pull messages from pub/sub subscription %s: %w", q.subscription, err)
	}

	received := resp.GetReceivedMessages()
	if len(received) == 0 {
		return nil, nil
	}

	ackIDs := make([]string, 0, len(received))
	messages := make([]*comlink.Message, 0, len(received))

	for _, rm := range received {
		ackIDs = append(ackIDs, rm.GetAckId())
		messages = append(messages, toMessage(rm))
	}

	if err := q.subscriber.ModifyAckDeadline(ctx, &pubsubpb.ModifyAckDeadlineRequest{
		Subscription:       q.subscription,
		AckIds:             ackIDs,
		AckDeadlineSeconds: ackDeadline(visibilityTimeoutSeconds),
	}); err != nil {
		q.logger.Errorf("Failed to set ack deadline on %d pulled messages: %v", len(ackIDs), err)
	}

	return messages, nil
}

// Remove acknowledges the message. Pub/Sub silently ignores acks for expired
// deliveries, so a stale handle is only reported when it is malformed.
func (q *Queue) Remove(ctx context.Context, receiptHandle string) error {
	if !q.initialized.Load() || q.subscriber == nil {
		return errors.New("pub/sub queue has no subscription configured")
	}

	err := q.subscriber.Acknowledge(ctx, &pubsubpb.AcknowledgeRequest{
		Subscription: q.subscription,
		AckIds:       []string{receiptHandle},
	})
	if err != nil {
		return mapAckError("acknowledge message", err)
	}

	return nil
}

// ChangeVisibility sets the ack deadline of the delivery to timeoutSeconds
// from now, capped at 600.
func (q *Queue) ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int32) error {
	if !q.initialized.Load() || q.subscriber == nil {
		return errors.New("pub/sub queue has no subscription configured")
	}

	err := q.subscriber.ModifyAckDeadline(ctx, &pubsubpb.ModifyAckDeadlineRequest{
		Subscription:       q.subscription,
		AckIds:             []string{receiptHandle},
		AckDeadlineSeconds: ackDeadline(timeoutSeconds),
	})
	if err != nil {
		return mapAckError("modify ack deadline", err)
	}

	return nil
}

func toMessage(rm *pubsubpb.ReceivedMessage) *comlink.Message {
	msg := rm.GetMessage()

	return &comlink.Message{
		ID:            msg.GetMessageId(),
		Body:          string(msg.GetData()),
		ReceiptHandle: rm.GetAckId(),
		Attributes:    msg.GetAttributes(),
		ReceiveCount:  int(rm.GetDeliveryAttempt()),
	}
}

func ackDeadline(seconds int32) int32 {
	return min(max(seconds, 0), maxAckDeadlineSeconds)
}

func mapAckError(op string, err error) error {
	if status.Code(err) == codes.InvalidArgument {
		return fmt.Errorf("%w: %s: %w", comlink.ErrInvalidReceiptHandle, op, err)
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

func subscriptionName(project, subscription string) string {
	if strings.HasPrefix(subscription, "projects/") {
		return subscription
	}

	return fmt.Sprintf("projects/%s/subscriptions/%s", project, subscription)
}
