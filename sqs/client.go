package sqs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/slackmgr/comlink"
	"github.com/slackmgr/types"
)

// Queue is a [comlink.Queue] backed by an AWS SQS queue. Both standard and
// FIFO queues are supported; the queue type is derived from the ".fifo"
// name suffix.
//
// Create a Queue with [New], then call [Queue.Init] once before any other
// method. Init is not thread-safe; all other methods are safe for concurrent
// use after Init returns.
type Queue struct {
	client      sqsClient
	queueName   string
	queueURL    string
	fifo        bool
	awsCfg      *aws.Config
	opts        *Options
	logger      types.Logger
	initialized bool
}

// sqsClient is the subset of the SQS API used by Queue.
type sqsClient interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

var (
	_ comlink.Queue             = (*Queue)(nil)
	_ comlink.VisibilityChanger = (*Queue)(nil)
)

// New creates a Queue for the named SQS queue.
//
// Functional options may be passed to override defaults (see With* functions).
// The logger is automatically enriched with "plugin" and "queue_name" fields.
//
// New does not connect to AWS. Call [Queue.Init] to resolve the queue URL.
func New(awsCfg *aws.Config, queueName string, logger types.Logger, opts ...Option) *Queue {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	logger = logger.
		WithField("plugin", "sqs").
		WithField("queue_name", queueName)

	return &Queue{
		awsCfg:    awsCfg,
		queueName: queueName,
		fifo:      strings.HasSuffix(queueName, ".fifo"),
		opts:      options,
		logger:    logger,
	}
}

// Init initializes the Queue: validates options and resolves the queue URL
// via GetQueueUrl, creating the queue first when [WithCreateQueue] is set.
// It returns the receiver so that initialization can be chained with [New]:
//
//	queue, err := sqs.New(&awsCfg, "events.fifo", logger).Init(ctx)
//
// Init is idempotent. It is not thread-safe and must be called once during
// application startup before any concurrent access.
func (q *Queue) Init(ctx context.Context) (*Queue, error) {
	if q.initialized {
		return q, nil
	}

	if q.queueName == "" && q.opts.queueURL == "" {
		return nil, errors.New("either a queue name or a queue URL is required")
	}

	if err := q.opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid SQS options: %w", err)
	}

	// Use injected client if provided (for testing), otherwise create real client
	if q.opts.sqsClient != nil {
		q.client = q.opts.sqsClient
	} else {
		if q.awsCfg == nil {
			return nil, errors.New("AWS config cannot be nil")
		}

		q.client = sqs.NewFromConfig(*q.awsCfg, func(o *sqs.Options) {
			o.Retryer = retry.AddWithMaxBackoffDelay(o.Retryer, q.opts.sqsAPIMaxRetryBackoffDelay)
			o.Retryer = retry.AddWithMaxAttempts(o.Retryer, q.opts.sqsAPIMaxRetryAttempts)

			if q.opts.baseEndpoint != "" {
				o.BaseEndpoint = aws.String(q.opts.baseEndpoint)
			}
		})
	}

	if q.opts.queueURL != "" {
		q.queueURL = q.opts.queueURL
		q.fifo = strings.HasSuffix(q.queueURL, ".fifo")
		q.initialized = true

		return q, nil
	}

	queueURL, err := q.resolveQueueURL(ctx)
	if err != nil {
		return nil, err
	}

	q.queueURL = queueURL
	q.initialized = true

	q.logger.WithField("queue_url", q.queueURL).Debug("SQS queue initialized")

	return q, nil
}

func (q *Queue) resolveQueueURL(ctx context.Context) (string, error) {
	resp, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(q.queueName)})
	if err == nil {
		return aws.ToString(resp.QueueUrl), nil
	}

	var notFound *sqstypes.QueueDoesNotExist
	if !q.opts.createQueue || !errors.As(err, &notFound) {
		return "", fmt.Errorf("failed to get SQS queue URL for %s: %w", q.queueName, err)
	}

	input := &sqs.CreateQueueInput{QueueName: aws.String(q.queueName)}

	if q.fifo {
		input.Attributes = map[string]string{
			string(sqstypes.QueueAttributeNameFifoQueue): "true",
		}
	}

	created, err := q.client.CreateQueue(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to create SQS queue %s: %w", q.queueName, err)
	}

	q.logger.Info("SQS queue created")

	return aws.ToString(created.QueueUrl), nil
}

// Name returns the SQS queue name supplied to [New].
func (q *Queue) Name() string {
	return q.queueName
}

// URL returns the resolved queue URL. It is empty before [Queue.Init].
func (q *Queue) URL() string {
	return q.queueURL
}

// IsFIFO reports whether the queue is a FIFO queue.
func (q *Queue) IsFIFO() bool {
	return q.fifo
}

// Put sends a single message and returns its SQS message ID.
//
// For FIFO queues a group ID is required (see [comlink.WithGroupID]). When no
// deduplication ID is given, one is derived from a SHA-256 hash of the group
// ID and body, so identical messages sent within the 5-minute deduplication
// window are dropped by SQS. FIFO queues do not support per-message delays.
func (q *Queue) Put(ctx context.Context, body string, opts ...comlink.PutOption) (string, error) {
	if !q.initialized {
		return "", errors.New("SQS queue not initialized")
	}

	if body == "" {
		return "", errors.New("body cannot be empty")
	}

	o := comlink.NewPutOptions(opts...)

	input := &sqs.SendMessageInput{
		QueueUrl:     &q.queueURL,
		MessageBody:  &body,
		DelaySeconds: o.DelaySeconds,
	}

	if q.fifo {
		if o.GroupID == "" {
			return "", errors.New("group ID is required for FIFO queues")
		}

		if o.DelaySeconds > 0 {
			return "", errors.New("per-message delay is not supported for FIFO queues")
		}

		dedupID := o.DeduplicationID
		if dedupID == "" {
			dedupID = hash(o.GroupID, body)
		}

		input.MessageGroupId = aws.String(o.GroupID)
		input.MessageDeduplicationId = aws.String(dedupID)
	}

	if len(o.Attributes) > 0 {
		input.MessageAttributes = make(map[string]sqstypes.MessageAttributeValue, len(o.Attributes))

		for k, v := range o.Attributes {
			input.MessageAttributes[k] = sqstypes.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}

	resp, err := q.client.SendMessage(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to send SQS message: %w", err)
	}

	id := aws.ToString(resp.MessageId)

	q.logger.WithField("message_id", id).Debug("SQS message sent")

	return id, nil
}

// Take performs a single ReceiveMessage call. An empty result is not an
// error. Cancelling ctx aborts the long poll.
func (q *Queue) Take(ctx context.Context, maxMessages, visibilityTimeoutSeconds, waitTimeSeconds int32) ([]*comlink.Message, error) {
	if !q.initialized {
		return nil, errors.New("SQS queue not initialized")
	}

	input := &sqs.ReceiveMessageInput{
		QueueUrl:                    &q.queueURL,
		MaxNumberOfMessages:         maxMessages,
		VisibilityTimeout:           visibilityTimeoutSeconds,
		WaitTimeSeconds:             waitTimeSeconds,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameAll},
		MessageAttributeNames:       []string{"All"},
	}

	output, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to receive SQS messages: %w", err)
	}

	messages := make([]*comlink.Message, 0, len(output.Messages))

	for _, m := range output.Messages {
		messages = append(messages, toMessage(m))
	}

	return messages, nil
}

func toMessage(m sqstypes.Message) *comlink.Message {
	attrs := make(map[string]string, len(m.Attributes)+len(m.MessageAttributes))

	maps.Copy(attrs, m.Attributes)

	for k, v := range m.MessageAttributes {
		if v.StringValue != nil {
			attrs[k] = *v.StringValue
		}
	}

	receiveCount, _ := strconv.Atoi(m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])

	return &comlink.Message{
		ID:            aws.ToString(m.MessageId),
		Body:          aws.ToString(m.Body),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
		Attributes:    attrs,
		ReceiveCount:  receiveCount,
	}
}

// Remove deletes the message with the given receipt handle.
func (q *Queue) Remove(ctx context.Context, receiptHandle string) error {
	if !q.initialized {
		return errors.New("SQS queue not initialized")
	}

	input := &sqs.DeleteMessageInput{
		QueueUrl:      &q.queueURL,
		ReceiptHandle: &receiptHandle,
	}

	if _, err := q.client.DeleteMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to delete SQS message: %w", mapReceiptError(err))
	}

	return nil
}

// ChangeVisibility sets the visibility timeout of an in-flight message.
func (q *Queue) ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int32) error {
	if !q.initialized {
		return errors.New("SQS queue not initialized")
	}

	input := &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &q.queueURL,
		ReceiptHandle:     &receiptHandle,
		VisibilityTimeout: timeoutSeconds,
	}

	if _, err := q.client.ChangeMessageVisibility(ctx, input); err != nil {
		return fmt.Errorf("failed to change SQS message visibility: %w", mapReceiptError(err))
	}

	return nil
}

// mapReceiptError adds comlink.ErrInvalidReceiptHandle to the chain of
// errors that SQS returns for stale or unknown receipt handles.
func mapReceiptError(err error) error {
	var (
		invalid     *sqstypes.ReceiptHandleIsInvalid
		notInflight *sqstypes.MessageNotInflight
	)

	if errors.As(err, &invalid) || errors.As(err, &notInflight) {
		return fmt.Errorf("%w: %w", comlink.ErrInvalidReceiptHandle, err)
	}

	return err
}

func hash(input ...string) string {
	h := sha256.New()

	for _, s := range input {
		h.Write([]byte(s))
		h.Write([]byte{0}) // null byte delimiter to prevent hash collisions
	}

	bs := h.Sum(nil)

	return base64.URLEncoding.EncodeToString(bs)
}
