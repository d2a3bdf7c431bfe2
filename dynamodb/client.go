package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/slackmgr/comlink"
	"github.com/slackmgr/types"
)

const (
	// PartitionKey is the DynamoDB partition key attribute name. It holds the
	// queue name, so several queues can share one table.
	PartitionKey = "pk"

	// SortKey is the DynamoDB sort key attribute name. Sort keys order
	// messages by enqueue time.
	SortKey = "sk"

	// IDAttr holds the message ID.
	IDAttr = "id"

	// BodyAttr holds the message body.
	BodyAttr = "body"

	// VisibleAtAttr holds the time, in Unix milliseconds, from which the
	// message may be taken.
	VisibleAtAttr = "visible_at"

	// ReceiptAttr holds the token of the current delivery.
	ReceiptAttr = "receipt"

	// ReceiveCountAttr counts deliveries.
	ReceiveCountAttr = "receive_count"

	// AttributesAttr holds the string message attributes as a map.
	AttributesAttr = "attrs"

	// TTLAttr is the attribute name used for DynamoDB TTL-based expiration. The
	// table must have TTL enabled on this attribute.
	TTLAttr = "ttl"

	// maxBackoff is the maximum backoff duration for retry loops.
	maxBackoff = 2 * time.Second
)

// API is the subset of the DynamoDB client used by Queue.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DescribeTimeToLive(ctx context.Context, params *dynamodb.DescribeTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTimeToLiveOutput, error)
}

// Queue is a DynamoDB-backed implementation of [comlink.Queue]. Each message
// is one item; visibility is tracked in the item itself and updated with
// conditional writes, so any number of consumers may share a queue.
//
// Use [New] to create a Queue, [Queue.Connect] to initialize the underlying
// DynamoDB connection, and [Queue.Init] to validate the table schema.
type Queue struct {
	client    API
	tableName string
	queueName string
	awsCfg    *aws.Config
	opts      *Options
	logger    types.Logger
}

var (
	_ comlink.Queue             = (*Queue)(nil)
	_ comlink.VisibilityChanger = (*Queue)(nil)
)

// New creates a new Queue storing messages for queueName in the given table.
// Call [Queue.Connect] on the returned queue before use.
func New(awsCfg *aws.Config, tableName, queueName string, logger types.Logger, opts ...Option) *Queue {
	options := newOptions()

	for _, o := range opts {
		o(options)
	}

	logger = logger.
		WithField("plugin", "dynamodb").
		WithField("table_name", tableName).
		WithField("queue_name", queueName)

	return &Queue{
		awsCfg:    awsCfg,
		tableName: tableName,
		queueName: queueName,
		opts:      options,
		logger:    logger,
	}
}

// Connect initializes the DynamoDB client from the AWS config provided to [New].
// It must be called before any other Queue methods, and must complete before
// the Queue is used concurrently.
func (q *Queue) Connect() error {
	if q.tableName == "" {
		return errors.New("table name cannot be empty")
	}

	if q.queueName == "" {
		return errors.New("queue name cannot be empty")
	}

	if err := q.opts.validate(); err != nil {
		return fmt.Errorf("invalid DynamoDB options: %w", err)
	}

	// Use injected DynamoDB API if provided (useful for testing).
	if q.opts.dynamoDBAPI != nil {
		q.client = q.opts.dynamoDBAPI
		return nil
	}

	if q.awsCfg == nil {
		return errors.New("AWS config cannot be nil")
	}

	q.client = dynamodb.NewFromConfig(*q.awsCfg, func(o *dynamodb.Options) {
		if q.opts.baseEndpoint != "" {
			o.BaseEndpoint = aws.String(q.opts.baseEndpoint)
		}
	})

	return nil
}

// Init validates the DynamoDB table schema. It checks that the table exists
// and is active, has the correct partition key (pk) and sort key (sk), and
// has TTL enabled on the ttl attribute.
//
// Pass skipSchemaValidation true to skip all checks and return immediately,
// which is useful when schema validation is managed separately.
func (q *Queue) Init(ctx context.Context, skipSchemaValidation bool) error {
	if q.client == nil {
		return errors.New("DynamoDB queue not connected")
	}

	if skipSchemaValidation {
		return nil
	}

	input := &dynamodb.DescribeTableInput{
		TableName: aws.String(q.tableName),
	}

	response, err := q.client.DescribeTable(ctx, input)
	if err != nil {
		var notFoundError *dynamodbtypes.ResourceNotFoundException
		if errors.As(err, &notFoundError) {
			return fmt.Errorf("table %s does not exist", q.tableName)
		}
		return fmt.Errorf("failed to describe table %s: %w", q.tableName, err)
	}

	if response.Table == nil || len(response.Table.KeySchema) < 1 {
		return fmt.Errorf("table %s has no key schema", q.tableName)
	}

	if aws.ToString(response.Table.KeySchema[0].AttributeName) != PartitionKey {
		return fmt.Errorf("table %s has partition key %s, expected %s", q.tableName, aws.ToString(response.Table.KeySchema[0].AttributeName), PartitionKey)
	}

	if len(response.Table.KeySchema) < 2 {
		return fmt.Errorf("table %s has a simple primary key, expected composite", q.tableName)
	}

	if aws.ToString(response.Table.KeySchema[1].AttributeName) != SortKey {
		return fmt.Errorf("table %s has sort key %s, expected %s", q.tableName, aws.ToString(response.Table.KeySchema[1].AttributeName), SortKey)
	}

	if response.Table.TableStatus != dynamodbtypes.TableStatusActive {
		return fmt.Errorf("table %s is not active (status: %s)", q.tableName, response.Table.TableStatus)
	}

	ttlResponse, err := q.client.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{
		TableName: aws.String(q.tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to describe TTL of table %s: %w", q.tableName, err)
	}

	if ttlResponse.TimeToLiveDescription == nil {
		return fmt.Errorf("table %s has no TTL description", q.tableName)
	}

	if ttlResponse.TimeToLiveDescription.TimeToLiveStatus != dynamodbtypes.TimeToLiveStatusEnabled {
		return fmt.Errorf("table %s has TTL status %s (expected %s)", q.tableName, ttlResponse.TimeToLiveDescription.TimeToLiveStatus, dynamodbtypes.TimeToLiveStatusEnabled)
	}

	if aws.ToString(ttlResponse.TimeToLiveDescription.AttributeName) != TTLAttr {
		return fmt.Errorf("TTL attribute name for table %s is %s, expected %s", q.tableName, aws.ToString(ttlResponse.TimeToLiveDescription.AttributeName), TTLAttr)
	}

	return nil
}

// Name returns the queue name supplied to [New].
func (q *Queue) Name() string {
	return q.queueName
}

// Put stores a new message and returns its ID. Group and deduplication IDs
// are ignored; DynamoDB queues are unordered beyond enqueue time.
func (q *Queue) Put(ctx context.Context, body string, opts ...comlink.PutOption) (string, error) {
	if q.client == nil {
		return "", errors.New("DynamoDB queue not connected")
	}

	if body == "" {
		return "", errors.New("body cannot be empty")
	}

	o := comlink.NewPutOptions(opts...)

	if o.DelaySeconds < 0 || o.DelaySeconds > 900 {
		return "", errors.New("delay must be between 0 and 900 seconds")
	}

	now := q.opts.clock()
	id := uuid.NewString()
	visibleAt := now.Add(time.Duration(o.DelaySeconds) * time.Second)
	ttl := now.Add(q.opts.messageRetention)

	item := map[string]dynamodbtypes.AttributeValue{
		PartitionKey:     &dynamodbtypes.AttributeValueMemberS{Value: q.queueName},
		SortKey:          &dynamodbtypes.AttributeValueMemberS{Value: buildSortKey(now, id)},
		IDAttr:           &dynamodbtypes.AttributeValueMemberS{Value: id},
		BodyAttr:         &dynamodbtypes.AttributeValueMemberS{Value: body},
		VisibleAtAttr:    numberValue(visibleAt.UnixMilli()),
		ReceiveCountAttr: numberValue(0),
		TTLAttr:          numberValue(ttl.Unix()),
	}

	if len(o.Attributes) > 0 {
		attrs := make(map[string]dynamodbtypes.AttributeValue, len(o.Attributes))

		for k, v := range o.Attributes {
			attrs[k] = &dynamodbtypes.AttributeValueMemberS{Value: v}
		}

		item[AttributesAttr] = &dynamodbtypes.AttributeValueMemberM{Value: attrs}
	}

	input := &dynamodb.PutItemInput{
		TableName: &q.tableName,
		Item:      item,
	}

	if _, err := q.client.PutItem(ctx, input); err != nil {
		return "", fmt.Errorf("failed to write message to DynamoDB table %s: %w", q.tableName, err)
	}

	q.logger.WithField("message_id", id).Debug("DynamoDB message stored")

	return id, nil
}

// Take claims up to maxMessages visible messages, hiding each for
// visibilityTimeoutSeconds. DynamoDB has no long poll, so when nothing is
// visible Take polls at the configured interval until waitTimeSeconds have
// passed. Cancelling ctx ends the wait early.
func (q *Queue) Take(ctx context.Context, maxMessages, visibilityTimeoutSeconds, waitTimeSeconds int32) ([]*comlink.Message, error) {
	if q.client == nil {
		return nil, errors.New("DynamoDB queue not connected")
	}

	if maxMessages < 1 {
		return nil, errors.New("max messages must be at least 1")
	}

	deadline := time.Now().Add(time.Duration(waitTimeSeconds) * time.Second)

	for {
		messages, err := q.claim(ctx, int(maxMessages), time.Duration(visibilityTimeoutSeconds)*time.Second)
		if err != nil {
			return nil, err
		}

		remaining := time.Until(deadline)

		if len(messages) > 0 || remaining <= 0 {
			return messages, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(min(q.opts.pollInterval, remaining)):
		}
	}
}

// claim finds visible messages and takes them with conditional updates.
// Messages claimed concurrently by another consumer are skipped.
func (q *Queue) claim(ctx context.Context, maxMessages int, timeout time.Duration) ([]*comlink.Message, error) {
	now := q.opts.clock()

	input := &dynamodb.QueryInput{
		TableName:              &q.tableName,
		KeyConditionExpression: aws.String("#pk = :pk"),
		FilterExpression:       aws.String("#visible_at <= :now AND #ttl > :ttl_now"),
		ExpressionAttributeNames: map[string]string{
			"#pk":         PartitionKey,
			"#visible_at": VisibleAtAttr,
			"#ttl":        TTLAttr,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":pk":      &dynamodbtypes.AttributeValueMemberS{Value: q.queueName},
			":now":     numberValue(now.UnixMilli()),
			":ttl_now": numberValue(now.Unix()),
		},
		ProjectionExpression: aws.String("#pk, " + SortKey),
		ConsistentRead:       aws.Bool(true),
	}

	var messages []*comlink.Message

	for {
		output, err := q.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query DynamoDB table %s: %w", q.tableName, err)
		}

		for _, item := range output.Items {
			msg, err := q.claimItem(ctx, getStringValue(item[SortKey]), now, timeout)
			if err != nil {
				return messages, err
			}

			if msg == nil {
				continue
			}

			messages = append(messages, msg)

			if len(messages) == maxMessages {
				return messages, nil
			}
		}

		if output.LastEvaluatedKey == nil {
			return messages, nil
		}

		input.ExclusiveStartKey = output.LastEvaluatedKey
	}
}

// claimItem hides one message and starts a new delivery. It returns nil
// without an error when the message was claimed by someone else first.
func (q *Queue) claimItem(ctx context.Context, sortKey string, now time.Time, timeout time.Duration) (*comlink.Message, error) {
	token := uuid.NewString()

	input := &dynamodb.UpdateItemInput{
		TableName:           &q.tableName,
		Key:                 q.key(sortKey),
		UpdateExpression:    aws.String("SET #visible_at = :until, #receipt = :token ADD #receive_count :one"),
		ConditionExpression: aws.String("attribute_exists(#pk) AND #visible_at <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#pk":            PartitionKey,
			"#visible_at":    VisibleAtAttr,
			"#receipt":       ReceiptAttr,
			"#receive_count": ReceiveCountAttr,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":until": numberValue(now.Add(timeout).UnixMilli()),
			":token": &dynamodbtypes.AttributeValueMemberS{Value: token},
			":one":   numberValue(1),
			":now":   numberValue(now.UnixMilli()),
		},
		ReturnValues: dynamodbtypes.ReturnValueAllNew,
	}

	output, err := q.client.UpdateItem(ctx, input)
	if err != nil {
		var conditionFailed *dynamodbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, nil //nolint:nilnil
		}

		return nil, fmt.Errorf("failed to claim message in DynamoDB table %s: %w", q.tableName, err)
	}

	return toMessage(output.Attributes, buildReceiptHandle(token, sortKey)), nil
}

// Remove deletes the message if receiptHandle belongs to its latest delivery.
func (q *Queue) Remove(ctx context.Context, receiptHandle string) error {
	if q.client == nil {
		return errors.New("DynamoDB queue not connected")
	}

	token, sortKey, err := parseReceiptHandle(receiptHandle)
	if err != nil {
		return err
	}

	input := &dynamodb.DeleteItemInput{
		TableName:           &q.tableName,
		Key:                 q.key(sortKey),
		ConditionExpression: aws.String("#receipt = :token"),
		ExpressionAttributeNames: map[string]string{
			"#receipt": ReceiptAttr,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":token": &dynamodbtypes.AttributeValueMemberS{Value: token},
		},
	}

	if _, err := q.client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("failed to delete message from DynamoDB table %s: %w", q.tableName, mapConditionError(err))
	}

	return nil
}

// ChangeVisibility hides the message for timeoutSeconds from now, if
// receiptHandle belongs to its latest delivery. A zero timeout makes the
// message visible immediately.
func (q *Queue) ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int32) error {
	if q.client == nil {
		return errors.New("DynamoDB queue not connected")
	}

	token, sortKey, err := parseReceiptHandle(receiptHandle)
	if err != nil {
		return err
	}

	until := q.opts.clock().Add(time.Duration(timeoutSeconds) * time.Second)

	input := &dynamodb.UpdateItemInput{
		TableName:           &q.tableName,
		Key:                 q.key(sortKey),
		UpdateExpression:    aws.String("SET #visible_at = :until"),
		ConditionExpression: aws.String("#receipt = :token"),
		ExpressionAttributeNames: map[string]string{
			"#visible_at": VisibleAtAttr,
			"#receipt":    ReceiptAttr,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":until": numberValue(until.UnixMilli()),
			":token": &dynamodbtypes.AttributeValueMemberS{Value: token},
		},
	}

	if _, err := q.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("failed to change message visibility in DynamoDB table %s: %w", q.tableName, mapConditionError(err))
	}

	return nil
}

// Purge deletes every message in the queue. It queries the queue partition
// in pages and removes each page using BatchWriteItem with exponential
// backoff for unprocessed items.
func (q *Queue) Purge(ctx context.Context) error {
	if q.client == nil {
		return errors.New("DynamoDB queue not connected")
	}

	input := &dynamodb.QueryInput{
		TableName:              &q.tableName,
		KeyConditionExpression: aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{
			"#pk": PartitionKey,
		},
		ExpressionAttributeValues: map[string]dynamodbtypes.AttributeValue{
			":pk": &dynamodbtypes.AttributeValueMemberS{Value: q.queueName},
		},
		ProjectionExpression: aws.String("#pk, " + SortKey),
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		output, err := q.client.Query(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to query DynamoDB table %s: %w", q.tableName, err)
		}

		// Process items in batches of 25 (DynamoDB BatchWriteItem limit).
		for i := 0; i < len(output.Items); i += 25 {
			end := min(i+25, len(output.Items))

			if err := q.deleteBatch(ctx, output.Items[i:end]); err != nil {
				return err
			}
		}

		if output.LastEvaluatedKey == nil {
			break
		}

		input.ExclusiveStartKey = output.LastEvaluatedKey
	}

	return nil
}

func (q *Queue) deleteBatch(ctx context.Context, batch []map[string]dynamodbtypes.AttributeValue) error {
	requestItems := make([]dynamodbtypes.WriteRequest, 0, len(batch))

	for _, item := range batch {
		requestItems = append(requestItems, dynamodbtypes.WriteRequest{
			DeleteRequest: &dynamodbtypes.DeleteRequest{
				Key: map[string]dynamodbtypes.AttributeValue{
					PartitionKey: item[PartitionKey],
					SortKey:      item[SortKey],
				},
			},
		})
	}

	batchInput := &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]dynamodbtypes.WriteRequest{
			q.tableName: requestItems,
		},
	}

	// Retry with exponential backoff for unprocessed items.
	const maxRetries = 5
	backoff := 50 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		batchResult, err := q.client.BatchWriteItem(ctx, batchInput)
		if err != nil {
			return fmt.Errorf("failed to batch delete items from DynamoDB table %s: %w", q.tableName, err)
		}

		if len(batchResult.UnprocessedItems) == 0 {
			return nil
		}

		if attempt == maxRetries {
			return fmt.Errorf("%d unprocessed items after %d retries in Purge",
				len(batchResult.UnprocessedItems[q.tableName]), maxRetries)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
		batchInput.RequestItems = batchResult.UnprocessedItems
	}

	return nil
}

func (q *Queue) key(sortKey string) map[string]dynamodbtypes.AttributeValue {
	return map[string]dynamodbtypes.AttributeValue{
		PartitionKey: &dynamodbtypes.AttributeValueMemberS{Value: q.queueName},
		SortKey:      &dynamodbtypes.AttributeValueMemberS{Value: sortKey},
	}
}

func toMessage(item map[string]dynamodbtypes.AttributeValue, receiptHandle string) *comlink.Message {
	msg := &comlink.Message{
		ID:            getStringValue(item[IDAttr]),
		Body:          getStringValue(item[BodyAttr]),
		ReceiptHandle: receiptHandle,
		ReceiveCount:  int(getNumberValue(item[ReceiveCountAttr])),
	}

	if m, ok := item[AttributesAttr].(*dynamodbtypes.AttributeValueMemberM); ok {
		msg.Attributes = make(map[string]string, len(m.Value))

		for k, v := range m.Value {
			msg.Attributes[k] = getStringValue(v)
		}
	}

	return msg
}

// mapConditionError adds comlink.ErrInvalidReceiptHandle to the chain of a
// failed receipt condition.
func mapConditionError(err error) error {
	var conditionFailed *dynamodbtypes.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return fmt.Errorf("%w: %w", comlink.ErrInvalidReceiptHandle, err)
	}

	return err
}

// buildSortKey orders messages by enqueue time. The zero-padded timestamp
// keeps lexical and chronological order the same.
func buildSortKey(now time.Time, id string) string {
	return fmt.Sprintf("MSG#%020d#%s", now.UnixNano(), id)
}

func buildReceiptHandle(token, sortKey string) string {
	return token + "|" + sortKey
}

func parseReceiptHandle(receiptHandle string) (token, sortKey string, err error) {
	token, sortKey, found := strings.Cut(receiptHandle, "|")
	if !found || token == "" || !strings.HasPrefix(sortKey, "MSG#") {
		return "", "", fmt.Errorf("%w: malformed receipt handle", comlink.ErrInvalidReceiptHandle)
	}

	return token, sortKey, nil
}

func numberValue(n int64) *dynamodbtypes.AttributeValueMemberN {
	return &dynamodbtypes.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

// getStringValue extracts the string value from a DynamoDB AttributeValue.
// It returns an empty string if the AttributeValue is not of type AttributeValueMemberS.
func getStringValue(attr dynamodbtypes.AttributeValue) string {
	if attrValue, ok := attr.(*dynamodbtypes.AttributeValueMemberS); ok {
		return attrValue.Value
	}

	return ""
}

// getNumberValue extracts an integer from a DynamoDB number AttributeValue,
// returning zero for any other type.
func getNumberValue(attr dynamodbtypes.AttributeValue) int64 {
	if attrValue, ok := attr.(*dynamodbtypes.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(attrValue.Value, 10, 64)
		return n
	}

	return 0
}
