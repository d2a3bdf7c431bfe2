package pubsub

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/slackmgr/types"
)

// mockPubSubClient implements pubsubClient for testing.
type mockPubSubClient struct {
	publisher      *mockPublisher
	subscriber     *mockSubscriber
	project        string
	publisherCalls []string
	mu             sync.Mutex
}

func newMockPubSubClient() *mockPubSubClient {
	return &mockPubSubClient{
		publisher:  newMockPublisher(),
		subscriber: &mockSubscriber{},
		project:    "test-project",
	}
}

//nolint:ireturn // Returns interface required by pubsubClient interface
func (m *mockPubSubClient) Publisher(topic string) pubsubPublisher {
	m.mu.Lock()
	m.publisherCalls = append(m.publisherCalls, topic)
	m.mu.Unlock()

	return m.publisher
}

//nolint:ireturn // Returns interface required by pubsubClient interface
func (m *mockPubSubClient) Subscriber() subscriberAPI {
	return m.subscriber
}

func (m *mockPubSubClient) Project() string {
	return m.project
}

// mockPublisher implements pubsubPublisher for testing.
type mockPublisher struct {
	publishFunc           func(ctx context.Context, msg *pubsub.Message) pubsubPublishResult
	stopCalled            atomic.Bool
	enableMessageOrdering bool
	delayThreshold        time.Duration
	countThreshold        int
	byteThreshold         int
	publishedMessages     []*pubsub.Message
	resumedKeys           []string
	mu                    sync.Mutex
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{}
}

//nolint:ireturn // Returns interface required by pubsubPublisher interface
func (m *mockPublisher) Publish(ctx context.Context, msg *pubsub.Message) pubsubPublishResult {
	m.mu.Lock()
	m.publishedMessages = append(m.publishedMessages, msg)
	m.mu.Unlock()

	if m.publishFunc != nil {
		return m.publishFunc(ctx, msg)
	}

	return &mockPublishResult{serverID: "server-id"}
}

func (m *mockPublisher) ResumePublish(orderingKey string) {
	m.mu.Lock()
	m.resumedKeys = append(m.resumedKeys, orderingKey)
	m.mu.Unlock()
}

func (m *mockPublisher) Stop() {
	m.stopCalled.Store(true)
}

func (m *mockPublisher) SetEnableMessageOrdering(enabled bool) {
	m.mu.Lock()
	m.enableMessageOrdering = enabled
	m.mu.Unlock()
}

func (m *mockPublisher) SetDelayThreshold(d time.Duration) {
	m.mu.Lock()
	m.delayThreshold = d
	m.mu.Unlock()
}

func (m *mockPublisher) SetCountThreshold(n int) {
	m.mu.Lock()
	m.countThreshold = n
	m.mu.Unlock()
}

func (m *mockPublisher) SetByteThreshold(n int) {
	m.mu.Lock()
	m.byteThreshold = n
	m.mu.Unlock()
}

// mockPublishResult implements pubsubPublishResult for testing.
type mockPublishResult struct {
	serverID string
	err      error
}

func (m *mockPublishResult) Get(_ context.Context) (string, error) {
	return m.serverID, m.err
}

// mockSubscriber implements subscriberAPI for testing.
type mockSubscriber struct {
	pullFunc              func(ctx context.Context, req *pubsubpb.PullRequest) (*pubsubpb.PullResponse, error)
	acknowledgeFunc       func(ctx context.Context, req *pubsubpb.AcknowledgeRequest) error
	modifyAckDeadlineFunc func(ctx context.Context, req *pubsubpb.ModifyAckDeadlineRequest) error
	modifyRequests        []*pubsubpb.ModifyAckDeadlineRequest
	ackRequests           []*pubsubpb.AcknowledgeRequest
	mu                    sync.Mutex
}

func (m *mockSubscriber) Pull(ctx context.Context, req *pubsubpb.PullRequest, _ ...gax.CallOption) (*pubsubpb.PullResponse, error) {
	if m.pullFunc != nil {
		return m.pullFunc(ctx, req)
	}

	<-ctx.Done()

	return nil, ctx.Err()
}

func (m *mockSubscriber) Acknowledge(ctx context.Context, req *pubsubpb.AcknowledgeRequest, _ ...gax.CallOption) error {
	m.mu.Lock()
	m.ackRequests = append(m.ackRequests, req)
	m.mu.Unlock()

	if m.acknowledgeFunc != nil {
		return m.acknowledgeFunc(ctx, req)
	}

	return nil
}

func (m *mockSubscriber) ModifyAckDeadline(ctx context.Context, req *pubsubpb.ModifyAckDeadlineRequest, _ ...gax.CallOption) error {
	m.mu.Lock()
	m.modifyRequests = append(m.modifyRequests, req)
	m.mu.Unlock()

	if m.modifyAckDeadlineFunc != nil {
		return m.modifyAckDeadlineFunc(ctx, req)
	}

	return nil
}

func (m *mockSubscriber) acks() []*pubsubpb.AcknowledgeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*pubsubpb.AcknowledgeRequest(nil), m.ackRequests...)
}

func (m *mockSubscriber) modifies() []*pubsubpb.ModifyAckDeadlineRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*pubsubpb.ModifyAckDeadlineRequest(nil), m.modifyRequests...)
}

// logStore is shared by a mockLogger and every logger derived from it.
type logStore struct {
	errorLogs []string
	mu        sync.Mutex
}

// mockLogger implements types.Logger for testing.
type mockLogger struct {
	store  *logStore
	fields map[string]any
}

func newMockLogger() *mockLogger {
	return &mockLogger{store: &logStore{}, fields: make(map[string]any)}
}

func (m *mockLogger) errors() []string {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	return append([]string(nil), m.store.errorLogs...)
}

func (m *mockLogger) Debug(_ string)            {}
func (m *mockLogger) Debugf(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string)             {}
func (m *mockLogger) Infof(_ string, _ ...any)  {}

func (m *mockLogger) Error(msg string) {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.errorLogs = append(m.store.errorLogs, msg)
}

func (m *mockLogger) Errorf(format string, _ ...any) {
	m.Error(format)
}

//nolint:ireturn // Must return interface to implement types.Logger
func (m *mockLogger) WithField(key string, value any) types.Logger {
	return m.WithFields(map[string]any{key: value})
}

//nolint:ireturn // Must return interface to implement types.Logger
func (m *mockLogger) WithFields(fields map[string]any) types.Logger {
	derived := &mockLogger{store: m.store, fields: maps.Clone(m.fields)}
	maps.Copy(derived.fields, fields)

	return derived
}
