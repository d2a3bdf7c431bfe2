package pubsub

import (
	"context"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
)

// pubsubClient abstracts *pubsub.Client for testing.
type pubsubClient interface {
	Publisher(topic string) pubsubPublisher
	Subscriber() subscriberAPI
	Project() string
}

// pubsubPublisher abstracts *pubsub.Publisher for testing.
type pubsubPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) pubsubPublishResult
	ResumePublish(orderingKey string)
	Stop()
	SetEnableMessageOrdering(enabled bool)
	SetDelayThreshold(d time.Duration)
	SetCountThreshold(n int)
	SetByteThreshold(n int)
}

// pubsubPublishResult abstracts *pubsub.PublishResult for testing.
type pubsubPublishResult interface {
	Get(ctx context.Context) (serverID string, err error)
}

// subscriberAPI is the synchronous pull subset of the subscription admin
// client. It is satisfied by *apiv1.SubscriptionAdminClient.
type subscriberAPI interface {
	Pull(ctx context.Context, req *pubsubpb.PullRequest, opts ...gax.CallOption) (*pubsubpb.PullResponse, error)
	Acknowledge(ctx context.Context, req *pubsubpb.AcknowledgeRequest, opts ...gax.CallOption) error
	ModifyAckDeadline(ctx context.Context, req *pubsubpb.ModifyAckDeadlineRequest, opts ...gax.CallOption) error
}
