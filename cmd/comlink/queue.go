package main

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/slackmgr/comlink"
	"github.com/slackmgr/comlink/dynamodb"
	"github.com/slackmgr/comlink/postgres"
	"github.com/slackmgr/comlink/pubsub"
	"github.com/slackmgr/comlink/sqs"
	"github.com/slackmgr/types"
)

// openQueue builds the transport selected by cfg.Backend. The returned
// function releases its resources.
func openQueue(ctx context.Context, cfg *config, logger types.Logger) (comlink.Queue, func(), error) {
	switch cfg.Backend {
	case backendSQS:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}

		var opts []sqs.Option

		if cfg.QueueURL != "" {
			opts = append(opts, sqs.WithQueueURL(cfg.QueueURL))
		}

		if cfg.Endpoint != "" {
			opts = append(opts, sqs.WithBaseEndpoint(cfg.Endpoint))
		}

		if cfg.CreateQueue {
			opts = append(opts, sqs.WithCreateQueue())
		}

		queue, err := sqs.New(awsCfg, cfg.QueueName, logger, opts...).Init(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize sqs queue: %w", err)
		}

		return queue, func() {}, nil

	case backendDynamoDB:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}

		var opts []dynamodb.Option

		if cfg.Endpoint != "" {
			opts = append(opts, dynamodb.WithBaseEndpoint(cfg.Endpoint))
		}

		queue := dynamodb.New(awsCfg, cfg.DynamoDBTable, cfg.QueueName, logger, opts...)

		if err := queue.Connect(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to dynamodb: %w", err)
		}

		if err := queue.Init(ctx, false); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize dynamodb queue: %w", err)
		}

		return queue, func() {}, nil

	case backendPostgres:
		queue := postgres.New(cfg.QueueName, logger,
			postgres.WithHost(cfg.PostgresHost),
			postgres.WithPort(cfg.PostgresPort),
			postgres.WithUser(cfg.PostgresUser),
			postgres.WithPassword(cfg.PostgresPassword),
			postgres.WithDatabase(cfg.PostgresDatabase),
			postgres.WithSSLMode(postgres.SSLMode(cfg.PostgresSSLMode)),
		)

		if err := queue.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}

		if err := queue.Init(ctx, false); err != nil {
			_ = queue.Close(ctx)
			return nil, nil, fmt.Errorf("failed to initialize postgres queue: %w", err)
		}

		return queue, func() { _ = queue.Close(context.WithoutCancel(ctx)) }, nil

	case backendPubSub:
		client, err := gcppubsub.NewClient(ctx, cfg.PubSubProject)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create pub/sub client: %w", err)
		}

		queue, err := pubsub.New(client, cfg.PubSubTopic, cfg.PubSubSubscription, logger)
		if err == nil {
			queue, err = queue.Init()
		}

		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to initialize pub/sub queue: %w", err)
		}

		return queue, func() {
			queue.Close()
			_ = client.Close()
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func loadAWSConfig(ctx context.Context, cfg *config) (*aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &awsCfg, nil
}
