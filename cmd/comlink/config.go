package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const envconfigPrefix = "COMLINK"

const (
	backendSQS      = "sqs"
	backendDynamoDB = "dynamodb"
	backendPostgres = "postgres"
	backendPubSub   = "pubsub"
)

// config holds transport settings read from COMLINK_* environment variables.
type config struct {
	Backend     string `envconfig:"BACKEND" default:"sqs"`
	QueueName   string `envconfig:"QUEUE_NAME"`
	QueueURL    string `envconfig:"QUEUE_URL"`
	Endpoint    string `envconfig:"ENDPOINT"`
	AWSRegion   string `envconfig:"AWS_REGION"`
	CreateQueue bool   `envconfig:"CREATE_QUEUE"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DynamoDBTable string `envconfig:"DYNAMODB_TABLE" default:"comlink"`

	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD"`
	PostgresDatabase string `envconfig:"POSTGRES_DATABASE"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"prefer"`

	PubSubProject      string `envconfig:"PUBSUB_PROJECT"`
	PubSubTopic        string `envconfig:"PUBSUB_TOPIC"`
	PubSubSubscription string `envconfig:"PUBSUB_SUBSCRIPTION"`
}

func loadConfig() (*config, error) {
	c := &config{}

	if err := envconfig.Process(envconfigPrefix, c); err != nil {
		return nil, fmt.Errorf("error getting configuration from environment: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *config) validate() error {
	switch c.Backend {
	case backendSQS:
		if c.QueueName == "" && c.QueueURL == "" {
			return fmt.Errorf("%s_QUEUE_NAME or %s_QUEUE_URL is required for the sqs backend", envconfigPrefix, envconfigPrefix)
		}
	case backendDynamoDB, backendPostgres:
		if c.QueueName == "" {
			return fmt.Errorf("%s_QUEUE_NAME is required for the %s backend", envconfigPrefix, c.Backend)
		}
	case backendPubSub:
		if c.PubSubProject == "" {
			return fmt.Errorf("%s_PUBSUB_PROJECT is required for the pubsub backend", envconfigPrefix)
		}

		if c.PubSubTopic == "" && c.PubSubSubscription == "" {
			return fmt.Errorf("%s_PUBSUB_TOPIC or %s_PUBSUB_SUBSCRIPTION is required for the pubsub backend", envconfigPrefix, envconfigPrefix)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// queueLabel names the queue in metrics.
func (c *config) queueLabel() string {
	switch {
	case c.Backend == backendPubSub && c.PubSubSubscription != "":
		return c.PubSubSubscription
	case c.Backend == backendPubSub:
		return c.PubSubTopic
	case c.QueueName != "":
		return c.QueueName
	default:
		return c.QueueURL
	}
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", level)
	}
}
