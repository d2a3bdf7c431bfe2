package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/slackmgr/comlink"
	"github.com/slackmgr/comlink/telemetry"
	"github.com/slackmgr/types"
	"github.com/urfave/cli/v2"
)

// printedMessage is the JSON line written for each consumed message.
type printedMessage struct {
	ID           string            `json:"id"`
	ReceiveCount int               `json:"receive_count"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	Body         string            `json:"body"`
}

func consume(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	queue, closeQueue, err := openQueue(c.Context, cfg, logger)
	if err != nil {
		return err
	}

	defer closeQueue()

	metrics := newConsumeMetrics()

	defer func() {
		ctx := context.WithoutCancel(c.Context)

		metrics.logSummary(ctx, logger)

		if err := metrics.shutdown(ctx); err != nil {
			logger.Errorf("Failed to shut down meter provider: %v", err)
		}
	}()

	recorder, err := telemetry.NewRecorder(
		telemetry.WithMeterProvider(metrics.provider),
		telemetry.WithQueueName(cfg.queueLabel()),
	)
	if err != nil {
		return err
	}

	stop, stopSignals := comlink.NotifyStop()
	defer stopSignals()

	opts, err := consumeOptions(c.Int(flagBatchSize), c.Int(flagVisibilityTimeout), c.Int(flagWaitTime), c.Duration(flagHeartbeat))
	if err != nil {
		return err
	}

	opts = append(opts, comlink.WithRecorder(recorder))

	return runConsumer(c.Context, queue, stop, c.App.Writer, c.Int(flagMaxMessages), logger, opts...)
}

// consumeOptions converts the consume flags to consumer options. Values that
// do not fit an int32 are rejected here; the consumer validates the rest.
func consumeOptions(batchSize, visibilityTimeout, waitTime int, heartbeat time.Duration) ([]comlink.Option, error) {
	batch, err := toInt32(flagBatchSize, batchSize)
	if err != nil {
		return nil, err
	}

	visibility, err := toInt32(flagVisibilityTimeout, visibilityTimeout)
	if err != nil {
		return nil, err
	}

	wait, err := toInt32(flagWaitTime, waitTime)
	if err != nil {
		return nil, err
	}

	opts := []comlink.Option{
		comlink.WithBatchSize(batch),
		comlink.WithVisibilityTimeout(visibility),
		comlink.WithWaitTimeSeconds(wait),
	}

	if heartbeat > 0 {
		opts = append(opts, comlink.WithVisibilityHeartbeat(heartbeat))
	}

	return opts, nil
}

func toInt32(name string, v int) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("--%s value %d is out of range", name, v)
	}

	return int32(v), nil
}

// runConsumer prints each message to w until stop is set. A positive limit
// sets stop after that many messages were printed.
func runConsumer(ctx context.Context, queue comlink.Queue, stop *comlink.StopToken, w io.Writer, limit int, logger types.Logger, opts ...comlink.Option) error {
	var (
		mu      sync.Mutex
		printed int
	)

	handler := comlink.NonBlocking(func(ctx context.Context, body string) error {
		out := printedMessage{Body: body}

		if msg, ok := comlink.FromContext(ctx); ok {
			out.ID = msg.ID
			out.ReceiveCount = msg.ReceiveCount
			out.Attributes = msg.Attributes
		}

		line, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}

		mu.Lock()
		defer mu.Unlock()

		if _, err := fmt.Fprintln(w, string(line)); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}

		printed++
		if limit > 0 && printed >= limit {
			stop.Set()
		}

		return nil
	})

	consumer, err := comlink.NewRaw(queue, handler, logger, opts...)
	if err != nil {
		return err
	}

	return consumer.Run(ctx, stop)
}

func buildLogger(cfg *config) (types.Logger, error) {
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	return newLogger(slog.New(handler)), nil
}
