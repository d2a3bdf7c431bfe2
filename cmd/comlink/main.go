package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	flagDelay             = "delay"
	flagGroupID           = "group-id"
	flagDeduplicationID   = "deduplication-id"
	flagAttribute         = "attribute"
	flagBatchSize         = "batch-size"
	flagVisibilityTimeout = "visibility-timeout"
	flagWaitTime          = "wait-time"
	flagMaxMessages       = "max-messages"
	flagHeartbeat         = "heartbeat"
)

func main() {
	app := cli.NewApp()
	app.Name = "comlink"
	app.Usage = "Put messages on a queue and consume them"
	app.Description = "Transport settings are read from COMLINK_* environment variables " +
		"(COMLINK_BACKEND, COMLINK_QUEUE_NAME, COMLINK_QUEUE_URL, ...)."
	app.Commands = []*cli.Command{
		{
			Name:      "put",
			Usage:     "Put one message per argument on the queue",
			ArgsUsage: "BODY...",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  flagDelay,
					Usage: "Seconds before the message becomes visible",
				},
				&cli.StringFlag{
					Name:  flagGroupID,
					Usage: "Message group ID (required for FIFO queues)",
				},
				&cli.StringFlag{
					Name:  flagDeduplicationID,
					Usage: "Deduplication ID (FIFO queues only)",
				},
				&cli.StringSliceFlag{
					Name:    flagAttribute,
					Aliases: []string{"a"},
					Usage:   "Message attribute as KEY=VALUE; may be repeated",
				},
			},
			Action: put,
		},
		{
			Name:  "consume",
			Usage: "Print messages as JSON lines and remove them",
			Description: "Runs until interrupted with SIGINT or SIGTERM, or until " +
				"--max-messages messages have been handled.",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  flagBatchSize,
					Usage: "Messages per receive (1-10)",
					Value: 1,
				},
				&cli.IntFlag{
					Name:  flagVisibilityTimeout,
					Usage: "Seconds a received message stays hidden",
					Value: 120,
				},
				&cli.IntFlag{
					Name:  flagWaitTime,
					Usage: "Long poll duration in seconds (0-20)",
					Value: 20,
				},
				&cli.IntFlag{
					Name:  flagMaxMessages,
					Usage: "Stop after this many messages (0 means no limit)",
				},
				&cli.DurationFlag{
					Name:  flagHeartbeat,
					Usage: "Keep extending visibility while a message is handled, up to this duration",
				},
			},
			Action: consume,
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
