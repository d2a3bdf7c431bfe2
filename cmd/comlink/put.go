package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/slackmgr/comlink"
	"github.com/urfave/cli/v2"
)

func put(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one message body is required")
	}

	opts, err := putOptions(c.Int(flagDelay), c.String(flagGroupID), c.String(flagDeduplicationID), c.StringSlice(flagAttribute))
	if err != nil {
		return err
	}

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

	producer, err := comlink.NewProducer(queue, comlink.RawString)
	if err != nil {
		return err
	}

	for _, body := range c.Args().Slice() {
		id, err := producer.Send(c.Context, body, opts...)
		if err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		fmt.Fprintln(c.App.Writer, id)
	}

	return nil
}

func putOptions(delay int, groupID, dedupID string, attributes []string) ([]comlink.PutOption, error) {
	var opts []comlink.PutOption

	if delay < 0 || delay > 900 {
		return nil, fmt.Errorf("delay must be between 0 and 900 seconds, got %d", delay)
	}

	if delay > 0 {
		opts = append(opts, comlink.WithDelaySeconds(int32(delay)))
	}

	if groupID != "" {
		opts = append(opts, comlink.WithGroupID(groupID))
	}

	if dedupID != "" {
		opts = append(opts, comlink.WithDeduplicationID(dedupID))
	}

	for _, attr := range attributes {
		key, value, found := strings.Cut(attr, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("attribute %q is formatted incorrectly, expected KEY=VALUE", attr)
		}

		opts = append(opts, comlink.WithAttribute(key, value))
	}

	return opts, nil
}
