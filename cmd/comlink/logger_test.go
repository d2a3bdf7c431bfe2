package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger(level slog.Level) (*slogLogger, *bytes.Buffer) {
	var buf bytes.Buffer

	logger := newLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))

	return logger, &buf
}

func TestSlogLogger_Fields(t *testing.T) {
	t.Parallel()

	logger, buf := newBufferLogger(slog.LevelDebug)

	logger.WithField("queue_name", "orders").
		WithFields(map[string]any{"message_id": "m1"}).
		Infof("handled %d messages", 3)

	out := buf.String()
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, `msg="handled 3 messages"`)
	assert.Contains(t, out, "queue_name=orders")
	assert.Contains(t, out, "message_id=m1")
}

func TestSlogLogger_Levels(t *testing.T) {
	t.Parallel()

	logger, buf := newBufferLogger(slog.LevelInfo)

	logger.Debug("debug message")
	logger.Debugf("debug %s", "formatted")
	logger.Info("info message")
	logger.Error("error message")
	logger.Errorf("error %s", "formatted")

	out := buf.String()
	assert.NotContains(t, out, "debug")
	assert.Contains(t, out, "info message")
	assert.Contains(t, out, "error message")
	assert.Contains(t, out, `msg="error formatted"`)
}
