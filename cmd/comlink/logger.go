package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slackmgr/types"
)

var _ types.Logger = (*slogLogger)(nil)

// slogLogger adapts a *slog.Logger to types.Logger.
type slogLogger struct {
	logger *slog.Logger
}

func newLogger(logger *slog.Logger) *slogLogger {
	return &slogLogger{logger: logger}
}

//nolint:ireturn // Must return interface to implement types.Logger
func (l *slogLogger) WithField(key string, value any) types.Logger {
	return &slogLogger{logger: l.logger.With(key, value)}
}

//nolint:ireturn // Must return interface to implement types.Logger
func (l *slogLogger) WithFields(fields map[string]any) types.Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	return &slogLogger{logger: l.logger.With(args...)}
}

func (l *slogLogger) Debug(msg string)                  { l.logger.Debug(msg) }
func (l *slogLogger) Debugf(format string, args ...any) { l.logf(slog.LevelDebug, format, args...) }
func (l *slogLogger) Info(msg string)                   { l.logger.Info(msg) }
func (l *slogLogger) Infof(format string, args ...any)  { l.logf(slog.LevelInfo, format, args...) }
func (l *slogLogger) Error(msg string)                  { l.logger.Error(msg) }
func (l *slogLogger) Errorf(format string, args ...any) { l.logf(slog.LevelError, format, args...) }

func (l *slogLogger) logf(level slog.Level, format string, args ...any) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}

	l.logger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}
