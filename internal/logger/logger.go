package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	level string
	slog  *slog.Logger
}

func New(level string) *Logger {
	return NewWithWriter(level, "text", os.Stderr)
}

// NewWithWriter builds a logger writing text or json records to w.
func NewWithWriter(level, format string, w io.Writer) *Logger {
	level = strings.ToLower(level)
	opts := &slog.HandlerOptions{Level: slogLevel(level)}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		level: level,
		slog:  slog.New(h),
	}
}

// Nop discards everything. Used by tests.
func Nop() *Logger {
	return NewWithWriter("error", "text", io.Discard)
}

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(slog.LevelInfo, msg, args...)
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(slog.LevelDebug, msg, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(slog.LevelWarn, msg, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log(slog.LevelError, "FATAL "+msg, args...)
	os.Exit(1)
}

func (l *Logger) Level() string {
	return l.level
}

func (l *Logger) log(level slog.Level, msg string, args ...interface{}) {
	ctx := context.Background()
	if !l.slog.Enabled(ctx, level) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.slog.Log(ctx, level, msg)
}
