package termsort

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with termsort-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithKind adds the sort kind.
func (l *Logger) WithKind(k Kind) *Logger {
	return &Logger{Logger: l.Logger.With("kind", k.String())}
}

// WithWorkers adds the worker count.
func (l *Logger) WithWorkers(n int) *Logger {
	return &Logger{Logger: l.Logger.With("workers", n)}
}

// LogCheckpoint logs a checkpoint upload.
func (l *Logger) LogCheckpoint(ctx context.Context, version uint64, bytes int64, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "checkpoint failed",
			"duration", d,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "checkpoint completed",
			"version", version,
			"bytes", bytes,
			"duration", d,
		)
	}
}

// LogResume logs a restart from a checkpoint.
func (l *Logger) LogResume(ctx context.Context, patches int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "resume failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "resumed from checkpoint",
			"patches", patches,
		)
	}
}

// LogParallelStart logs the start of a parallel sort.
func (l *Logger) LogParallelStart(ctx context.Context, workers, bucketSize int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "parallel sort failed to start",
			"workers", workers,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "parallel sort started",
			"workers", workers,
			"bucket_size", bucketSize,
		)
	}
}
