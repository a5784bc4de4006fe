// Package logger provides the process logger and context plumbing.
package logger

import (
	"context"
	"log/slog"
	"os"
)

type contextKey string

const loggerKey contextKey = "logger"

// New builds the process logger: text output on stderr so diagnostics land
// in the workload manager's prologue log, debug level when verbose. When
// jobLogPath is non-empty, records are also mirrored there once the job
// root exists.
func New(verbose bool, jobLogPath string) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if jobLogPath != "" {
		handler = NewJobLogHandler(handler, jobLogPath)
	}
	return slog.New(handler)
}

// AddToContext adds a logger to the context
func AddToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from context, or returns default
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
