package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// JobLogHandler wraps an slog.Handler and additionally appends records to
// a log file inside the job root. Records emitted before the view exists
// go only to the wrapped handler; once the log directory appears, every
// record is also written there so diagnostics stay with the job.
//
// Implementation follows the slog handler guide for shared state across
// WithAttrs/WithGroup: https://pkg.go.dev/golang.org/x/example/slog-handler-guide
type JobLogHandler struct {
	slog.Handler
	logPath  string
	preAttrs []slog.Attr // attrs added via WithAttrs
}

// NewJobLogHandler creates a handler that wraps the given handler and
// mirrors records to logPath once its directory exists.
func NewJobLogHandler(wrapped slog.Handler, logPath string) *JobLogHandler {
	return &JobLogHandler{
		Handler: wrapped,
		logPath: logPath,
	}
}

// Handle passes the record to the wrapped handler and mirrors it to the
// job log.
func (h *JobLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.Handler.Handle(ctx, r); err != nil {
		return err
	}
	h.writeToJobLog(ctx, r)
	return nil
}

// writeToJobLog appends one record to the job log file. Opens and closes
// the file for each write to avoid file handle leaks. While the log
// directory does not exist the record is skipped; the mount engine creates
// it when the view is constructed.
func (h *JobLogHandler) writeToJobLog(ctx context.Context, r slog.Record) {
	if h.logPath == "" {
		return
	}
	dir := filepath.Dir(h.logPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return
	}

	// Format log line: timestamp LEVEL message key=value key=value...
	line := fmt.Sprintf("%s %s %s", r.Time.Format(time.RFC3339), r.Level.String(), r.Message)
	for _, a := range h.preAttrs {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})
	line += "\n"

	f, err := os.OpenFile(h.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		h.reportFailure(ctx, "failed to open job log file", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		h.reportFailure(ctx, "failed to write to job log file", err)
	}
}

// reportFailure emits a job log problem through the wrapped handler only.
// This handler is installed as the process default, so logging through
// slog here would re-enter Handle on a record that keeps failing.
func (h *JobLogHandler) reportFailure(ctx context.Context, msg string, err error) {
	rec := slog.NewRecord(time.Now(), slog.LevelWarn, msg, 0)
	rec.AddAttrs(slog.String("path", h.logPath), slog.Any("error", err))
	_ = h.Handler.Handle(ctx, rec)
}

// Enabled reports whether the handler handles records at the given level.
func (h *JobLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.Handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler with the given attributes. Tracks attrs
// locally so bound attributes appear in the job log lines too.
func (h *JobLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newPreAttrs := make([]slog.Attr, len(h.preAttrs), len(h.preAttrs)+len(attrs))
	copy(newPreAttrs, h.preAttrs)
	newPreAttrs = append(newPreAttrs, attrs...)

	return &JobLogHandler{
		Handler:  h.Handler.WithAttrs(attrs),
		logPath:  h.logPath,
		preAttrs: newPreAttrs,
	}
}

// WithGroup returns a new handler with the given group name.
func (h *JobLogHandler) WithGroup(name string) slog.Handler {
	return &JobLogHandler{
		Handler:  h.Handler.WithGroup(name),
		logPath:  h.logPath,
		preAttrs: h.preAttrs,
	}
}
