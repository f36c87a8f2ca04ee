// Package log provides leveled, structured logging for the login engine.
//
// Loggers are instance-scoped: every component receives the logger it should
// write to instead of mutating process-wide state. Options control level,
// console and file output, and whether timing metrics are emitted.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LevelTrace is a custom trace level below debug
const LevelTrace = slog.Level(-8)

// Options configures a Logger instance.
type Options struct {
	Level         string `json:"level"`         // error, warn, info, debug, trace
	Format        string `json:"format"`        // text (default) or json
	Console       bool   `json:"console"`       // write to stderr
	FilePath      string `json:"filePath"`      // append to file when non-empty
	TimingMetrics bool   `json:"timingMetrics"` // emit Timing() events
}

// DefaultOptions returns the options used when no log config is given.
func DefaultOptions() Options {
	return Options{Level: "info", Format: "text", Console: true}
}

// Logger wraps slog with a trace level and optional timing metrics.
type Logger struct {
	*slog.Logger
	level  slog.Level
	timing bool
	file   *os.File
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "ERROR":
		return slog.LevelError, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "TRACE":
		return LevelTrace, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{
			Key:   slog.TimeKey,
			Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05.000-07:00")),
		}
	}
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			return slog.Attr{Key: slog.LevelKey, Value: slog.StringValue("TRACE")}
		}
	}
	return a
}

func replaceAttrJSON(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{
			Key:   "timestamp",
			Value: slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano)),
		}
	}
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			return slog.Attr{Key: slog.LevelKey, Value: slog.StringValue("TRACE")}
		}
	}
	return a
}

// New builds a logger from opts. The caller owns the logger and should Close
// it when a log file is configured.
func New(opts Options) (*Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var writers []io.Writer
	if opts.Console {
		writers = append(writers, os.Stderr)
	}

	var file *os.File
	if opts.FilePath != "" {
		file, err = os.OpenFile(opts.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		writers = append(writers, file)
	}

	var out io.Writer = io.Discard
	if len(writers) == 1 {
		out = writers[0]
	} else if len(writers) > 1 {
		out = io.MultiWriter(writers...)
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttrJSON})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr})
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		timing: opts.TimingMetrics,
		file:   file,
	}, nil
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		level:  slog.LevelError,
	}
}

// With returns a logger carrying the given attributes on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		level:  l.level,
		timing: l.timing,
		file:   l.file,
	}
}

// Trace logs at the custom trace level.
func (l *Logger) Trace(msg string, args ...any) {
	if l.level <= LevelTrace {
		l.Logger.Log(context.Background(), LevelTrace, msg, args...)
	}
}

// Timing logs the elapsed time for an operation when timing metrics are
// enabled.
func (l *Logger) Timing(op string, start time.Time) {
	if !l.timing {
		return
	}
	l.Logger.Info("timing", "op", op, "seconds", fmt.Sprintf("%.2f", time.Since(start).Seconds()))
}

// TimingEnabled reports whether timing metrics are on.
func (l *Logger) TimingEnabled() bool {
	return l.timing
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
