package ops

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/awayuki/lumiline/internal/config"
)

// Logger is a structured logger wrapper
type Logger struct {
	*slog.Logger
	level  slog.Level
	format string
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a new structured logger based on config
func NewLogger(cfg *config.Logging) *Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		format: cfg.Format,
	}
}

// NewLoggerWithWriter creates a logger with a custom writer
func NewLoggerWithWriter(cfg *config.Logging, w io.Writer) *Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
		format: cfg.Format,
	}
}

// WithComponent adds a component field to all log messages
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
		level:  l.level,
		format: l.format,
	}
}

// WithFields adds custom fields to the logger
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
		level:  l.level,
		format: l.format,
	}
}

// IsDebugEnabled returns true if debug logging is enabled
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= slog.LevelDebug
}

// Component-specific logger helpers

// LogQuery logs a relay query and its raw result
func (l *Logger) LogQuery(relays int, kinds []int, since, until int64, returned int, duration time.Duration) {
	l.Debug("relay query",
		"relays", relays,
		"kinds", kinds,
		"since", since,
		"until", until,
		"returned", returned,
		"duration_ms", duration.Milliseconds())
}

// LogMerge logs a merge into the visible view
func (l *Logger) LogMerge(direction string, added, trimmed, total int) {
	l.Debug("view merge",
		"direction", direction,
		"added", added,
		"trimmed", trimmed,
		"total", total)
}

// LogGapFill logs one gap fill step
func (l *Logger) LogGapFill(gapID string, since, until int64, merged int, resolved bool) {
	l.Debug("gap fill step",
		"gap_id", gapID,
		"since", since,
		"until", until,
		"merged", merged,
		"resolved", resolved)
}

// LogPoll logs a watermark poll cycle
func (l *Logger) LogPoll(watermark int64, staged int, pending int) {
	l.Debug("watermark poll",
		"watermark", watermark,
		"staged", staged,
		"pending", pending)
}

// LogFlush logs a reaction flush outcome
func (l *Logger) LogFlush(itemID string, counts map[string]int, costSats int64, err error) {
	if err != nil {
		l.Warn("reaction flush rolled back",
			"item_id", itemID,
			"counts", counts,
			"cost_sats", costSats,
			"error", err)
	} else {
		l.Info("reaction flush committed",
			"item_id", itemID,
			"counts", counts,
			"cost_sats", costSats)
	}
}

// LogPublish logs an event publish attempt
func (l *Logger) LogPublish(eventID string, kind int, err error) {
	if err != nil {
		l.Warn("publish failed",
			"event_id", eventID,
			"kind", kind,
			"error", err)
	} else {
		l.Debug("event published",
			"event_id", eventID,
			"kind", kind)
	}
}

// LogPayment logs a payment attempt; the address is not logged
func (l *Logger) LogPayment(sats int64, err error) {
	if err != nil {
		l.Warn("payment failed",
			"sats", sats,
			"error", err)
	} else {
		l.Info("payment sent",
			"sats", sats)
	}
}

// LogStorageOperation logs a storage operation
func (l *Logger) LogStorageOperation(op string, duration time.Duration, err error) {
	if err != nil {
		l.Error("storage operation failed",
			"operation", op,
			"duration_ms", duration.Milliseconds(),
			"error", err)
	} else {
		l.Debug("storage operation completed",
			"operation", op,
			"duration_ms", duration.Milliseconds())
	}
}

// LogStartup logs application startup information
func (l *Logger) LogStartup(version, commit string) {
	l.Info("lumiline starting",
		"version", version,
		"commit", commit)
}

// LogShutdown logs application shutdown
func (l *Logger) LogShutdown(reason string) {
	l.Info("lumiline shutting down",
		"reason", reason)
}

// LogPanic logs a panic with stack trace
func (l *Logger) LogPanic(recovered interface{}, stack string) {
	l.Error("panic recovered",
		"panic", fmt.Sprintf("%v", recovered),
		"stack", stack)
}

// Default logger configuration
var defaultLogger *Logger

func init() {
	// Create a default logger for early startup
	defaultLogger = NewLogger(&config.Logging{
		Level:  "info",
		Format: "text",
	})
}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Helper functions for common logging patterns

// Info logs an info message
func Info(msg string, fields ...any) {
	defaultLogger.Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...any) {
	defaultLogger.Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...any) {
	defaultLogger.Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...any) {
	defaultLogger.Error(msg, fields...)
}
