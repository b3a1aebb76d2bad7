// Package logging wraps log/slog with the small surface the rest of the
// server uses: leveled methods that take a context and an optional error,
// plus derived loggers carrying a component name and bound fields.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel orders the server's log levels from most to least verbose.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l LogLevel) String() string {
	if l < LevelDebug || l > LevelFatal {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel converts a config string ("debug", "info", ...) to a LogLevel.
// Unknown strings fall back to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger is the logging interface handed to the server's components.
// Fields are alternating key/value pairs; keys that are not strings are
// dropped rather than reported.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// ServerLogger implements Logger on top of log/slog.
type ServerLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	fields    map[string]interface{}
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      LogLevel
	Format     string // "json" or "text"
	Output     io.Writer
	TimeFormat string
	AddSource  bool
	Component  string
}

// DefaultConfig returns default logger configuration. Logs go to stderr;
// stdout is reserved for command output such as one-shot render results.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:      LevelInfo,
		Format:     "text",
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// NewLogger builds a ServerLogger from config; nil means DefaultConfig.
func NewLogger(config *LoggerConfig) *ServerLogger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level.slogLevel(),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &ServerLogger{
		logger:    slog.New(handler),
		level:     config.Level,
		component: config.Component,
		fields:    make(map[string]interface{}),
	}
}

// NewNop returns a logger that discards everything. Used by tests and by
// --quiet paths that still need a Logger value.
func NewNop() *ServerLogger {
	return NewLogger(&LoggerConfig{Level: LevelFatal, Output: io.Discard})
}

func (l *ServerLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= LevelDebug {
		l.log(ctx, slog.LevelDebug, nil, msg, fields)
	}
}

func (l *ServerLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= LevelInfo {
		l.log(ctx, slog.LevelInfo, nil, msg, fields)
	}
}

func (l *ServerLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	if l.level <= LevelWarn {
		l.log(ctx, slog.LevelWarn, err, msg, fields)
	}
}

func (l *ServerLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	if l.level <= LevelError {
		l.log(ctx, slog.LevelError, err, msg, fields)
	}
}

// With returns a copy of the logger with the given key/value pairs bound
// to every subsequent record. The receiver is left untouched.
func (l *ServerLogger) With(fields ...interface{}) Logger {
	bound := make(map[string]interface{}, len(l.fields)+len(fields)/2)
	for k, v := range l.fields {
		bound[k] = v
	}
	insertPairs(bound, fields)

	return &ServerLogger{
		logger:    l.logger,
		level:     l.level,
		component: l.component,
		fields:    bound,
	}
}

// WithComponent returns a copy of the logger tagged with a component name
// ("manager", "websocket", ...).
func (l *ServerLogger) WithComponent(component string) Logger {
	return &ServerLogger{
		logger:    l.logger,
		level:     l.level,
		component: component,
		fields:    l.fields,
	}
}

func (l *ServerLogger) log(ctx context.Context, level slog.Level, err error, msg string, fields []interface{}) {
	attrs := make([]slog.Attr, 0, len(l.fields)+len(fields)/2+2)

	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	for k, v := range l.fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	pairs := make(map[string]interface{}, len(fields)/2)
	insertPairs(pairs, fields)
	for k, v := range pairs {
		attrs = append(attrs, slog.Any(k, v))
	}

	record := slog.NewRecord(time.Now(), level, msg, 0)
	record.AddAttrs(attrs...)
	l.logger.Handler().Handle(ctx, record)
}

// insertPairs folds alternating key/value arguments into dst, skipping
// trailing keys without values and keys that are not strings.
func insertPairs(dst map[string]interface{}, pairs []interface{}) {
	for i := 0; i+1 < len(pairs); i += 2 {
		if key, ok := pairs[i].(string); ok {
			dst[key] = pairs[i+1]
		}
	}
}
