// Package logging provides structured logging for the sync engine,
// backed by zerolog.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents a log level.
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// Logger wraps a zerolog.Logger behind the engine's logging API.
type Logger struct {
	zl zerolog.Logger
}

var (
	// global logger instance
	global *Logger
	once   sync.Once
)

// Init initializes the global logger. Subsequent calls are no-ops.
func Init(out io.Writer, minLevel LogLevel) {
	once.Do(func() {
		global = NewLogger(out, minLevel)
	})
}

// Get returns the global logger instance.
func Get() *Logger {
	if global == nil {
		Init(os.Stdout, LevelInfo)
	}
	return global
}

// NewLogger creates a Logger writing JSON lines to out at the given level.
func NewLogger(out io.Writer, minLevel LogLevel) *Logger {
	zl := zerolog.New(out).Level(toZerologLevel(minLevel)).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

func toZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a config string to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, context ...map[string]interface{}) {
	l.zl.Debug().Fields(mergeContext(context...)).Msg(message)
}

// Info logs an info message.
func (l *Logger) Info(message string, context ...map[string]interface{}) {
	l.zl.Info().Fields(mergeContext(context...)).Msg(message)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, context ...map[string]interface{}) {
	l.zl.Warn().Fields(mergeContext(context...)).Msg(message)
}

// Error logs an error message.
func (l *Logger) Error(message string, err error, context ...map[string]interface{}) {
	l.zl.Error().Err(err).Fields(mergeContext(context...)).Msg(message)
}

// ErrorWithCode logs an error message tagged with a stable error code.
func (l *Logger) ErrorWithCode(message, code string, err error, context ...map[string]interface{}) {
	l.zl.Error().Err(err).Str("code", code).Fields(mergeContext(context...)).Msg(message)
}

// mergeContext merges multiple context maps.
func mergeContext(context ...map[string]interface{}) map[string]interface{} {
	if len(context) == 0 {
		return nil
	}
	if len(context) == 1 {
		return context[0]
	}
	merged := make(map[string]interface{})
	for _, c := range context {
		for k, v := range c {
			merged[k] = v
		}
	}
	return merged
}

// Convenience functions using global logger

func Debug(message string, context ...map[string]interface{}) {
	Get().Debug(message, context...)
}

func Info(message string, context ...map[string]interface{}) {
	Get().Info(message, context...)
}

func Warn(message string, context ...map[string]interface{}) {
	Get().Warn(message, context...)
}

func Error(message string, err error, context ...map[string]interface{}) {
	Get().Error(message, err, context...)
}

func ErrorWithCode(message, code string, err error, context ...map[string]interface{}) {
	Get().ErrorWithCode(message, code, err, context...)
}
