package logger

import (
	"fmt"
	"log/slog"
	"os"
)

// Constants for logging levels
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Environments the service may run in
// Development prefers human readable text, production prefers JSON
const (
	EnvDevelopment = "dev"
	EnvProduction  = "prod"
)

// Logger interface defines the logging contract
// Values of credential keys (password, tokens, authorization, secret) are written as [REDACTED]
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// New creates logger suitable for the environment
func New(env string, level string) (Logger, error) {
	switch env {
	case EnvDevelopment:
		return NewTextLogger(level)
	case EnvProduction:
		return NewJSONLogger(level)
	default:
		return nil, fmt.Errorf("unknown environment %q, expected %q or %q", env, EnvDevelopment, EnvProduction)
	}
}

const (
	formatText = "text"
	formatJSON = "json"
)

// NewTextLogger creates a new text logger with the specified level
func NewTextLogger(level string) (Logger, error) {
	return newSlogLogger(os.Stderr, formatText, level)
}

// NewJSONLogger creates a new JSON logger with the specified level
func NewJSONLogger(level string) (Logger, error) {
	return newSlogLogger(os.Stderr, formatJSON, level)
}

// NewNoOpLogger creates a logger that discards all log messages
func NewNoOpLogger() Logger {
	return &slogLogger{logger: slog.New(slog.DiscardHandler)}
}
