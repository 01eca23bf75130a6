package supra

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger receives diagnostic output. keysAndValues alternate between a
// string key and its value.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DebugConfig selects which events reach the logger.
type DebugConfig struct {
	Enabled        bool
	LogRequests    bool
	LogCircuit     bool
	LogCompression bool
	RequestIDGen   func() string
}

// DefaultDebugConfig returns a disabled config that logs everything once
// enabled.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:        false,
		LogRequests:    true,
		LogCircuit:     true,
		LogCompression: true,
		RequestIDGen:   generateRequestID,
	}
}

func generateRequestID() string {
	return "req_" + uuid.NewString()
}

type zerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger adapts a zerolog.Logger.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologLogger{log: l}
}

// NewSimpleLogger writes human-readable lines to stderr.
func NewSimpleLogger() Logger {
	return newConsoleLogger(os.Stderr)
}

func newConsoleLogger(w io.Writer) Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return &zerologLogger{log: zerolog.New(out).With().Timestamp().Str("component", "supra").Logger()}
}

func (l *zerologLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *zerologLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l *zerologLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *zerologLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}
