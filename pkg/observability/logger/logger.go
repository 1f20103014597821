// Package logger defines the structured logging contract used across the
// job service, with a zap-backed implementation.
package logger

import "context"

// Logger is the structured logging interface. Every method takes a message
// followed by alternating key-value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a child logger whose entries always carry the given
	// key-value pairs.
	With(args ...any) Logger

	// WithContext returns a child logger enriched with correlation fields
	// extracted from the context, such as the active trace and span ids.
	WithContext(ctx context.Context) Logger
}

// nopLogger discards everything. Useful as a default and in tests.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (n nopLogger) With(...any) Logger { return n }

func (n nopLogger) WithContext(context.Context) Logger { return n }

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}
