// Package logging defines the structured-logging interface used across
// gophsky. The default implementation wraps log/slog.
//
// Tokens and passwords must never reach a logger verbatim; pass them through
// Redact first.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "session restored", "did", did, "handle", handle)
type Logger interface {
	// Debug logs diagnostic detail (XRPC calls, poll ticks).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Redact shortens a secret to a prefix that is safe to log, so two log
// lines can still be correlated without exposing the value.
func Redact(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 12:
		return "***"
	default:
		return secret[:6] + "***"
	}
}
