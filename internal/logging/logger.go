// Package logging defines the structured logger shared by the client and the
// reference server, plus its log/slog backed implementation.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are key-value pairs, e.g.:
//
//	log.Info(ctx, "record updated", "id", id, "readers", readers)
type Logger interface {
	// Debug logs wire-level detail, off unless the level is debug.
	Debug(ctx context.Context, msg string, args ...any)

	Info(ctx context.Context, msg string, args ...any)

	// Warn logs degraded but recoverable conditions, such as a missing gateway.
	Warn(ctx context.Context, msg string, args ...any)

	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given pairs.
	With(args ...any) Logger
}
