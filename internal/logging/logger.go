package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// SecurityEvent logs an auth anomaly at WARN with structured fields.
// The HTTP response stays opaque; this log line is the only place the
// real reason is recorded. Events: unknown_device, user_id_mismatch,
// token_type_mismatch, device_reassigned, invalid_oauth_state.
func SecurityEvent(event string, fields ...any) {
	args := append([]any{"event", event}, fields...)
	slog.Warn("security event", args...)
}

// WithUser returns a logger with the user attached. Use it for all logging
// inside an authenticated request.
func WithUser(userID string) *slog.Logger {
	return slog.With("user_id", userID)
}
