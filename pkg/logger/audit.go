package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent is the log-side mirror of a persisted audit record.
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger emits audit events to the structured log alongside the database
// trail, so security events survive even when the database write fails.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt records a sign-in, code-verification or lockout event.
// Failures log at Warn so they stand out in aggregated logs.
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}

	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs,
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.Time("at", time.Now().UTC()),
	)
	attrs = appendNonEmpty(attrs, "user_id", event.UserID)
	attrs = appendNonEmpty(attrs, "ip_address", event.IPAddress)
	attrs = appendNonEmpty(attrs, "failure_reason", event.FailureReason)

	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogSessionEvent records session lifecycle events (idle timeouts, forced
// sign-outs, revocations).
func (al *AuditLogger) LogSessionEvent(eventType, userID string, metadata map[string]string) {
	attrs := make([]slog.Attr, 0, 4+len(metadata))
	attrs = append(attrs,
		slog.String("audit_type", "session"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		slog.Time("at", time.Now().UTC()),
	)
	for k, v := range metadata {
		attrs = append(attrs, slog.String(k, v))
	}
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

func appendNonEmpty(attrs []slog.Attr, key, val string) []slog.Attr {
	if val == "" {
		return attrs
	}
	return append(attrs, slog.String(key, val))
}
