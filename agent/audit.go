package agent

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditSecretSet      AuditEvent = "secret_set"
	AuditLoginSuccess   AuditEvent = "login_success"
	AuditLoginFailure   AuditEvent = "login_failure"
	AuditLogout         AuditEvent = "logout"
	AuditSecretRotated  AuditEvent = "secret_rotated"
	AuditSecretRejected AuditEvent = "secret_rotation_rejected"
	AuditWipeArmed      AuditEvent = "wipe_armed"
	AuditWipePerformed  AuditEvent = "wipe_performed"
	AuditWipeRejected   AuditEvent = "wipe_rejected"
	AuditRelayAdded     AuditEvent = "relay_added"
	AuditRelayCleared   AuditEvent = "relay_cleared"
	AuditRelayBroadcast AuditEvent = "relay_broadcast"
	AuditFlagToggled    AuditEvent = "flag_toggled"
	AuditCommandRun     AuditEvent = "command_run"
	AuditCommandFailed  AuditEvent = "command_failed"
	AuditResetFileUsed  AuditEvent = "reset_file_applied"
)

// auditLogger wraps slog.Logger for structured security audit logging.
type auditLogger struct {
	logger *slog.Logger
	alerts *alertCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry for an exchange with identity.
func (al *auditLogger) log(ctx context.Context, event AuditEvent, identity string, attrs ...slog.Attr) {
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("identity", identity),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", baseAttrs...)
	if al.alerts != nil {
		al.alerts.recordEvent(event)
	}
}

// logFailure logs a rejected attempt with its reason.
func (al *auditLogger) logFailure(ctx context.Context, event AuditEvent, identity, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(ctx, event, identity, attrs...)
}
