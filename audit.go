package privauth

import (
	"context"
	"io"

	internalaudit "github.com/privora/privauth/internal/audit"
)

// AuditEvent is a structured security event emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives AuditEvent values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an AuditSink that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// JSONWriterSink writes JSON-encoded events, one per line, to an io.Writer.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewJSONWriterSink creates a JSONWriterSink that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

const (
	auditEventRegister      = "account_register"
	auditEventEmailVerify   = "email_verify"
	auditEventLogin         = "login"
	auditEventResetRequest  = "password_reset_request"
	auditEventResetVerify   = "password_reset_verify"
	auditEventResetResend   = "password_reset_resend"
	auditEventResetConfirm  = "password_reset_confirm"
	auditEventMailSendError = "mail_send_failed"
)

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, accountID, email string, opErr error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		EventType: eventType,
		AccountID: accountID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}

	e.audit.Emit(ctx, event)
}

// emitMailFailure records an email that could not be delivered. It is its own
// event type so a user stuck waiting for a code that never arrived is
// discoverable from the audit stream alone.
func (e *Engine) emitMailFailure(ctx context.Context, accountID, email, purpose string, sendErr error) {
	e.emitAudit(ctx, auditEventMailSendError, false, accountID, email, sendErr, map[string]string{
		"purpose": purpose,
	})
}
