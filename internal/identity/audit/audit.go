// Package audit records security-relevant identity events. The current
// backend is structured logging; the Recorder interface keeps the service
// layer independent of where the trail ends up.
package audit

import (
	"context"
	"log/slog"
)

// Event names the auditable actions of the identity service.
type Event string

const (
	EventRegistered      Event = "account.registered"
	EventLoginSucceeded  Event = "login.succeeded"
	EventLoginFailed     Event = "login.failed"
	EventLoginDenied     Event = "login.denied"
	EventOTPIssued       Event = "otp.issued"
	EventOTPVerified     Event = "otp.verified"
	EventOTPRejected     Event = "otp.rejected"
	EventTOTPEnrolled    Event = "totp.enrolled"
	EventTOTPEnabled     Event = "totp.enabled"
	EventTOTPDisabled    Event = "totp.disabled"
	EventPasswordChanged Event = "password.changed"
	EventRoleAssigned    Event = "role.assigned"
)

// Recorder persists audit events. Implementations must not fail the calling
// operation; recording is best effort.
type Recorder interface {
	Record(ctx context.Context, event Event, accountID string, attrs ...slog.Attr)
}

// SlogRecorder writes the audit trail to the service logger under a fixed
// "audit" marker so downstream pipelines can filter on it.
type SlogRecorder struct {
	Log *slog.Logger
}

func (r *SlogRecorder) Record(ctx context.Context, event Event, accountID string, attrs ...slog.Attr) {
	args := make([]any, 0, len(attrs)+2)
	args = append(args,
		slog.String("audit_event", string(event)),
		slog.String("account_id", accountID),
	)
	for _, a := range attrs {
		args = append(args, a)
	}
	r.Log.InfoContext(ctx, "audit", args...)
}

// Noop discards events. Used in tests that do not assert on the trail.
type Noop struct{}

func (Noop) Record(context.Context, Event, string, ...slog.Attr) {}
