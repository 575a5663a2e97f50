package goTrust

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	internalaudit "github.com/MrEthical07/goTrust/internal/audit"
)

const (
	auditAuthenticate      = "authenticate"
	auditAccountLocked     = "account_locked"
	auditPasswordChange    = "password_change"
	auditAccountUnlock     = "account_unlock"
	auditSessionCreate     = "session_create"
	auditSessionValidate   = "session_validate"
	auditSessionExpired    = "session_expired"
	auditSessionHijack     = "session_hijack"
	auditSessionDestroy    = "session_destroy"
	auditSessionRevokeAll  = "session_revoke_all"
	auditPermissionDenied  = "permission_denied"
	auditOwnershipGrant    = "ownership_grant"
	auditStepUpRequired    = "step_up_required"
	auditBiometricEnroll   = "biometric_enroll"
	auditBiometricConfirm  = "biometric_confirm"
	auditBiometricVerify   = "biometric_verify"
	auditBiometricDecrypt  = "biometric_decrypt_failure"
	auditBiometricThrottle = "biometric_rate_limited"
	auditBiometricRemove   = "biometric_remove"
	auditStepUp            = "step_up"
)

const (
	outcomeSuccess = internalaudit.OutcomeSuccess
	outcomeFailure = internalaudit.OutcomeFailure
	outcomeDenied  = internalaudit.OutcomeDenied
	outcomeError   = internalaudit.OutcomeError
)

// emit records event. It returns an error only when the audit policy is
// fail-closed and the event could not be recorded; callers that mutate state
// must then roll back or deny.
func (e *Engine) emit(ctx context.Context, event AuditEvent) error {
	if e == nil || e.audit == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	if ip := clientIPFromContext(ctx); ip != "" {
		event.Context = withContextValue(event.Context, "client_ip", ip)
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		event.Context = withContextValue(event.Context, "request_id", rid)
	}

	if e.dispatcher != nil {
		// Async delivery never blocks the decision; drops are counted by
		// the dispatcher.
		if err := e.dispatcher.Emit(ctx, event); err != nil {
			e.metricInc(MetricAuditFailure)
		}
		return nil
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Timeouts.Audit)
	defer cancel()
	err := e.audit.Emit(actx, event)
	if err == nil {
		return nil
	}

	e.metricInc(MetricAuditFailure)
	e.logger.ErrorContext(ctx, "audit emit failed",
		"action", event.Action,
		"event_id", event.ID,
		"error", err,
	)
	if e.config.Audit.FailClosed {
		return fmt.Errorf("%w: audit: %v", ErrDependencyTimeout, err)
	}
	return nil
}

func withContextValue(m map[string]string, k, v string) map[string]string {
	if m == nil {
		m = make(map[string]string, 2)
	}
	m[k] = v
	return m
}
