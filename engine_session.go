package goTrust

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goTrust/internal/flows"
	"github.com/MrEthical07/goTrust/session"
)

// CreateSession opens a session for an authenticated account and returns the
// bearer token. The role is snapshotted; the fingerprint is derived from sig
// and never changes for the life of the session.
func (e *Engine) CreateSession(ctx context.Context, acct *Account, sig Signals) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	if acct == nil || acct.ID == "" {
		return "", ErrInvalidInput
	}

	id, err := session.NewID()
	if err != nil {
		return "", err
	}
	now := e.now()
	s := &session.Session{
		ID:           id,
		AccountID:    acct.ID,
		Role:         acct.Role,
		Fingerprint:  session.Fingerprint(sig, e.config.Session.FingerprintIncludeIP),
		CreatedAt:    now,
		LastActivity: now,
	}
	ttl := s.TTL(now, e.config.Session.IdleTimeout, e.config.Session.AbsoluteLifetime) + sessionRetentionGrace

	sctx, cancel := e.storeCtx(ctx)
	err = e.sessions.Create(sctx, s, ttl)
	cancel()
	if err != nil {
		return "", e.dependencyError(ctx, "create session", err)
	}

	token := id
	if e.envelope != nil {
		token, err = e.envelope.Wrap(id, acct.ID)
		if err != nil {
			e.discardSession(ctx, id)
			return "", err
		}
	}

	if err := e.emit(ctx, AuditEvent{
		ActorID: acct.ID,
		Action:  auditSessionCreate,
		Outcome: outcomeSuccess,
		Context: map[string]string{"role": acct.Role},
	}); err != nil {
		e.discardSession(ctx, id)
		return "", err
	}
	e.metricInc(MetricSessionCreated)
	return token, nil
}

// ValidateSession resolves token, checks expiry and fingerprint and extends
// the idle window. Expired and hijacked sessions are destroyed by the call
// that detects them, so a retry sees ErrNoSession.
func (e *Engine) ValidateSession(ctx context.Context, token string, sig Signals) (*SessionResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricValidateLatency, start)

	s, err := e.validate(ctx, token, sig, nil)
	if err != nil {
		return nil, err
	}
	return e.sessionResult(s), nil
}

// validate is the shared body of ValidateSession and the step-up stamps.
// touch may amend the session inside the atomic update.
func (e *Engine) validate(ctx context.Context, token string, sig Signals, touch func(*session.Session)) (*session.Session, error) {
	id, subject, ok := e.parseToken(token)
	if !ok {
		return nil, ErrNoSession
	}

	res := flows.RunValidateSession(ctx, id, session.Fingerprint(sig, e.config.Session.FingerprintIncludeIP), touch, flows.SessionDeps{
		Store:            e.sessions,
		Now:              e.now,
		IdleTimeout:      e.config.Session.IdleTimeout,
		AbsoluteLifetime: e.config.Session.AbsoluteLifetime,
		StoreTimeout:     e.config.Timeouts.Store,
		Retention:        sessionRetentionGrace,
	})

	switch res.Failure {
	case flows.SessionOK:
		if subject != "" && subject != res.Session.AccountID {
			return nil, ErrNoSession
		}
		e.metricInc(MetricSessionValidated)
		if err := e.emit(ctx, AuditEvent{
			ActorID: res.Session.AccountID,
			Action:  auditSessionValidate,
			Outcome: outcomeSuccess,
		}); err != nil {
			return nil, err
		}
		return res.Session, nil

	case flows.SessionExpired:
		e.metricInc(MetricSessionExpired)
		_ = e.emit(ctx, AuditEvent{
			ActorID: res.Session.AccountID,
			Action:  auditSessionExpired,
			Outcome: outcomeDenied,
		})
		return nil, ErrSessionExpired

	case flows.SessionHijack:
		e.metricInc(MetricSessionHijack)
		e.critical(ctx, "session fingerprint mismatch; session destroyed",
			"account_id", res.Session.AccountID,
			"client_ip", clientIPFromContext(ctx),
		)
		_ = e.emit(ctx, AuditEvent{
			ActorID:  res.Session.AccountID,
			Action:   auditSessionHijack,
			Outcome:  outcomeDenied,
			Severity: SeverityCritical,
			Context:  map[string]string{"user_agent": sig.UserAgent, "platform": sig.Platform},
		})
		return nil, ErrHijackSuspected

	case flows.SessionMissing:
		return nil, ErrNoSession

	case flows.SessionCorrupt:
		e.logger.ErrorContext(ctx, "corrupt session record removed", "error", res.Err)
		e.discardSession(ctx, id)
		return nil, ErrNoSession

	default:
		return nil, e.dependencyError(ctx, "validate session", res.Err)
	}
}

// DestroySession ends the session behind token. Destroying an unknown session
// is not an error.
func (e *Engine) DestroySession(ctx context.Context, token string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	id, _, ok := e.parseToken(token)
	if !ok {
		return ErrNoSession
	}

	sctx, cancel := e.storeCtx(ctx)
	existing, getErr := e.sessions.Get(sctx, id)
	err := e.sessions.Delete(sctx, id)
	cancel()
	if err != nil {
		return e.dependencyError(ctx, "destroy session", err)
	}
	if getErr != nil {
		return nil
	}

	e.metricInc(MetricSessionDestroyed)
	return e.emit(ctx, AuditEvent{
		ActorID: existing.AccountID,
		Action:  auditSessionDestroy,
		Outcome: outcomeSuccess,
	})
}

// InvalidateAllForAccount destroys every session of accountID and reports how
// many were live.
func (e *Engine) InvalidateAllForAccount(ctx context.Context, accountID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if accountID == "" {
		return 0, ErrInvalidInput
	}

	sctx, cancel := e.storeCtx(ctx)
	n, err := e.sessions.DeleteAllForAccount(sctx, accountID)
	cancel()
	if err != nil {
		return 0, e.dependencyError(ctx, "invalidate sessions", err)
	}

	e.metricInc(MetricSessionsRevoked)
	return n, e.emit(ctx, AuditEvent{
		ActorID:  ActorIDFromContext(ctx),
		Action:   auditSessionRevokeAll,
		Outcome:  outcomeSuccess,
		Severity: SeverityWarning,
		Context: map[string]string{
			"account_id": accountID,
			"revoked":    strconv.Itoa(n),
		},
	})
}

// parseToken returns the session ID carried by token and, for signed
// envelopes, the account it was issued to.
func (e *Engine) parseToken(token string) (id, subject string, ok bool) {
	if token == "" {
		return "", "", false
	}
	if e.envelope != nil {
		claims, err := e.envelope.Unwrap(token)
		if err != nil || !session.ValidID(claims.SID) {
			return "", "", false
		}
		return claims.SID, claims.Subject, true
	}
	if !session.ValidID(token) {
		return "", "", false
	}
	return token, "", true
}

func (e *Engine) sessionResult(s *session.Session) *SessionResult {
	now := e.now()
	res := &SessionResult{
		SessionID: s.ID,
		AccountID: s.AccountID,
		Role:      s.Role,
		CreatedAt: s.CreatedAt,
	}
	if s.StepUpActive(now, e.config.StepUp.TTL) {
		res.StepUpActive = true
		res.StepUpMethod = s.StepUpMethod
		res.StepUpExpiresAt = s.StepUpVerifiedAt.Add(e.config.StepUp.TTL)
	}
	return res
}

// discardSession removes a session best-effort after a later step of its
// creation failed, or after its record turned out unreadable.
func (e *Engine) discardSession(ctx context.Context, id string) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.Timeouts.Store)
	defer cancel()
	if err := e.sessions.Delete(sctx, id); err != nil && !errors.Is(err, session.ErrNotFound) {
		e.logger.ErrorContext(ctx, "session cleanup failed", "error", err)
	}
}
