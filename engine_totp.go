package goTrust

import (
	"context"
	"errors"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/MrEthical07/goTrust/session"
)

// StepUpWithTOTP validates the session behind token, checks code against the
// account's TOTP secret and marks the session as stepped up.
func (e *Engine) StepUpWithTOTP(ctx context.Context, token string, sig Signals, code string) (*SessionResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if !e.config.TOTP.Enabled || e.totpSecrets == nil {
		return nil, ErrTOTPDisabled
	}
	code = strings.TrimSpace(code)
	if code == "" || len(code) > 10 {
		return nil, ErrInvalidInput
	}

	res, err := e.ValidateSession(ctx, token, sig)
	if err != nil {
		return nil, err
	}
	if err := e.allow(ctx, "totp:"+res.AccountID, ErrTOTPRateLimited); err != nil {
		return nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	secret, err := e.totpSecrets.TOTPSecret(sctx, res.AccountID)
	cancel()
	if err != nil {
		if errors.Is(err, ErrTOTPNotConfigured) {
			return nil, ErrTOTPNotConfigured
		}
		return nil, e.dependencyError(ctx, "totp secret lookup", err)
	}
	if secret == "" {
		return nil, ErrTOTPNotConfigured
	}

	ok, err := totp.ValidateCustom(code, secret, e.now().UTC(), e.totpOpts())
	if err != nil || !ok {
		e.metricInc(MetricTOTPFailure)
		_ = e.emit(ctx, AuditEvent{
			ActorID:  res.AccountID,
			Action:   auditStepUp,
			Outcome:  outcomeFailure,
			Severity: SeverityWarning,
			Context:  map[string]string{"method": StepUpTOTP},
		})
		return nil, ErrTOTPInvalid
	}
	e.metricInc(MetricTOTPSuccess)
	return e.stampStepUp(ctx, token, sig, StepUpTOTP)
}

// GenerateTOTP creates a new TOTP secret for accountName with the engine's
// parameters. It returns the base32 secret to store and the otpauth URI to
// show the user; nothing is persisted.
func (e *Engine) GenerateTOTP(accountName string) (secret, uri string, err error) {
	if e == nil {
		return "", "", ErrEngineNotReady
	}
	if !e.config.TOTP.Enabled {
		return "", "", ErrTOTPDisabled
	}
	if accountName == "" {
		return "", "", ErrInvalidInput
	}
	opts := e.totpOpts()
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.config.Session.Issuer,
		AccountName: accountName,
		Period:      opts.Period,
		Digits:      opts.Digits,
		Algorithm:   opts.Algorithm,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func (e *Engine) totpOpts() totp.ValidateOpts {
	opts := totp.ValidateOpts{
		Period:    e.config.TOTP.Period,
		Skew:      e.config.TOTP.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
	if e.config.TOTP.Digits == 8 {
		opts.Digits = otp.DigitsEight
	}
	switch strings.ToUpper(e.config.TOTP.Algorithm) {
	case "SHA256":
		opts.Algorithm = otp.AlgorithmSHA256
	case "SHA512":
		opts.Algorithm = otp.AlgorithmSHA512
	}
	return opts
}

// stampStepUp records a completed step-up on the session behind token. The
// session is revalidated inside the same atomic update, so a session
// destroyed meanwhile is not revived.
func (e *Engine) stampStepUp(ctx context.Context, token string, sig Signals, method string) (*SessionResult, error) {
	s, err := e.validate(ctx, token, sig, func(s *session.Session) {
		s.StepUpVerifiedAt = e.now()
		s.StepUpMethod = method
	})
	if err != nil {
		return nil, err
	}
	if err := e.emit(ctx, AuditEvent{
		ActorID: s.AccountID,
		Action:  auditStepUp,
		Outcome: outcomeSuccess,
		Context: map[string]string{"method": method},
	}); err != nil {
		return nil, err
	}
	return e.sessionResult(s), nil
}
