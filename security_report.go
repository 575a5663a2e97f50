package goTrust

import "time"

// SecurityReport is a point-in-time description of the engine's effective
// security posture, suitable for a startup log line or an admin endpoint.
type SecurityReport struct {
	Argon2               PasswordConfigReport
	LockoutThreshold     int
	LockoutDuration      time.Duration
	IdleTimeout          time.Duration
	AbsoluteLifetime     time.Duration
	FingerprintIncludeIP bool
	SignedTokens         bool
	SigningAlgorithm     string
	StepUpTTL            time.Duration
	StepUpPermissions    []string
	Roles                []string
	PermissionCount      int
	BiometricEnabled     bool
	BiometricTolerance   float64
	BiometricThreshold   int
	MatchPolicy          string
	TOTPEnabled          bool
	ThrottleBackend      string
	AuditFailClosed      bool
	AuditAsync           bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	rep := SecurityReport{
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		LockoutThreshold:     e.policy.Threshold,
		LockoutDuration:      e.policy.Duration,
		IdleTimeout:          e.config.Session.IdleTimeout,
		AbsoluteLifetime:     e.config.Session.AbsoluteLifetime,
		FingerprintIncludeIP: e.config.Session.FingerprintIncludeIP,
		SignedTokens:         e.envelope != nil,
		StepUpTTL:            e.config.StepUp.TTL,
		StepUpPermissions:    append([]string(nil), e.config.Permission.StepUpRequired...),
		BiometricEnabled:     e.cipher != nil,
		TOTPEnabled:          e.config.TOTP.Enabled && e.totpSecrets != nil,
		ThrottleBackend:      e.config.Throttle.Backend,
		AuditFailClosed:      e.config.Audit.FailClosed,
		AuditAsync:           e.dispatcher != nil,
	}
	if rep.SignedTokens {
		rep.SigningAlgorithm = e.config.Session.SigningMethod
	}
	if e.permissions != nil {
		rep.Roles = e.permissions.Hierarchy().Roles()
		rep.PermissionCount = e.permissions.Count()
	}
	if rep.BiometricEnabled {
		rep.BiometricTolerance = e.config.Biometric.Tolerance
		rep.BiometricThreshold = e.config.Biometric.FailureThreshold
		rep.MatchPolicy = e.config.Biometric.MatchPolicy
	}
	return rep
}
