package goTrust

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEngineNotReady is returned by every Engine method on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidInput covers empty or oversized handles, secrets and samples.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is returned for an unknown handle and for a wrong
	// secret alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked matches every *LockedError.
	ErrAccountLocked = errors.New("account locked")

	ErrAccountNotFound = errors.New("account not found")

	ErrNoSession       = errors.New("no session")
	ErrSessionExpired  = errors.New("session expired")
	ErrHijackSuspected = errors.New("session hijack suspected")

	ErrPermissionDenied = errors.New("permission denied")
	// ErrStepUpRequired is returned by Authorize when the permission needs a
	// fresh second factor and the session has none.
	ErrStepUpRequired = errors.New("step-up verification required")

	ErrBiometricDisabled   = errors.New("biometric factor not configured")
	ErrNoEnrollment        = errors.New("no verified biometric enrollment")
	ErrTemplateNotFound    = errors.New("biometric template not found")
	ErrTemplateNotPending  = errors.New("biometric template is not awaiting confirmation")
	ErrFeatureExtraction   = errors.New("feature extraction failed")
	ErrBiometricMismatch   = errors.New("biometric sample did not match")
	ErrBiometricEncryption = errors.New("biometric template encryption failure")
	ErrBiometricLocked     = errors.New("biometric template locked")
	// ErrBiometricRateLimited is returned before any template is touched.
	ErrBiometricRateLimited = errors.New("biometric attempts rate limited")

	ErrTOTPDisabled      = errors.New("totp step-up disabled")
	ErrTOTPNotConfigured = errors.New("totp not configured for account")
	ErrTOTPInvalid       = errors.New("invalid totp code")
	ErrTOTPRateLimited   = errors.New("totp attempts rate limited")

	// ErrLoginRateLimited is returned when the client address exhausted its
	// login budget; no account state is read or written.
	ErrLoginRateLimited = errors.New("login attempts rate limited")

	// ErrDependencyTimeout wraps store, audit and throttle failures. Decisions
	// that hit it deny.
	ErrDependencyTimeout = errors.New("dependency unavailable")
)

// LockedError reports an engaged account lock and how long it still holds.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked: retry in %s", e.Remaining.Round(time.Second))
}

// Is makes errors.Is(err, ErrAccountLocked) hold for every *LockedError.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// ErrorClass is the coarse category a caller branches on.
type ErrorClass string

const (
	ClassNone              ErrorClass = ""
	ClassInputError        ErrorClass = "InputError"
	ClassNotFoundError     ErrorClass = "NotFoundError"
	ClassLockedError       ErrorClass = "LockedError"
	ClassHijackSuspected   ErrorClass = "HijackSuspected"
	ClassEncryptionError   ErrorClass = "EncryptionError"
	ClassDependencyTimeout ErrorClass = "DependencyTimeout"
	ClassDenied            ErrorClass = "Denied"
	ClassInternal          ErrorClass = "Internal"
)

// Classify maps an engine error onto its class. Unknown handles and wrong
// secrets both land in ClassNotFoundError.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrFeatureExtraction):
		return ClassInputError
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrNoSession),
		errors.Is(err, ErrSessionExpired),
		errors.Is(err, ErrNoEnrollment),
		errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrTOTPNotConfigured):
		return ClassNotFoundError
	case errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrBiometricLocked),
		errors.Is(err, ErrBiometricRateLimited),
		errors.Is(err, ErrTOTPRateLimited),
		errors.Is(err, ErrLoginRateLimited):
		return ClassLockedError
	case errors.Is(err, ErrHijackSuspected):
		return ClassHijackSuspected
	case errors.Is(err, ErrBiometricEncryption):
		return ClassEncryptionError
	case errors.Is(err, ErrDependencyTimeout),
		errors.Is(err, ErrEngineNotReady):
		return ClassDependencyTimeout
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrStepUpRequired),
		errors.Is(err, ErrBiometricMismatch),
		errors.Is(err, ErrTOTPInvalid),
		errors.Is(err, ErrTemplateNotPending),
		errors.Is(err, ErrBiometricDisabled),
		errors.Is(err, ErrTOTPDisabled):
		return ClassDenied
	default:
		return ClassInternal
	}
}

// PublicMessage is the text safe to show an end user for err. It never tells
// an unknown handle apart from a wrong secret and never echoes internals.
func PublicMessage(err error) string {
	var locked *LockedError
	switch Classify(err) {
	case ClassNone:
		return ""
	case ClassInputError:
		return "The request could not be processed."
	case ClassNotFoundError:
		if errors.Is(err, ErrNoSession) || errors.Is(err, ErrSessionExpired) {
			return "Please sign in again."
		}
		if errors.Is(err, ErrNoEnrollment) {
			return "No biometric enrollment is available."
		}
		return "Invalid credentials."
	case ClassLockedError:
		if errors.As(err, &locked) {
			return fmt.Sprintf("Account locked. Try again in %d minutes.", minutesCeil(locked.Remaining))
		}
		return "Too many attempts. Try again later."
	case ClassHijackSuspected:
		return "Please sign in again."
	case ClassDenied:
		if errors.Is(err, ErrStepUpRequired) {
			return "Additional verification is required."
		}
		return "Access denied."
	default:
		return "Service temporarily unavailable."
	}
}

func minutesCeil(d time.Duration) int64 {
	m := int64(d / time.Minute)
	if d%time.Minute > 0 {
		m++
	}
	if m < 1 {
		m = 1
	}
	return m
}
