package internaldefs

import (
	goTrust "github.com/MrEthical07/goTrust"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goTrust.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   goTrust.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goTrust.MetricAuthSuccess, Name: "gotrust_auth_success_total", Help: "Successful credential authentications."},
	{ID: goTrust.MetricAuthFailure, Name: "gotrust_auth_failure_total", Help: "Rejected credential authentications (unknown handle or wrong secret)."},
	{ID: goTrust.MetricAuthLocked, Name: "gotrust_auth_locked_total", Help: "Authentications refused because the account was locked."},
	{ID: goTrust.MetricAuthRateLimited, Name: "gotrust_auth_rate_limited_total", Help: "Authentications refused by the per-address throttle."},
	{ID: goTrust.MetricLockEngaged, Name: "gotrust_lock_engaged_total", Help: "Account locks engaged by the lockout policy."},
	{ID: goTrust.MetricRehashPersisted, Name: "gotrust_rehash_persisted_total", Help: "Password hashes upgraded on login."},
	{ID: goTrust.MetricPasswordChanged, Name: "gotrust_password_changed_total", Help: "Successful password changes."},
	{ID: goTrust.MetricAccountUnlocked, Name: "gotrust_account_unlocked_total", Help: "Administrative account unlocks."},
	{ID: goTrust.MetricSessionCreated, Name: "gotrust_session_created_total", Help: "Created sessions."},
	{ID: goTrust.MetricSessionValidated, Name: "gotrust_session_validated_total", Help: "Successful session validations."},
	{ID: goTrust.MetricSessionExpired, Name: "gotrust_session_expired_total", Help: "Sessions destroyed on idle or absolute expiry."},
	{ID: goTrust.MetricSessionHijack, Name: "gotrust_session_hijack_total", Help: "Sessions destroyed on fingerprint mismatch."},
	{ID: goTrust.MetricSessionDestroyed, Name: "gotrust_session_destroyed_total", Help: "Explicit session logouts."},
	{ID: goTrust.MetricSessionsRevoked, Name: "gotrust_sessions_revoked_total", Help: "Invalidate-all operations."},
	{ID: goTrust.MetricPermissionGranted, Name: "gotrust_permission_granted_total", Help: "Permission checks granted by the role table."},
	{ID: goTrust.MetricPermissionDenied, Name: "gotrust_permission_denied_total", Help: "Permission checks denied."},
	{ID: goTrust.MetricOwnershipGrant, Name: "gotrust_ownership_grant_total", Help: "Resource checks granted by ownership."},
	{ID: goTrust.MetricStepUpRequired, Name: "gotrust_step_up_required_total", Help: "Authorizations refused for a missing step-up."},
	{ID: goTrust.MetricBiometricEnrolled, Name: "gotrust_biometric_enrolled_total", Help: "Biometric templates enrolled."},
	{ID: goTrust.MetricBiometricConfirmed, Name: "gotrust_biometric_confirmed_total", Help: "Biometric enrollments confirmed."},
	{ID: goTrust.MetricBiometricMatch, Name: "gotrust_biometric_match_total", Help: "Successful biometric verifications."},
	{ID: goTrust.MetricBiometricMismatch, Name: "gotrust_biometric_mismatch_total", Help: "Failed biometric verifications."},
	{ID: goTrust.MetricBiometricTemplateLocked, Name: "gotrust_biometric_template_locked_total", Help: "Templates locked by repeated mismatches."},
	{ID: goTrust.MetricBiometricDecryptFailure, Name: "gotrust_biometric_decrypt_failure_total", Help: "Templates excluded after a decrypt or integrity failure."},
	{ID: goTrust.MetricBiometricRateLimited, Name: "gotrust_biometric_rate_limited_total", Help: "Biometric attempts refused by the throttle."},
	{ID: goTrust.MetricBiometricRemoved, Name: "gotrust_biometric_removed_total", Help: "Biometric templates removed."},
	{ID: goTrust.MetricTOTPSuccess, Name: "gotrust_totp_success_total", Help: "Successful TOTP step-ups."},
	{ID: goTrust.MetricTOTPFailure, Name: "gotrust_totp_failure_total", Help: "Rejected TOTP codes."},
	{ID: goTrust.MetricAuditFailure, Name: "gotrust_audit_failure_total", Help: "Audit events the sink failed to record."},
	{ID: goTrust.MetricDependencyFailure, Name: "gotrust_dependency_failure_total", Help: "Store, audit or throttle failures that forced a deny."},
}

// HistogramDefs lists the exported latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goTrust.MetricAuthenticateLatency, Name: "gotrust_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
	{ID: goTrust.MetricValidateLatency, Name: "gotrust_validate_latency_seconds", Help: "Session validation latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundValues is HistogramBounds as seconds, without the +Inf
// bucket.
var HistogramBoundValues = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket in exporters that cannot carry a
// label.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the engine's eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
