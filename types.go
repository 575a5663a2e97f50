package goTrust

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goTrust/biometric"
	internalaudit "github.com/MrEthical07/goTrust/internal/audit"
	"github.com/MrEthical07/goTrust/session"
	"github.com/MrEthical07/goTrust/store"
)

// Account is the credential record returned by Authenticate.
type Account = store.Account

// BiometricTemplate is an enrolled template. EncryptedVector never leaves
// the engine decrypted.
type BiometricTemplate = store.Template

// AccountStore and TemplateStore are the durable collaborators the engine
// mutates atomically.
type AccountStore = store.AccountStore
type TemplateStore = store.TemplateStore

// Signals are the client-declared attributes a session fingerprint is
// computed from.
type Signals = session.Signals

// FeatureExtractor and PreviewStore are the biometric collaborators.
type FeatureExtractor = biometric.FeatureExtractor
type PreviewStore = biometric.PreviewStore

// AuditEvent is the record handed to an AuditSink.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events. Emit must honor ctx.
type AuditSink = internalaudit.Sink

// Audit severities.
const (
	SeverityInfo     = internalaudit.SeverityInfo
	SeverityWarning  = internalaudit.SeverityWarning
	SeverityCritical = internalaudit.SeverityCritical
)

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel, mostly for tests.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON line per event.
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink logs audit events through logger; critical events use the
// CRITICAL level.
func NewSlogSink(logger *slog.Logger) *internalaudit.SlogSink {
	return internalaudit.NewSlogSink(logger, levelCritical)
}

// Ownership reports whether actorID owns (created, is assigned to) the
// resource being accessed. CheckResource grants access when it returns true
// regardless of the role table.
type Ownership func(actorID string) bool

// OwnedBy is the common Ownership predicate: the actor is one of ownerIDs.
func OwnedBy(ownerIDs ...string) Ownership {
	return func(actorID string) bool {
		if actorID == "" {
			return false
		}
		for _, id := range ownerIDs {
			if id == actorID {
				return true
			}
		}
		return false
	}
}

// SessionResult is returned by ValidateSession and Authorize.
type SessionResult struct {
	SessionID    string
	AccountID    string
	Role         string
	CreatedAt    time.Time
	StepUpActive bool
	StepUpMethod string
	// StepUpExpiresAt is zero when StepUpActive is false.
	StepUpExpiresAt time.Time
}

// VerifyResult reports a biometric verification. Distances maps template ID
// to the computed distance; the vector itself is never exposed.
type VerifyResult struct {
	Matched    bool
	TemplateID string
	Distance   float64
	Distances  map[string]float64
	// Excluded lists templates skipped because they failed to decrypt.
	Excluded []string
}

// Step-up methods recorded on a session.
const (
	StepUpBiometric = "biometric"
	StepUpTOTP      = "totp"
)

// TOTPSecretProvider returns the base32 TOTP secret of an account, or
// ErrTOTPNotConfigured when the account has none.
type TOTPSecretProvider interface {
	TOTPSecret(ctx context.Context, accountID string) (string, error)
}

// TOTPSecretFunc adapts a function to TOTPSecretProvider.
type TOTPSecretFunc func(ctx context.Context, accountID string) (string, error)

func (f TOTPSecretFunc) TOTPSecret(ctx context.Context, accountID string) (string, error) {
	return f(ctx, accountID)
}

// Limiter throttles step-up attempts per key. Allow returns nil to proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}
