package goTrust

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/goTrust/biometric"
	internalaudit "github.com/MrEthical07/goTrust/internal/audit"
	"github.com/MrEthical07/goTrust/internal/keylock"
	"github.com/MrEthical07/goTrust/internal/logging"
	"github.com/MrEthical07/goTrust/internal/throttle"
	"github.com/MrEthical07/goTrust/jwt"
	"github.com/MrEthical07/goTrust/lockout"
	"github.com/MrEthical07/goTrust/password"
	"github.com/MrEthical07/goTrust/permission"
	"github.com/MrEthical07/goTrust/session"
)

const levelCritical = logging.LevelCritical

// sessionRetentionGrace keeps a session record in its store past logical
// expiry, so a late request is told the session expired instead of that it
// never existed.
const sessionRetentionGrace = 10 * time.Minute

// Engine is the identity-trust core. Build one with New().Build(); it is safe
// for concurrent use and immutable after Build.
type Engine struct {
	config Config
	logger *slog.Logger
	now    func() time.Time

	hasher       *password.Hasher
	policy       lockout.Policy
	accounts     AccountStore
	accountLocks *keylock.Striped

	sessions session.Store
	envelope *jwt.Manager // nil unless Session.SignedTokens

	permissions *permission.Table

	templates TemplateStore
	extractor FeatureExtractor
	previews  PreviewStore
	cipher    *biometric.Cipher // nil when the biometric factor is off

	limiter      Limiter
	loginLimiter Limiter
	ownedLocals  []*throttle.Local
	totpSecrets  TOTPSecretProvider

	audit      AuditSink
	dispatcher *internalaudit.Dispatcher
	metrics    *Metrics
}

// Close stops background work: the audit dispatcher (draining its buffer)
// and the local throttle sweeper.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
	for _, l := range e.ownedLocals {
		l.Close()
	}
}

// AuditDropped reports events the async dispatcher discarded.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.dispatcher == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Logger returns the logger the engine writes to.
func (e *Engine) Logger() *slog.Logger {
	if e == nil || e.logger == nil {
		return logging.Discard()
	}
	return e.logger
}

func (e *Engine) ready() bool {
	return e != nil && e.hasher != nil && e.accounts != nil && e.sessions != nil && e.permissions != nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

// storeCtx bounds one call to an external store.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Timeouts.Store)
}

func (e *Engine) critical(ctx context.Context, msg string, args ...any) {
	logging.Critical(ctx, e.logger, msg, args...)
}
