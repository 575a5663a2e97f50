package goTrust

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

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

// Builder assembles an Engine. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	templates TemplateStore
	sessions  session.Store
	extractor FeatureExtractor
	previews  PreviewStore

	auditSink   AuditSink
	logger      *slog.Logger
	totpSecrets TOTPSecretProvider
	limiter     Limiter
	now         func() time.Time

	built bool
}

// New returns a Builder carrying DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAccountStore sets the credential store. Required.
func (b *Builder) WithAccountStore(s AccountStore) *Builder {
	b.accounts = s
	return b
}

// WithTemplateStore sets the biometric template store. Required when the
// biometric factor is enabled.
func (b *Builder) WithTemplateStore(s TemplateStore) *Builder {
	b.templates = s
	return b
}

// WithSessionStore overrides the session store. Without it the engine keeps
// sessions in Redis when WithRedis was called and in process memory
// otherwise.
func (b *Builder) WithSessionStore(s session.Store) *Builder {
	b.sessions = s
	return b
}

// WithRedis supplies the client used for the default session store and the
// "redis" throttle backend.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithFeatureExtractor(x FeatureExtractor) *Builder {
	b.extractor = x
	return b
}

func (b *Builder) WithPreviewStore(p PreviewStore) *Builder {
	b.previews = p
	return b
}

// WithAuditSink sets the audit destination. The default logs events through
// the engine logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithTOTPSecrets enables StepUpWithTOTP when TOTP.Enabled is set.
func (b *Builder) WithTOTPSecrets(p TOTPSecretProvider) *Builder {
	b.totpSecrets = p
	return b
}

// WithThrottle replaces the limiter selected by Throttle.Backend.
func (b *Builder) WithThrottle(l Limiter) *Builder {
	b.limiter = l
	return b
}

// WithClock replaces time.Now. The default in-memory session store follows
// the same clock.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if cfg.Biometric.MatchPolicy == "" {
		cfg.Biometric.MatchPolicy = MatchAny
	}
	if cfg.Throttle.Backend == "" {
		cfg.Throttle.Backend = "local"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = logging.New(cfg.Logging)
	}

	// -------- PASSWORD --------
	hasher, err := NewPasswordHasher(cfg)
	if err != nil {
		return nil, err
	}

	// -------- PERMISSIONS --------
	if len(cfg.Permission.Hierarchy) == 0 {
		cfg.Permission.Hierarchy = append([]string(nil), permission.DefaultHierarchy...)
	}
	table, err := permission.Build(cfg.Permission)
	if err != nil {
		return nil, err
	}

	// -------- SESSIONS --------
	sessions := b.sessions
	if sessions == nil {
		if b.redis != nil {
			sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
		} else {
			sessions = session.NewMemoryStore().WithClock(now)
		}
	}

	var envelope *jwt.Manager
	if cfg.Session.SignedTokens {
		envelope, err = buildEnvelope(cfg.Session)
		if err != nil {
			return nil, err
		}
		envelope.WithClock(now)
	}

	engine := &Engine{
		config:       cfg,
		logger:       logger,
		now:          now,
		hasher:       hasher,
		policy:       lockout.Policy{Threshold: cfg.Lockout.Threshold, Duration: cfg.Lockout.Duration},
		accounts:     b.accounts,
		accountLocks: keylock.New(0),
		sessions:     sessions,
		envelope:     envelope,
		permissions:  table,
		templates:    b.templates,
		previews:     b.previews,
		totpSecrets:  b.totpSecrets,
		metrics:      NewMetrics(cfg.Metrics),
	}

	// -------- BIOMETRIC --------
	if cfg.Biometric.Enabled {
		if b.extractor == nil {
			return nil, errors.New("Biometric requires a FeatureExtractor")
		}
		if b.templates == nil {
			return nil, errors.New("Biometric requires a TemplateStore")
		}
		key, _ := decodeKey(cfg.Biometric.Key)
		c, err := biometric.NewCipher(key)
		if err != nil {
			return nil, err
		}
		engine.cipher = c
		engine.extractor = b.extractor
	}

	// -------- THROTTLE --------
	if cfg.Throttle.Backend == "redis" && b.limiter == nil && b.redis == nil {
		return nil, errors.New("Throttle Backend 'redis' requires a redis client")
	}
	engine.limiter = b.newLimiter(engine, cfg.Throttle, cfg.Throttle.Attempts)
	engine.loginLimiter = throttle.Nop{}
	if cfg.Throttle.LoginAttemptsPerIP > 0 {
		engine.loginLimiter = b.newLimiter(engine, cfg.Throttle, cfg.Throttle.LoginAttemptsPerIP)
	}

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = internalaudit.NewSlogSink(logger, levelCritical)
	}
	engine.audit = sink
	if cfg.Audit.Async {
		engine.dispatcher = internalaudit.NewDispatcher(internalaudit.Config{
			BufferSize:  cfg.Audit.BufferSize,
			DropIfFull:  cfg.Audit.DropIfFull,
			EmitTimeout: cfg.Timeouts.Audit,
			OnError: func(ev internalaudit.Event, err error) {
				engine.metricInc(MetricAuditFailure)
				logger.Error("audit delivery failed", "action", ev.Action, "event_id", ev.ID, "error", err)
			},
		}, sink)
	}

	b.built = true

	return engine, nil
}

// NewPasswordHasher returns the hasher an engine built from cfg uses, for
// tools that provision accounts outside the engine.
func NewPasswordHasher(cfg Config) (*password.Hasher, error) {
	return password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinLength,
		MaxPasswordBytes: cfg.Input.MaxSecretBytes,
	})
}

func buildEnvelope(cfg SessionConfig) (*jwt.Manager, error) {
	signing, err := decodeKey(cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("Session SigningKey: %w", err)
	}
	jc := jwt.Config{
		TTL:        cfg.AbsoluteLifetime,
		Issuer:     cfg.Issuer,
		KeyID:      cfg.KeyID,
		PrivateKey: signing,
	}
	switch strings.ToLower(cfg.SigningMethod) {
	case "ed25519":
		jc.SigningMethod = jwt.MethodEd25519
		verify, err := decodeKey(cfg.VerifyKey)
		if err != nil {
			return nil, fmt.Errorf("Session VerifyKey: %w", err)
		}
		jc.PublicKey = verify
	default:
		jc.SigningMethod = jwt.MethodHS256
	}
	return jwt.NewManager(jc)
}

// newLimiter builds a limiter on the configured backend granting attempts per
// Throttle.Window. A limiter supplied through WithThrottle serves every key.
func (b *Builder) newLimiter(engine *Engine, cfg ThrottleConfig, attempts int) Limiter {
	switch {
	case b.limiter != nil:
		return b.limiter
	case cfg.Backend == "off" || attempts <= 0:
		return throttle.Nop{}
	case cfg.Backend == "redis":
		return throttle.NewRedis(b.redis, cfg.RedisPrefix, attempts, cfg.Window)
	default:
		local := throttle.NewLocal(throttle.LocalConfig{
			Every: cfg.Window / time.Duration(attempts),
			Burst: attempts,
		})
		local.StartCleanup(cfg.Window)
		engine.ownedLocals = append(engine.ownedLocals, local)
		return local
	}
}
