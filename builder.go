package goRecover

import (
	"errors"
	"time"

	"github.com/MrEthical07/goRecover/capability"
	internalaudit "github.com/MrEthical07/goRecover/internal/audit"
	"github.com/MrEthical07/goRecover/internal/mailqueue"
	"github.com/MrEthical07/goRecover/internal/rate"
	"github.com/MrEthical07/goRecover/internal/stores"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine].
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	sqlDB  *sqlx.DB

	provider  IdentityProvider
	mail      MailSender
	auditSink AuditSink
	logger    *zap.Logger
	now       func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New starts from [DefaultConfig]; the capability key still has to be set.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the throttle and, unless [Builder.WithSQL]
// is used, the verification code store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSQL keeps verification codes in Postgres instead of Redis. The
// verification_codes table must exist (see stores.Schema).
func (b *Builder) WithSQL(db *sqlx.DB) *Builder {
	b.sqlDB = db
	return b
}

// WithIdentityProvider sets the identity provider every flow delegates
// account state to. Required.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithMailSender sets the sender the mail queue workers deliver codes
// through. Required.
func (b *Builder) WithMailSender(m MailSender) *Builder {
	b.mail = m
	return b
}

// WithCapabilityKey sets the 32-byte key of the capability token codec.
func (b *Builder) WithCapabilityKey(key []byte) *Builder {
	b.config.Capability.Key = cloneBytes(key)
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// Setting a sink does not enable auditing; Config.Audit.Enabled does.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the parent logger. Engine logs go to a child named
// "recover". A nil logger discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source used for code expiry, throttle
// windows and latency. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters behind
// [Engine.MetricsSnapshot].
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles per-flow latency histograms. They are
// recorded only while metrics are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration and collaborators and starts the mail
// workers and, when enabled, the audit dispatcher. A Builder can be built
// only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.provider == nil {
		return nil, errors.New("identity provider required")
	}

	if b.mail == nil {
		return nil, errors.New("mail sender required")
	}

	codec, err := capability.NewCodec(cfg.Capability.Key)
	if err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("recover")

	// -------- CODE STORE --------
	storeOpts := stores.Options{TTL: cfg.Code.TTL, Now: now}
	var codes stores.CodeStore
	if b.sqlDB != nil {
		codes = stores.NewPostgresCodeStore(b.sqlDB, storeOpts)
	} else {
		codes = stores.NewRedisCodeStore(b.redis, cfg.Code.RedisPrefix, storeOpts)
	}

	// -------- THROTTLE --------
	throttle := rate.NewThrottle(b.redis, cfg.Throttle.RedisPrefix)
	throttle.SetClock(now)

	engine := &Engine{
		config:   cloneConfig(cfg),
		throttle: throttle,
		codes:    codes,
		codec:    codec,
		provider: b.provider,
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger,
		now:      now,
	}

	mailLog := logger.Named("mail")
	engine.mail = mailqueue.New(mailqueue.Config{
		Workers:     cfg.Mail.Workers,
		BufferSize:  cfg.Mail.BufferSize,
		DropIfFull:  cfg.Mail.DropIfFull,
		SendTimeout: cfg.Mail.SendTimeout,
	}, b.mail, func(_ mailqueue.Message, err error) {
		mailLog.Warn("verification mail delivery failed", zap.Error(err))
	})

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return engine, nil
}
