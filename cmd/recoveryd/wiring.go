package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/capability"
	"github.com/MrEthical07/goRecover/identity/memory"
	"github.com/MrEthical07/goRecover/internal/stores"
	"github.com/MrEthical07/goRecover/jwt"
	"github.com/MrEthical07/goRecover/mail"
	"github.com/MrEthical07/goRecover/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// runtime is everything a command needs, plus the closers that release it
// in reverse order.
type runtime struct {
	engine   *goRecover.Engine
	provider *memory.Provider
	redis    redis.UniversalClient
	closers  []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func (r *runtime) ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

func buildRuntime(ctx context.Context, cfg *config, logger *zap.Logger) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	// -------- REDIS --------
	addr := cfg.RedisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		rt.closers = append(rt.closers, mr.Close)
		addr = mr.Addr()
		logger.Warn("DEV_MODE: using in-process redis", zap.String("addr", addr))
	}
	rt.redis = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rt.closers = append(rt.closers, func() { _ = rt.redis.Close() })
	if err := rt.ping(ctx); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	// -------- KEYS --------
	capKey := cfg.CapabilityKey
	if capKey == nil {
		if capKey, err = capability.GenerateKey(); err != nil {
			return nil, err
		}
		logger.Warn("DEV_MODE: generated ephemeral capability key; reset payloads will not survive a restart")
	}
	jwtSecret := cfg.JWTSecret
	if len(jwtSecret) < 32 {
		jwtSecret = make([]byte, 32)
		if _, err := rand.Read(jwtSecret); err != nil {
			return nil, err
		}
		logger.Warn("DEV_MODE: generated ephemeral session secret")
	}

	// -------- IDENTITY PROVIDER --------
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, err
	}
	sessions, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.SessionTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    jwtSecret,
		Issuer:        "recoveryd",
	})
	if err != nil {
		return nil, err
	}
	rt.provider, err = memory.New(memory.DefaultConfig(), hasher, sessions)
	if err != nil {
		return nil, err
	}

	// -------- MAIL --------
	var sender goRecover.MailSender
	if cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		sender = mail.NewLogSender(logger, cfg.DevMode)
		logger.Warn("SMTP_HOST not set: verification mail is logged, not sent")
	}

	// -------- ENGINE --------
	recoverCfg := goRecover.DefaultConfig()
	recoverCfg.Audit.Enabled = cfg.AuditEnabled

	b := goRecover.New().
		WithConfig(recoverCfg).
		WithCapabilityKey(capKey).
		WithRedis(rt.redis).
		WithIdentityProvider(rt.provider).
		WithMailSender(sender).
		WithAuditSink(goRecover.NewZapSink(logger.Named("audit"))).
		WithLogger(logger)

	if cfg.DatabaseURL != "" {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = db.Close() })
		if err := stores.NewPostgresCodeStore(db, stores.Options{}).EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		b = b.WithSQL(db)
	}

	rt.engine, err = b.Build()
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, rt.engine.Close)
	return rt, nil
}

func devModeNotice(cfg *config) {
	if cfg.DevMode {
		fmt.Fprintln(os.Stderr, "recoveryd: DEV_MODE is on; do not use in production")
	}
}
