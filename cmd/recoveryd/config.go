package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goRecover/capability"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// config holds the daemon settings read from the environment.
type config struct {
	HTTPAddr       string
	AllowedOrigins []string
	TrustProxy     bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string

	CapabilityKey []byte
	JWTSecret     []byte
	SessionTTL    time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	SweepSchedule string
	AuditEnabled  bool

	LogLevel  string
	LogFormat string
	DevMode   bool
}

// loadConfig reads an optional .env file and then the process
// environment. Values already set in the environment win.
func loadConfig(envFile string) (*config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return configFromEnv(os.Getenv)
}

func configFromEnv(getenv func(string) string) (*config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &config{
		HTTPAddr:      get("HTTP_ADDR", ":8080"),
		RedisAddr:     get("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD"),
		DatabaseURL:   get("DATABASE_URL", ""),
		SMTPHost:      get("SMTP_HOST", ""),
		SMTPUser:      get("SMTP_USER", ""),
		SMTPPassword:  getenv("SMTP_PASSWORD"),
		SMTPFrom:      get("SMTP_FROM", ""),
		SweepSchedule: get("SWEEP_SCHEDULE", "@every 1m"),
		LogLevel:      get("LOG_LEVEL", "info"),
		LogFormat:     get("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(get("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}
	if cfg.SMTPPort, err = strconv.Atoi(get("SMTP_PORT", "587")); err != nil {
		return nil, fmt.Errorf("SMTP_PORT: %w", err)
	}
	if cfg.SessionTTL, err = time.ParseDuration(get("SESSION_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}
	if cfg.DevMode, err = strconv.ParseBool(get("DEV_MODE", "false")); err != nil {
		return nil, fmt.Errorf("DEV_MODE: %w", err)
	}
	if cfg.TrustProxy, err = strconv.ParseBool(get("TRUST_PROXY", "false")); err != nil {
		return nil, fmt.Errorf("TRUST_PROXY: %w", err)
	}
	if cfg.AuditEnabled, err = strconv.ParseBool(get("AUDIT_ENABLED", "false")); err != nil {
		return nil, fmt.Errorf("AUDIT_ENABLED: %w", err)
	}

	if origins := get("ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if hexKey := get("CAPABILITY_KEY", ""); hexKey != "" {
		if cfg.CapabilityKey, err = capability.ParseKey(hexKey); err != nil {
			return nil, fmt.Errorf("CAPABILITY_KEY: %w", err)
		}
	}
	cfg.JWTSecret = []byte(getenv("JWT_SECRET"))

	if !cfg.DevMode {
		if cfg.RedisAddr == "" {
			return nil, errors.New("REDIS_ADDR is required outside DEV_MODE")
		}
		if cfg.CapabilityKey == nil {
			return nil, errors.New("CAPABILITY_KEY is required outside DEV_MODE")
		}
		if len(cfg.JWTSecret) < 32 {
			return nil, errors.New("JWT_SECRET must be at least 32 bytes outside DEV_MODE")
		}
	}
	return cfg, nil
}

func newLogger(cfg *config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.DevMode {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	switch cfg.LogFormat {
	case "json":
		zc.Encoding = "json"
	case "console":
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("LOG_FORMAT: unknown format %q", cfg.LogFormat)
	}
	return zc.Build()
}
