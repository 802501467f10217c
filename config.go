package goRecover

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goRecover/capability"
)

// Config defines the tunables of an [Engine].
//
// Config values are copied by [Builder.WithConfig]; mutating the original
// afterwards has no effect on a built Engine.
type Config struct {
	Code       CodeConfig
	Throttle   ThrottleConfig
	Capability CapabilityConfig
	Mail       MailConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Timeouts   TimeoutConfig
}

/*
====================================
VERIFICATION CODE CONFIG
====================================
*/

// CodeConfig controls verification code generation and storage.
type CodeConfig struct {
	Digits      int
	TTL         time.Duration
	RedisPrefix string
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig is the budget applied before every verification-code
// lookup, keyed by (Action, client IP).
type ThrottleConfig struct {
	Action      string
	Limit       int
	Window      time.Duration
	RedisPrefix string
}

/*
====================================
CAPABILITY CONFIG
====================================
*/

// CapabilityConfig holds the active key of the capability token codec.
type CapabilityConfig struct {
	Key []byte
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig controls verification mail content and the delivery queue.
// BodyTemplate may reference {code} and {minutes}.
type MailConfig struct {
	Subject      string
	BodyTemplate string
	Workers      int
	BufferSize   int
	DropIfFull   bool
	SendTimeout  time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles in-process counters and the flow latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
TIMEOUT CONFIG
====================================
*/

// TimeoutConfig bounds individual I/O calls. Zero leaves the caller's
// context deadline as the only bound. A store timeout surfaces as
// ErrStorage, a provider timeout as ErrUpstream.
type TimeoutConfig struct {
	Store    time.Duration
	Provider time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used by [New]. The capability
// key is empty and must be provided.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Code: CodeConfig{
			Digits:      6,
			TTL:         5 * time.Minute,
			RedisPrefix: "vc",
		},
		Throttle: ThrottleConfig{
			Action:      "code-verification-request",
			Limit:       3,
			Window:      60 * time.Second,
			RedisPrefix: "thr",
		},
		Mail: MailConfig{
			Subject:      "Verification email",
			BodyTemplate: "Your verification code is {code}. It expires in {minutes} minutes.",
			Workers:      2,
			BufferSize:   256,
			DropIfFull:   true,
			SendTimeout:  10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Timeouts: TimeoutConfig{
			Store:    2 * time.Second,
			Provider: 5 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Capability.Key = cloneBytes(cfg.Capability.Key)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Code
	if c.Code.Digits < 6 || c.Code.Digits > 10 {
		return errors.New("Code Digits must be between 6 and 10")
	}
	if c.Code.TTL <= 0 {
		return errors.New("Code TTL must be > 0")
	}
	if c.Code.TTL < time.Second {
		return errors.New("Code TTL must be at least one second")
	}

	// Throttle
	if strings.TrimSpace(c.Throttle.Action) == "" {
		return errors.New("Throttle Action must be set")
	}
	if c.Throttle.Limit <= 0 {
		return errors.New("Throttle Limit must be > 0")
	}
	if c.Throttle.Window < time.Millisecond {
		return errors.New("Throttle Window must be >= 1ms")
	}
	if c.Throttle.RedisPrefix != "" && c.Throttle.RedisPrefix == c.Code.RedisPrefix {
		return errors.New("Throttle and Code redis prefixes must differ")
	}

	// Capability
	if len(c.Capability.Key) != capability.KeySize {
		return errors.New("Capability Key must be 32 bytes")
	}

	// Mail
	if strings.TrimSpace(c.Mail.Subject) == "" {
		return errors.New("Mail Subject must be set")
	}
	if !strings.Contains(c.Mail.BodyTemplate, "{code}") {
		return errors.New("Mail BodyTemplate must contain {code}")
	}
	if c.Mail.Workers <= 0 {
		return errors.New("Mail Workers must be > 0")
	}
	if c.Mail.BufferSize <= 0 {
		return errors.New("Mail BufferSize must be > 0")
	}
	if c.Mail.SendTimeout < 0 {
		return errors.New("Mail SendTimeout must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Timeouts
	if c.Timeouts.Store < 0 || c.Timeouts.Provider < 0 {
		return errors.New("Timeouts must be >= 0")
	}

	return nil
}
