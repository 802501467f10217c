package goRecover

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Capability.Key = testKey()
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with key valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "missing key invalid",
			mutate: func(c *Config) {
				c.Capability.Key = nil
			},
			wantValid: false,
		},
		{
			name: "short key invalid",
			mutate: func(c *Config) {
				c.Capability.Key = make([]byte, 16)
			},
			wantValid: false,
		},
		{
			name: "code digits eight valid",
			mutate: func(c *Config) {
				c.Code.Digits = 8
			},
			wantValid: true,
		},
		{
			name: "code digits four invalid",
			mutate: func(c *Config) {
				c.Code.Digits = 4
			},
			wantValid: false,
		},
		{
			name: "code ttl sub-second invalid",
			mutate: func(c *Config) {
				c.Code.TTL = 500 * time.Millisecond
			},
			wantValid: false,
		},
		{
			name: "throttle limit zero invalid",
			mutate: func(c *Config) {
				c.Throttle.Limit = 0
			},
			wantValid: false,
		},
		{
			name: "throttle action blank invalid",
			mutate: func(c *Config) {
				c.Throttle.Action = "  "
			},
			wantValid: false,
		},
		{
			name: "throttle window zero invalid",
			mutate: func(c *Config) {
				c.Throttle.Window = 0
			},
			wantValid: false,
		},
		{
			name: "shared redis prefix invalid",
			mutate: func(c *Config) {
				c.Throttle.RedisPrefix = "x"
				c.Code.RedisPrefix = "x"
			},
			wantValid: false,
		},
		{
			name: "mail template without code invalid",
			mutate: func(c *Config) {
				c.Mail.BodyTemplate = "hello"
			},
			wantValid: false,
		},
		{
			name: "mail workers zero invalid",
			mutate: func(c *Config) {
				c.Mail.Workers = 0
			},
			wantValid: false,
		},
		{
			name: "audit enabled without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "histograms without metrics invalid",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
		{
			name: "zero timeouts valid",
			mutate: func(c *Config) {
				c.Timeouts = TimeoutConfig{}
			},
			wantValid: true,
		},
		{
			name: "negative timeout invalid",
			mutate: func(c *Config) {
				c.Timeouts.Store = -time.Second
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestDefaultConfigMatchesDocumentedPolicy(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Code.TTL != 5*time.Minute || cfg.Code.Digits != 6 {
		t.Fatalf("unexpected code defaults: %+v", cfg.Code)
	}
	if cfg.Throttle.Action != "code-verification-request" || cfg.Throttle.Limit != 3 || cfg.Throttle.Window != time.Minute {
		t.Fatalf("unexpected throttle defaults: %+v", cfg.Throttle)
	}
	if cfg.Mail.Subject != "Verification email" {
		t.Fatalf("unexpected mail subject %q", cfg.Mail.Subject)
	}
}

func TestWithConfigCopiesKey(t *testing.T) {
	cfg := validTestConfig()
	b := New().WithConfig(cfg)
	cfg.Capability.Key[0] ^= 0xff
	if b.config.Capability.Key[0] == cfg.Capability.Key[0] {
		t.Fatal("builder shares caller's key slice")
	}
}
