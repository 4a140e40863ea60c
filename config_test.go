package credtrust

import (
	"strings"
	"testing"
	"time"

	"github.com/credtrust/credtrust/store/memory"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }, "AccessTTL"},
		{"refresh shorter than access", func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL - time.Hour }, "RefreshTTL"},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs512" }, "signing method"},
		{"missing key", func(c *Config) { c.JWT.PrivateKey = nil }, "PrivateKey"},
		{"argon2 memory too low", func(c *Config) { c.Password.Memory = 1024 }, "Memory"},
		{"otp too short", func(c *Config) { c.Verification.OTPDigits = 3 }, "OTPDigits"},
		{"zero lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }, "Threshold"},
		{"bad rate rule", func(c *Config) { c.RateLimit.Rules["login"] = RateRule{Max: 0, Window: time.Minute} }, "RateLimit"},
		{"zero reset ttl", func(c *Config) { c.Reset.SecretTTL = 0 }, "SecretTTL"},
		{"audit without buffer", func(c *Config) { c.Audit.BufferSize = 0 }, "BufferSize"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("err %q does not mention %q", err, tc.wantSub)
			}
		})
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCloneConfigIsolates(t *testing.T) {
	cfg := validConfig()
	clone := cloneConfig(cfg)

	clone.JWT.PrivateKey[0] ^= 0xff
	clone.RateLimit.Rules[EndpointLogin] = RateRule{Max: 1, Window: time.Second}

	if cfg.JWT.PrivateKey[0] == clone.JWT.PrivateKey[0] {
		t.Fatal("clone shares the private key slice")
	}
	if cfg.RateLimit.Rules[EndpointLogin].Max == 1 {
		t.Fatal("clone shares the rules map")
	}
}

func TestBuilderRequiresStore(t *testing.T) {
	if _, err := New().WithConfig(validConfig()).Build(); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithStore(memory.New())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected error on second Build")
	}
}
