package core

import "testing"

func TestDefaultConfig_PassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.ServiceName != "tenant" {
		t.Fatalf("unexpected service name %q", cfg.ServiceName)
	}
	if cfg.Pool.Max != 10 || cfg.Pool.Min != 2 {
		t.Fatalf("unexpected pool bounds %d/%d", cfg.Pool.Min, cfg.Pool.Max)
	}
	if len(cfg.Resolver.BypassRoles) != 1 || cfg.Resolver.BypassRoles[0] != RolePlatformAdmin {
		t.Fatalf("unexpected bypass roles %v", cfg.Resolver.BypassRoles)
	}
}

func TestConfigValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"blank service name", func(c *Config) { c.ServiceName = "  " }},
		{"negative pool max", func(c *Config) { c.Pool.Max = -1 }},
		{"min above max", func(c *Config) { c.Pool.Min = 20 }},
		{"negative acquire timeout", func(c *Config) { c.Pool.AcquireTimeoutMS = -1 }},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }},
		{"negative base delay", func(c *Config) { c.Retry.BaseDelayMS = -1 }},
		{"negative cache ttl", func(c *Config) { c.Cache.TTLSeconds = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Pool.AcquireTimeout().Milliseconds() != 5000 {
		t.Fatalf("unexpected acquire timeout %v", cfg.Pool.AcquireTimeout())
	}
	if cfg.Retry.BaseDelay().Milliseconds() != 50 {
		t.Fatalf("unexpected base delay %v", cfg.Retry.BaseDelay())
	}
	if cfg.Cache.TTL().Seconds() != 30 {
		t.Fatalf("unexpected cache ttl %v", cfg.Cache.TTL())
	}
}

func TestTenantCacheKey_PrefixFallback(t *testing.T) {
	if got := TenantCacheKey("custom::v2", " ten_1 "); got != "custom::v2::ten_1" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := TenantCacheKey("", "ten_1"); got != DefaultConfig().Cache.Prefix+"::ten_1" {
		t.Fatalf("expected default prefix fallback, got %q", got)
	}
}
