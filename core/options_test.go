package core

import (
	"context"
	"testing"
)

func TestCfgxConfigProvider_MergesRawOverDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(staticRawConfigLoader{Values: map[string]any{
		"service_name": "booking-core",
		"pool": map[string]any{
			"max": 25,
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "booking-core" {
		t.Fatalf("expected loaded service name, got %q", cfg.ServiceName)
	}
	if cfg.Pool.Max != 25 {
		t.Fatalf("expected loaded pool max, got %d", cfg.Pool.Max)
	}
	if cfg.Retry.MaxRetries != DefaultConfig().Retry.MaxRetries {
		t.Fatalf("expected default retries to survive, got %d", cfg.Retry.MaxRetries)
	}
}

func TestCfgxConfigProvider_NilLoaderReturnsDefaults(t *testing.T) {
	cfg, err := NewCfgxConfigProvider(nil).Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "tenant" || cfg.Pool.Max != 10 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestGoOptionsResolver_RuntimeWinsOverLoaded(t *testing.T) {
	defaults := DefaultConfig()

	loaded := defaults
	loaded.ServiceName = "from-config"
	loaded.Pool.Max = 30

	runtime := Config{}
	runtime.Pool = PoolConfig{Max: 40, Min: 4, AcquireTimeoutMS: 100, IdleTimeoutMS: 1000}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Pool.Max != 40 {
		t.Fatalf("runtime layer must win, got pool max %d", resolved.Pool.Max)
	}
	if resolved.ServiceName != "from-config" {
		t.Fatalf("config layer must win over defaults, got %q", resolved.ServiceName)
	}
	if resolved.Retry.MaxRetries != defaults.Retry.MaxRetries {
		t.Fatalf("defaults must fill unset values, got %d", resolved.Retry.MaxRetries)
	}
}

func TestGoOptionsResolver_RejectsInvalidMerge(t *testing.T) {
	runtime := Config{Pool: PoolConfig{Max: 1, Min: 5}}
	if _, err := (GoOptionsResolver{}).Resolve(DefaultConfig(), DefaultConfig(), runtime); err == nil {
		t.Fatalf("expected validation failure for min above max")
	}
}
