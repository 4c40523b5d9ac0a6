package core

import (
	"fmt"
	"strings"
	"time"
)

type PoolConfig struct {
	Max              int `koanf:"max" mapstructure:"max"`
	Min              int `koanf:"min" mapstructure:"min"`
	AcquireTimeoutMS int `koanf:"acquire_timeout_ms" mapstructure:"acquire_timeout_ms"`
	IdleTimeoutMS    int `koanf:"idle_timeout_ms" mapstructure:"idle_timeout_ms"`
}

func (c PoolConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMS) * time.Millisecond
}

func (c PoolConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMS) * time.Millisecond
}

type RetryConfig struct {
	MaxRetries  int  `koanf:"max_retries" mapstructure:"max_retries"`
	BaseDelayMS int  `koanf:"base_delay_ms" mapstructure:"base_delay_ms"`
	Jitter      bool `koanf:"jitter" mapstructure:"jitter"`
}

func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

type ResolverConfig struct {
	// BypassRoles may read tenants other than their own claim. Kept
	// configurable rather than hard-coded; platform_admin alone by default.
	BypassRoles []string `koanf:"bypass_roles" mapstructure:"bypass_roles"`
}

type CacheConfig struct {
	TTLSeconds int    `koanf:"ttl_seconds" mapstructure:"ttl_seconds"`
	Prefix     string `koanf:"prefix" mapstructure:"prefix"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Pool        PoolConfig     `koanf:"pool" mapstructure:"pool"`
	Retry       RetryConfig    `koanf:"retry" mapstructure:"retry"`
	Resolver    ResolverConfig `koanf:"resolver" mapstructure:"resolver"`
	Cache       CacheConfig    `koanf:"cache" mapstructure:"cache"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "tenant",
		Pool: PoolConfig{
			Max:              10,
			Min:              2,
			AcquireTimeoutMS: 5000,
			IdleTimeoutMS:    60000,
		},
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMS: 50,
		},
		Resolver: ResolverConfig{
			BypassRoles: []string{RolePlatformAdmin},
		},
		Cache: CacheConfig{
			TTLSeconds: 30,
			Prefix:     "go-tenant::tenant::v1",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Pool.Max < 0 || c.Pool.Min < 0 {
		return fmt.Errorf("core: pool bounds must be non-negative")
	}
	if c.Pool.Max > 0 && c.Pool.Min > c.Pool.Max {
		return fmt.Errorf("core: pool min %d exceeds max %d", c.Pool.Min, c.Pool.Max)
	}
	if c.Pool.AcquireTimeoutMS < 0 {
		return fmt.Errorf("core: pool acquire_timeout_ms must be non-negative")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("core: retry max_retries must be non-negative")
	}
	if c.Retry.BaseDelayMS < 0 {
		return fmt.Errorf("core: retry base_delay_ms must be non-negative")
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("core: cache ttl_seconds must be non-negative")
	}
	return nil
}
