package tenant

import (
	"context"

	"github.com/goliatone/go-tenant/cache"
	"github.com/goliatone/go-tenant/coordinator"
	"github.com/goliatone/go-tenant/core"
	"github.com/goliatone/go-tenant/isolation"
	"github.com/goliatone/go-tenant/pool"
	"github.com/goliatone/go-tenant/resolver"
	"github.com/goliatone/go-tenant/secrets"
	"github.com/goliatone/go-tenant/txn"
)

// WithJWTVerifier installs the HMAC token verifier with the given secret.
func WithJWTVerifier(secret string) Option {
	return core.WithTokenVerifier(resolver.NewHMACVerifier(secret))
}


// Setup builds a fully wired service: anything the options do not supply is
// filled with the default runtime (in-memory cache, per-tenant pool manager,
// JWT-aware resolver, transaction orchestrator, effect coordinator, and the
// SQL isolation guard). Options passed by the caller always win.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	return setup(cfg, nil, opts...)
}

// SetupSealed is Setup for deployments that store tenant connection strings
// as secret envelopes: the default pool decrypts sealed DSNs with the given
// provider before dialing. Plaintext DSNs still pass through, so tenants can
// be migrated one at a time.
func SetupSealed(cfg Config, provider secrets.Provider, opts ...Option) (*Service, error) {
	return setup(cfg, provider, opts...)
}

func setup(cfg Config, dsnSecrets secrets.Provider, opts ...Option) (*Service, error) {
	// First pass resolves stores and caller-supplied collaborators so the
	// default runtime can be composed around them.
	base, err := core.NewService(cfg, opts...)
	if err != nil {
		return nil, err
	}
	resolved := base.Config()

	cacheService := base.Cache()
	if cacheService == nil {
		cacheService = cache.NewMemory()
	}

	// Tenant lookups on the hot path read through the cache; the service
	// invalidates the same keys on every tenant mutation, so the resolver
	// never sees a stale standing after a suspend or subscription change.
	lookupStore := cache.NewTenantStore(base.TenantStore(), cacheService, resolved.Cache.Prefix, resolved.Cache.TTL())

	connectionPool := base.Pool()
	if connectionPool == nil {
		descriptor := pool.DescriptorFromStore(lookupStore)
		if dsnSecrets != nil {
			descriptor = secrets.OpeningDescriptor(dsnSecrets, descriptor)
		}
		connectionPool = pool.NewManager(pool.Config{
			Descriptor: descriptor,
			Pool:       resolved.Pool,
		})
	}

	contextResolver := resolver.NewResolver(resolver.Config{
		Store:       lookupStore,
		Directory:   base.Directory(),
		Verifier:    base.TokenVerifier(),
		Pool:        connectionPool,
		Audit:       base.AuditSink(),
		BypassRoles: resolved.Resolver.BypassRoles,
	})
	runner := txn.NewOrchestrator(txn.Config{Pool: connectionPool})
	effectCoordinator := coordinator.NewCoordinator(coordinator.Config{
		Runner:     runner,
		Operations: base.ExternalOperations(),
	})

	defaults := []Option{
		WithTenantStore(base.TenantStore()),
		WithAuditSink(base.AuditSink()),
		WithExternalOperationStore(base.ExternalOperations()),
		WithCache(cacheService),
		WithConnectionPool(connectionPool),
		WithContextResolver(contextResolver),
		WithTransactionRunner(runner),
		WithEffectCoordinator(effectCoordinator),
		WithIsolationGuard(isolation.NewGuard()),
	}

	service, err := core.NewService(cfg, append(defaults, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := service.Init(context.Background()); err != nil {
		return nil, err
	}
	return service, nil
}
