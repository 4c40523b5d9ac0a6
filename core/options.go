package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	persistenceClient any
	repositoryFactory any
	tenantStore       TenantStore
	directory         TenantDirectory
	tokenVerifier     TokenVerifier
	auditSink         AuditSink
	cache             CacheService
	pool              ConnectionPool
	contextResolver   ContextResolver
	runner            TransactionRunner
	coordinator       EffectCoordinator
	guard             IsolationGuard
	externalOps       ExternalOperationStore
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithTenantStore(store TenantStore) Option {
	return func(b *serviceBuilder) {
		b.tenantStore = store
	}
}

func WithTenantDirectory(directory TenantDirectory) Option {
	return func(b *serviceBuilder) {
		b.directory = directory
	}
}

func WithTokenVerifier(verifier TokenVerifier) Option {
	return func(b *serviceBuilder) {
		b.tokenVerifier = verifier
	}
}

func WithAuditSink(sink AuditSink) Option {
	return func(b *serviceBuilder) {
		b.auditSink = sink
	}
}

func WithCache(cache CacheService) Option {
	return func(b *serviceBuilder) {
		b.cache = cache
	}
}

func WithConnectionPool(pool ConnectionPool) Option {
	return func(b *serviceBuilder) {
		b.pool = pool
	}
}

func WithContextResolver(resolver ContextResolver) Option {
	return func(b *serviceBuilder) {
		b.contextResolver = resolver
	}
}

func WithTransactionRunner(runner TransactionRunner) Option {
	return func(b *serviceBuilder) {
		b.runner = runner
	}
}

func WithEffectCoordinator(coordinator EffectCoordinator) Option {
	return func(b *serviceBuilder) {
		b.coordinator = coordinator
	}
}

func WithIsolationGuard(guard IsolationGuard) Option {
	return func(b *serviceBuilder) {
		b.guard = guard
	}
}

func WithExternalOperationStore(store ExternalOperationStore) Option {
	return func(b *serviceBuilder) {
		b.externalOps = store
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("tenant", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return tenantErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || cfg.Pool != (PoolConfig{}) {
		layer["pool"] = map[string]any{
			"max":                cfg.Pool.Max,
			"min":                cfg.Pool.Min,
			"acquire_timeout_ms": cfg.Pool.AcquireTimeoutMS,
			"idle_timeout_ms":    cfg.Pool.IdleTimeoutMS,
		}
	}
	if includeZero || cfg.Retry != (RetryConfig{}) {
		layer["retry"] = map[string]any{
			"max_retries":   cfg.Retry.MaxRetries,
			"base_delay_ms": cfg.Retry.BaseDelayMS,
			"jitter":        cfg.Retry.Jitter,
		}
	}
	if includeZero || len(cfg.Resolver.BypassRoles) > 0 {
		layer["resolver"] = map[string]any{
			"bypass_roles": append([]string(nil), cfg.Resolver.BypassRoles...),
		}
	}
	if includeZero || cfg.Cache != (CacheConfig{}) {
		layer["cache"] = map[string]any{
			"ttl_seconds": cfg.Cache.TTLSeconds,
			"prefix":      cfg.Cache.Prefix,
		}
	}
	return layer
}
