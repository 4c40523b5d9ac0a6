package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

var ErrNotInitialized = errors.New("core: service is not initialized")

// Service is the composition root for the tenant data-access core. It owns
// the pool manager lifecycle and fronts the resolver, orchestrator, and
// coordinator behind the operations downstream code consumes.
type Service struct {
	config            Config
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

	initialized bool
}

// TenantStoreProvider is the subset of the sql store factory the service
// pulls stores from when one is supplied.
type TenantStoreProvider interface {
	TenantStore() TenantStore
	ExternalOperationStore() ExternalOperationStore
	AuditSink() AuditSink
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("tenant", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("tenant"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil {
		if storeProvider, ok := builder.repositoryFactory.(TenantStoreProvider); ok {
			if builder.tenantStore == nil {
				builder.tenantStore = storeProvider.TenantStore()
			}
			if builder.externalOps == nil {
				builder.externalOps = storeProvider.ExternalOperationStore()
			}
			if builder.auditSink == nil {
				builder.auditSink = storeProvider.AuditSink()
			}
		}
	}
	if builder.tenantStore == nil {
		builder.tenantStore = NewMemoryTenantStore()
	}
	if builder.auditSink == nil {
		builder.auditSink = NewMemoryAuditSink()
	}
	if builder.externalOps == nil {
		builder.externalOps = NewMemoryExternalOperationStore()
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		tenantStore:       builder.tenantStore,
		directory:         builder.directory,
		tokenVerifier:     builder.tokenVerifier,
		auditSink:         builder.auditSink,
		cache:             builder.cache,
		pool:              builder.pool,
		contextResolver:   builder.contextResolver,
		runner:            builder.runner,
		coordinator:       builder.coordinator,
		guard:             builder.guard,
		externalOps:       builder.externalOps,
	}, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	if mapped := mapper(err); mapped != nil {
		return mapped
	}
	return err
}

// Init validates wiring. Idempotent.
func (s *Service) Init(ctx context.Context) error {
	if s == nil {
		return ErrNotInitialized
	}
	if s.initialized {
		return nil
	}
	if s.pool == nil {
		return fmt.Errorf("core: connection pool is required")
	}
	if s.contextResolver == nil {
		return fmt.Errorf("core: context resolver is required")
	}
	if s.runner == nil {
		return fmt.Errorf("core: transaction runner is required")
	}
	if s.guard == nil {
		return fmt.Errorf("core: isolation guard is required")
	}
	s.initialized = true
	s.logInfo(ctx, "tenant core initialized", map[string]any{
		"service_name": s.config.ServiceName,
		"pool_max":     s.config.Pool.Max,
	})
	return nil
}

// Teardown closes every tenant pool. The service is unusable afterwards.
func (s *Service) Teardown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.initialized = false
	if s.pool == nil {
		return nil
	}
	if err := s.pool.Teardown(ctx); err != nil {
		s.logError(ctx, "pool teardown failed", map[string]any{"error": err.Error()})
		return mapBuildError(s.errorMapper, err)
	}
	return nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) TenantStore() TenantStore {
	if s == nil {
		return nil
	}
	return s.tenantStore
}

func (s *Service) Cache() CacheService {
	if s == nil {
		return nil
	}
	return s.cache
}

func (s *Service) Pool() ConnectionPool {
	if s == nil {
		return nil
	}
	return s.pool
}

func (s *Service) TokenVerifier() TokenVerifier {
	if s == nil {
		return nil
	}
	return s.tokenVerifier
}

func (s *Service) Directory() TenantDirectory {
	if s == nil {
		return nil
	}
	return s.directory
}

func (s *Service) ExternalOperations() ExternalOperationStore {
	if s == nil {
		return nil
	}
	return s.externalOps
}

func (s *Service) AuditSink() AuditSink {
	if s == nil {
		return nil
	}
	return s.auditSink
}

// ResolveContext resolves tenant + caller and borrows a connection.
func (s *Service) ResolveContext(ctx context.Context, req Request) (*RequestContext, error) {
	if s == nil || s.contextResolver == nil {
		return nil, ErrNotInitialized
	}
	startedAt := time.Now()
	rc, err := s.contextResolver.ResolveContext(ctx, req)
	fields := map[string]any{"tenant_id": req.TenantID}
	if rc != nil {
		fields["tenant_id"] = rc.TenantID
		fields["user_id"] = rc.Caller.UserID
	}
	s.observeOperation(ctx, startedAt, opResolveContext, err, fields)
	if err != nil {
		return nil, mapBuildError(s.errorMapper, err)
	}
	return rc, nil
}

// EnsureIsolation injects the tenant predicate into a query that lacks one.
func (s *Service) EnsureIsolation(query string, params []any, tenantID string) (string, []any, error) {
	if s == nil || s.guard == nil {
		return "", nil, ErrNotInitialized
	}
	scoped, scopedParams, err := s.guard.EnsureIsolation(query, params, tenantID)
	if err != nil {
		return "", nil, mapBuildError(s.errorMapper, err)
	}
	return scoped, scopedParams, nil
}

// RunTransaction executes work atomically on the context's tenant.
func (s *Service) RunTransaction(ctx context.Context, rc *RequestContext, work WorkFunc, opts TxOptions) error {
	if s == nil || s.runner == nil {
		return ErrNotInitialized
	}
	startedAt := time.Now()
	err := s.runner.Run(ctx, rc, work, opts)
	s.observeOperation(ctx, startedAt, opRunTransaction, err, map[string]any{"tenant_id": tenantIDOf(rc)})
	return mapBuildError(s.errorMapper, err)
}

// RunWithRetry re-runs work on serialization conflicts, bounded by retry
// options (falling back to configured defaults for zero values).
func (s *Service) RunWithRetry(ctx context.Context, rc *RequestContext, work WorkFunc, opts TxOptions, retry RetryOptions) error {
	if s == nil || s.runner == nil {
		return ErrNotInitialized
	}
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = s.config.Retry.MaxRetries
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = s.config.Retry.BaseDelay()
	}
	if s.config.Retry.Jitter {
		retry.Jitter = true
	}
	startedAt := time.Now()
	err := s.runner.RunWithRetry(ctx, rc, work, opts, retry)
	s.observeOperation(ctx, startedAt, opRunWithRetry, err, map[string]any{"tenant_id": tenantIDOf(rc)})
	return mapBuildError(s.errorMapper, err)
}

// ExecuteSequence runs an ordered statement batch in one transaction.
func (s *Service) ExecuteSequence(ctx context.Context, rc *RequestContext, statements []SequenceStatement) ([]SequenceResult, error) {
	if s == nil || s.runner == nil {
		return nil, ErrNotInitialized
	}
	results, err := s.runner.ExecuteSequence(ctx, rc, statements)
	if err != nil {
		return nil, mapBuildError(s.errorMapper, err)
	}
	return results, nil
}

// CoordinateExternalEffect sequences an external call with a local
// transaction and best-effort compensation.
func (s *Service) CoordinateExternalEffect(ctx context.Context, rc *RequestContext, req CoordinateRequest) (CoordinateResult, error) {
	if s == nil || s.coordinator == nil {
		return CoordinateResult{}, ErrNotInitialized
	}
	startedAt := time.Now()
	result, err := s.coordinator.Coordinate(ctx, rc, req)
	s.observeOperation(ctx, startedAt, opCoordinateEffect, err, map[string]any{
		"tenant_id": tenantIDOf(rc),
		"kind":      req.Kind,
	})
	return result, mapBuildError(s.errorMapper, err)
}

// CreateTenant provisions a tenant record in the source of truth.
func (s *Service) CreateTenant(ctx context.Context, tenant Tenant) (Tenant, error) {
	if s == nil || s.tenantStore == nil {
		return Tenant{}, ErrNotInitialized
	}
	startedAt := time.Now()
	created, err := s.tenantStore.Create(ctx, tenant)
	if err == nil {
		s.recordAudit(ctx, AuditEvent{
			Kind:     "tenant.created",
			TenantID: created.ID,
			Metadata: map[string]any{"name": created.Name, "status": string(created.Status)},
		})
	}
	s.observeOperation(ctx, startedAt, opTenantCreate, err, map[string]any{"tenant_id": created.ID})
	if err != nil {
		return Tenant{}, mapBuildError(s.errorMapper, err)
	}
	return created, nil
}

// SuspendTenant transitions a tenant to suspended and invalidates its cache.
func (s *Service) SuspendTenant(ctx context.Context, tenantID string, reason string) error {
	return s.transitionTenant(ctx, tenantID, TenantStatusSuspended, reason)
}

// ActivateTenant transitions a tenant to active and invalidates its cache.
func (s *Service) ActivateTenant(ctx context.Context, tenantID string, reason string) error {
	return s.transitionTenant(ctx, tenantID, TenantStatusActive, reason)
}

func (s *Service) transitionTenant(ctx context.Context, tenantID string, status TenantStatus, reason string) error {
	if s == nil || s.tenantStore == nil {
		return ErrNotInitialized
	}
	startedAt := time.Now()
	err := s.tenantStore.UpdateStatus(ctx, tenantID, status, reason)
	if err == nil {
		s.invalidateTenantCache(ctx, tenantID)
		s.recordAudit(ctx, AuditEvent{
			Kind:     "tenant.status_changed",
			TenantID: strings.TrimSpace(tenantID),
			Metadata: map[string]any{"status": string(status), "reason": strings.TrimSpace(reason)},
		})
	}
	s.observeOperation(ctx, startedAt, opTenantStatus, err, map[string]any{
		"tenant_id": tenantID,
		"status":    string(status),
	})
	return mapBuildError(s.errorMapper, err)
}

// UpdateSubscription updates billing state and invalidates the tenant cache.
func (s *Service) UpdateSubscription(ctx context.Context, tenantID string, status SubscriptionStatus, endsAt *time.Time) error {
	if s == nil || s.tenantStore == nil {
		return ErrNotInitialized
	}
	startedAt := time.Now()
	err := s.tenantStore.UpdateSubscription(ctx, tenantID, status, endsAt)
	if err == nil {
		s.invalidateTenantCache(ctx, tenantID)
		s.recordAudit(ctx, AuditEvent{
			Kind:     "tenant.subscription_changed",
			TenantID: strings.TrimSpace(tenantID),
			Metadata: map[string]any{"subscription_status": string(status)},
		})
	}
	s.observeOperation(ctx, startedAt, opTenantSubscription, err, map[string]any{"tenant_id": tenantID})
	return mapBuildError(s.errorMapper, err)
}

// UpdateQuotas replaces tenant resource quotas and invalidates the cache.
func (s *Service) UpdateQuotas(ctx context.Context, tenantID string, quotas ResourceQuotas) error {
	if s == nil || s.tenantStore == nil {
		return ErrNotInitialized
	}
	startedAt := time.Now()
	err := s.tenantStore.UpdateQuotas(ctx, tenantID, quotas)
	if err == nil {
		s.invalidateTenantCache(ctx, tenantID)
	}
	s.observeOperation(ctx, startedAt, opTenantQuota, err, map[string]any{"tenant_id": tenantID})
	return mapBuildError(s.errorMapper, err)
}

// GetTenant reads a tenant from the source of truth.
func (s *Service) GetTenant(ctx context.Context, tenantID string) (Tenant, error) {
	if s == nil || s.tenantStore == nil {
		return Tenant{}, ErrNotInitialized
	}
	tenant, err := s.tenantStore.Get(ctx, tenantID)
	if err != nil {
		return Tenant{}, mapBuildError(s.errorMapper, err)
	}
	return tenant, nil
}

// ListDivergentOperations exposes the reconciliation backlog.
func (s *Service) ListDivergentOperations(ctx context.Context, limit int) ([]ExternalOperation, error) {
	if s == nil || s.externalOps == nil {
		return nil, ErrNotInitialized
	}
	ops, err := s.externalOps.ListDivergent(ctx, limit)
	if err != nil {
		return nil, mapBuildError(s.errorMapper, err)
	}
	return ops, nil
}

func (s *Service) invalidateTenantCache(ctx context.Context, tenantID string) {
	if s == nil || s.cache == nil {
		return
	}
	s.cache.InvalidateByPrefix(ctx, TenantCacheKey(s.config.Cache.Prefix, tenantID))
}

func (s *Service) recordAudit(ctx context.Context, event AuditEvent) {
	if s == nil || s.auditSink == nil {
		return
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.auditSink.Record(ctx, event); err != nil {
		s.logError(ctx, "audit record failed", map[string]any{
			"kind":  event.Kind,
			"error": err.Error(),
		})
	}
}

func tenantIDOf(rc *RequestContext) string {
	if rc == nil {
		return ""
	}
	return rc.TenantID
}

// TenantCacheKey is the deterministic cache key for one tenant's record:
// <prefix>::<tenant_id>.
func TenantCacheKey(prefix string, tenantID string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultConfig().Cache.Prefix
	}
	return prefix + "::" + strings.TrimSpace(tenantID)
}
