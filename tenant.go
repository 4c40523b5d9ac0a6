// Package tenant re-exports the core surface and wires the default runtime:
// pool manager, context resolver, transaction orchestrator, and external
// effect coordinator.
package tenant

import "github.com/goliatone/go-tenant/core"

type Config = core.Config

type PoolConfig = core.PoolConfig
type RetryConfig = core.RetryConfig
type ResolverConfig = core.ResolverConfig
type CacheConfig = core.CacheConfig

type Option = core.Option

type Service = core.Service

type Tenant = core.Tenant
type TenantStatus = core.TenantStatus
type SubscriptionStatus = core.SubscriptionStatus
type ResourceQuotas = core.ResourceQuotas
type ConnectionDescriptor = core.ConnectionDescriptor
type CallerIdentity = core.CallerIdentity
type AuditEvent = core.AuditEvent
type ExternalOperation = core.ExternalOperation
type ExternalResult = core.ExternalResult

type Request = core.Request
type RequestContext = core.RequestContext
type TxOptions = core.TxOptions
type RetryOptions = core.RetryOptions
type WorkFunc = core.WorkFunc
type SequenceStatement = core.SequenceStatement
type SequenceResult = core.SequenceResult
type CoordinateRequest = core.CoordinateRequest
type CoordinateResult = core.CoordinateResult

type TenantStore = core.TenantStore
type TenantDirectory = core.TenantDirectory
type TokenVerifier = core.TokenVerifier
type AuditSink = core.AuditSink
type CacheService = core.CacheService
type ConnectionPool = core.ConnectionPool
type Lease = core.Lease
type ExternalOperationStore = core.ExternalOperationStore
type TransactionHandle = core.TransactionHandle

var (
	WithLogger                 = core.WithLogger
	WithLoggerProvider         = core.WithLoggerProvider
	WithMetricsRecorder        = core.WithMetricsRecorder
	WithErrorFactory           = core.WithErrorFactory
	WithErrorMapper            = core.WithErrorMapper
	WithConfigProvider         = core.WithConfigProvider
	WithOptionsResolver        = core.WithOptionsResolver
	WithPersistenceClient      = core.WithPersistenceClient
	WithRepositoryFactory      = core.WithRepositoryFactory
	WithTenantStore            = core.WithTenantStore
	WithTenantDirectory        = core.WithTenantDirectory
	WithTokenVerifier          = core.WithTokenVerifier
	WithAuditSink              = core.WithAuditSink
	WithCache                  = core.WithCache
	WithConnectionPool         = core.WithConnectionPool
	WithContextResolver        = core.WithContextResolver
	WithTransactionRunner      = core.WithTransactionRunner
	WithEffectCoordinator      = core.WithEffectCoordinator
	WithIsolationGuard         = core.WithIsolationGuard
	WithExternalOperationStore = core.WithExternalOperationStore
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
