package core

import (
	"context"
	"database/sql"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/uptrace/bun"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// TenantStore is the source of truth for tenant records.
type TenantStore interface {
	Get(ctx context.Context, tenantID string) (Tenant, error)
	Create(ctx context.Context, tenant Tenant) (Tenant, error)
	UpdateStatus(ctx context.Context, tenantID string, status TenantStatus, reason string) error
	UpdateSubscription(ctx context.Context, tenantID string, status SubscriptionStatus, endsAt *time.Time) error
	UpdateQuotas(ctx context.Context, tenantID string, quotas ResourceQuotas) error
}

// TenantDirectory maps a platform principal to a tenant when the credential
// carries no tenant claim. Black-box collaborator.
type TenantDirectory interface {
	TenantForUser(ctx context.Context, userID string) (string, error)
}

// TokenVerifier turns a bearer credential into a caller identity.
// Black-box collaborator; resolver ships a JWT implementation.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (CallerIdentity, error)
}

type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

// CacheEntry distinguishes a miss (Found false) from a legitimately cached
// nil value (Found true, Value nil).
type CacheEntry struct {
	Value any
	Found bool
}

// CacheService is a read-through TTL cache. Implementations absorb backend
// failures: Get degrades to a miss and writes degrade to no-ops, logged but
// never surfaced. A hit is never a correctness guarantee.
type CacheService interface {
	Get(ctx context.Context, key string) CacheEntry
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
	InvalidateByPrefix(ctx context.Context, prefix string)
}

// Lease is one tenant connection lent out for a single operation. Release is
// idempotent and must run on every terminal path.
type Lease interface {
	TenantID() string
	// DB exposes the leased connection for single-statement work.
	DB() bun.IDB
	// BeginTx opens a transaction bound to this physical connection.
	BeginTx(ctx context.Context, opts *sql.TxOptions) (bun.Tx, error)
	Release() error
}

// ConnectionPool hands out per-tenant leases. Implemented by pool.Manager.
type ConnectionPool interface {
	Acquire(ctx context.Context, tenantID string) (Lease, error)
	Teardown(ctx context.Context) error
}

// ExternalOperationStore persists the correlation rows the external-effect
// coordinator and the reconciler maintain.
type ExternalOperationStore interface {
	// SaveTx writes a committed correlation row inside the caller's open
	// transaction so it commits or rolls back with the local half.
	SaveTx(ctx context.Context, idb bun.IDB, op ExternalOperation) error
	// RecordDivergence writes a divergent row outside any caller transaction;
	// it is the durable trail for operator reconciliation.
	RecordDivergence(ctx context.Context, op ExternalOperation) (ExternalOperation, error)
	ListDivergent(ctx context.Context, limit int) ([]ExternalOperation, error)
	MarkReconciled(ctx context.Context, id string, detail string) error
	BumpAttempt(ctx context.Context, id string, cause error) error
}

// Job contracts decouple the reconciler from the queue runtime; the
// adapters/gojob package maps them onto go-job.

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
