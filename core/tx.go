package core

import (
	"context"
	"database/sql"
	"time"

	"github.com/uptrace/bun"
)

type IsolationLevel string

const (
	IsolationDefault        IsolationLevel = "default"
	IsolationReadCommitted  IsolationLevel = "read-committed"
	IsolationRepeatableRead IsolationLevel = "repeatable-read"
	IsolationSerializable   IsolationLevel = "serializable"
)

// SQLIsolation maps the level onto database/sql. Unknown levels fall back to
// the driver default.
func (l IsolationLevel) SQLIsolation() sql.IsolationLevel {
	switch l {
	case IsolationReadCommitted:
		return sql.LevelReadCommitted
	case IsolationRepeatableRead:
		return sql.LevelRepeatableRead
	case IsolationSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

type TxOptions struct {
	Isolation  IsolationLevel
	ReadOnly   bool
	Deferrable bool
}

type RetryOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	Jitter     bool
}

// TransactionHandle is the caller's view of one open transaction. It is
// scoped to a single leased connection and becomes unusable after the
// orchestrator drives it to commit or rollback.
type TransactionHandle interface {
	Tx() bun.Tx
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Savepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error
}

type WorkFunc func(ctx context.Context, h TransactionHandle) error

type SequenceStatement struct {
	Query  string
	Params []any
}

type SequenceResult struct {
	RowsAffected int64
	LastInsertID int64
}

// TransactionRunner is the orchestration contract implemented by txn.
type TransactionRunner interface {
	Run(ctx context.Context, rc *RequestContext, work WorkFunc, opts TxOptions) error
	RunWithRetry(ctx context.Context, rc *RequestContext, work WorkFunc, opts TxOptions, retry RetryOptions) error
	ExecuteSequence(ctx context.Context, rc *RequestContext, statements []SequenceStatement) ([]SequenceResult, error)
}

// ContextResolver is implemented by resolver.Resolver.
type ContextResolver interface {
	ResolveContext(ctx context.Context, req Request) (*RequestContext, error)
}

// IsolationGuard is implemented by isolation.Guard.
type IsolationGuard interface {
	EnsureIsolation(query string, params []any, tenantID string) (string, []any, error)
}

// CoordinateRequest sequences one external side effect with a local
// transactional write and an optional compensating action.
type CoordinateRequest struct {
	Kind     string
	EntityID string
	External func(ctx context.Context) (ExternalResult, error)
	Local    func(ctx context.Context, h TransactionHandle, res ExternalResult) error
	// Compensate attempts to reverse the external side effect after a local
	// failure. Optional; when absent the external result is recorded as
	// divergent immediately.
	Compensate func(ctx context.Context, res ExternalResult) error
}

type CoordinateResult struct {
	External  ExternalResult
	Operation ExternalOperation
}

// EffectCoordinator is implemented by coordinator.Coordinator.
type EffectCoordinator interface {
	Coordinate(ctx context.Context, rc *RequestContext, req CoordinateRequest) (CoordinateResult, error)
}
