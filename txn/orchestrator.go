// Package txn drives tenant transactions over leased connections: scoped
// execution, savepoints, conflict-aware retry, and ordered batches.
package txn

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-tenant/core"
)

type Config struct {
	Pool   core.ConnectionPool
	Logger core.Logger
}

// Orchestrator owns transaction lifecycles. The work callback never sees
// Begin, Commit, or Rollback; every terminal path releases the lease exactly
// once with the transaction already terminal.
type Orchestrator struct {
	pool   core.ConnectionPool
	logger core.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(base time.Duration) time.Duration
}

func NewOrchestrator(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		_, logger = glog.Resolve("tenant.txn", nil, nil)
	}
	return &Orchestrator{
		pool:   cfg.Pool,
		logger: logger,
		sleep:  sleepContext,
		jitter: randomJitter,
	}
}

// Run executes work inside one transaction on the context's tenant
// connection. The first run consumes the RequestContext's borrowed lease;
// later runs (retries) acquire fresh leases from the pool.
func (o *Orchestrator) Run(ctx context.Context, rc *core.RequestContext, work core.WorkFunc, opts core.TxOptions) error {
	if o == nil {
		return invalidRunError("orchestrator is not configured")
	}
	if rc == nil {
		return invalidRunError("request context is required")
	}
	if work == nil {
		return invalidRunError("work function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	lease, err := o.leaseFor(ctx, rc)
	if err != nil {
		return err
	}
	defer lease.Release()

	tx, err := o.begin(ctx, lease, opts)
	if err != nil {
		return err
	}

	return o.runWork(ctx, rc, tx, work)
}

// runWork isolates the work callback so a panic rolls back the open
// transaction before the lease defer in Run closes the connection. The panic
// is re-raised once the transaction is terminal.
func (o *Orchestrator) runWork(ctx context.Context, rc *core.RequestContext, tx bun.Tx, work core.WorkFunc) error {
	defer func() {
		if r := recover(); r != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				o.logger.Error("rollback failed after work panic",
					"tenant_id", rc.TenantID, "error", rbErr, "panic", r)
			}
			panic(r)
		}
	}()

	handle := &Handle{tx: tx}
	if err := work(ctx, handle); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			o.logger.Error("rollback failed after work error",
				"tenant_id", rc.TenantID, "error", rbErr, "work_error", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isConflict(err) {
			return core.NewTxConflictError(err)
		}
		return core.NewTxFatalError(err, "commit failed")
	}
	return nil
}

func (o *Orchestrator) leaseFor(ctx context.Context, rc *core.RequestContext) (core.Lease, error) {
	if lease := rc.TakeLease(); lease != nil {
		return lease, nil
	}
	if o.pool == nil {
		return nil, core.NewConnectionUnresolvableError(rc.TenantID)
	}
	return o.pool.Acquire(ctx, rc.TenantID)
}

func (o *Orchestrator) begin(ctx context.Context, lease core.Lease, opts core.TxOptions) (bun.Tx, error) {
	sqlOpts := &sql.TxOptions{
		Isolation: opts.Isolation.SQLIsolation(),
		ReadOnly:  opts.ReadOnly,
	}
	tx, err := lease.BeginTx(ctx, sqlOpts)
	if err != nil {
		return bun.Tx{}, core.NewTxFatalError(err, "begin failed")
	}
	if opts.Deferrable {
		// Takes effect only before the transaction's first statement, which
		// is guaranteed here.
		if _, err := tx.ExecContext(ctx, "SET TRANSACTION DEFERRABLE"); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				o.logger.Error("rollback failed after deferrable setup", "error", rbErr)
			}
			return bun.Tx{}, core.NewTxFatalError(err, "deferrable transaction is not supported")
		}
	}
	return tx, nil
}

// ExecuteSequence runs the statements in order inside a single transaction.
// The first failure rolls back the whole batch and no results are returned.
func (o *Orchestrator) ExecuteSequence(ctx context.Context, rc *core.RequestContext, statements []core.SequenceStatement) ([]core.SequenceResult, error) {
	if len(statements) == 0 {
		return nil, invalidRunError("at least one statement is required")
	}
	results := make([]core.SequenceResult, 0, len(statements))
	err := o.Run(ctx, rc, func(ctx context.Context, h core.TransactionHandle) error {
		for i, stmt := range statements {
			res, err := h.ExecContext(ctx, stmt.Query, stmt.Params...)
			if err != nil {
				return fmt.Errorf("statement %d: %w", i, err)
			}
			result := core.SequenceResult{}
			if rows, err := res.RowsAffected(); err == nil {
				result.RowsAffected = rows
			}
			if id, err := res.LastInsertId(); err == nil {
				result.LastInsertID = id
			}
			results = append(results, result)
		}
		return nil
	}, core.TxOptions{})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func invalidRunError(message string) error {
	return goerrors.New(fmt.Sprintf("txn: %s", message), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.TenantErrorBadInput)
}

// Handle exposes statement execution and named savepoints on one open
// transaction. Savepoints form a LIFO stack: releasing or rolling back to a
// name discards everything nested inside it.
type Handle struct {
	tx         bun.Tx
	savepoints []string
}

func (h *Handle) Tx() bun.Tx { return h.tx }

func (h *Handle) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return h.tx.ExecContext(ctx, query, args...)
}

func (h *Handle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return h.tx.QueryContext(ctx, query, args...)
}

func (h *Handle) Savepoint(ctx context.Context, name string) error {
	name, err := savepointName(name)
	if err != nil {
		return err
	}
	if _, err := h.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}
	h.savepoints = append(h.savepoints, name)
	return nil
}

func (h *Handle) RollbackToSavepoint(ctx context.Context, name string) error {
	name, err := savepointName(name)
	if err != nil {
		return err
	}
	idx := h.savepointIndex(name)
	if idx < 0 {
		return invalidRunError("unknown savepoint " + name)
	}
	if _, err := h.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
		return err
	}
	// nested savepoints are gone; the target itself survives
	h.savepoints = h.savepoints[:idx+1]
	return nil
}

func (h *Handle) ReleaseSavepoint(ctx context.Context, name string) error {
	name, err := savepointName(name)
	if err != nil {
		return err
	}
	idx := h.savepointIndex(name)
	if idx < 0 {
		return invalidRunError("unknown savepoint " + name)
	}
	if _, err := h.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return err
	}
	h.savepoints = h.savepoints[:idx]
	return nil
}

func (h *Handle) savepointIndex(name string) int {
	for i := len(h.savepoints) - 1; i >= 0; i-- {
		if h.savepoints[i] == name {
			return i
		}
	}
	return -1
}

func savepointName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalidRunError("savepoint name is required")
	}
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return "", invalidRunError("savepoint name must be alphanumeric")
	}
	return name, nil
}

var _ core.TransactionHandle = (*Handle)(nil)
var _ core.TransactionRunner = (*Orchestrator)(nil)
