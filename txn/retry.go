package txn

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-tenant/core"
)

// RunWithRetry re-runs work when the failure is a serialization conflict.
// Every attempt is a brand-new transaction on its own lease; non-conflict
// failures surface immediately. Backoff is linear in the attempt number,
// with optional jitter.
func (o *Orchestrator) RunWithRetry(ctx context.Context, rc *core.RequestContext, work core.WorkFunc, opts core.TxOptions, retry core.RetryOptions) error {
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= retry.MaxRetries; attempt++ {
		lastErr = o.Run(ctx, rc, work, opts)
		if lastErr == nil {
			return nil
		}
		if !isConflict(lastErr) {
			return lastErr
		}
		if attempt == retry.MaxRetries {
			break
		}
		delay := retry.BaseDelay * time.Duration(attempt+1)
		if retry.Jitter && retry.BaseDelay > 0 && o.jitter != nil {
			delay += o.jitter(retry.BaseDelay)
		}
		if delay > 0 {
			o.logger.Debug("retrying after conflict",
				"tenant_id", rc.TenantID, "attempt", attempt+1, "delay", delay.String())
			if err := o.sleep(ctx, delay); err != nil {
				return lastErr
			}
		}
	}
	return ensureConflictError(lastErr)
}

// isConflict classifies by driver error codes and our own conflict type,
// never by message text.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	if core.IsRetryable(err) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func ensureConflictError(err error) error {
	if err == nil {
		return nil
	}
	if core.TextCode(err) == core.TenantErrorTxConflict {
		return err
	}
	return core.NewTxConflictError(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(base)))
}
