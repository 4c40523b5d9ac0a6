// Package reconcile drains the divergent external-operation backlog: rows
// whose external side effect committed while the local transaction and its
// compensation both failed.
package reconcile

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-tenant/core"
)

const metadataKeyLastErrorAt = "last_error_at"

// Handler resolves one divergent operation of a registered kind. Returning
// nil marks the row reconciled; an error bumps its attempt counter.
type Handler func(ctx context.Context, op core.ExternalOperation) error

type Config struct {
	Operations     core.ExternalOperationStore
	Logger         glog.Logger
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Now            func() time.Time
}

func DefaultConfig() Config {
	return Config{
		BatchSize:      50,
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

// Stats summarizes one sweep over the backlog.
type Stats struct {
	Claimed    int
	Reconciled int
	Retried    int
	Deferred   int
	Exhausted  int
	Unhandled  int
}

type Reconciler struct {
	operations core.ExternalOperationStore
	logger     glog.Logger
	config     Config
	now        func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

func New(cfg Config) (*Reconciler, error) {
	if cfg.Operations == nil {
		return nil, fmt.Errorf("reconcile: external operation store is required")
	}
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		_, logger = glog.Resolve("tenant.reconcile", nil, nil)
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		operations: cfg.Operations,
		logger:     logger,
		config:     cfg,
		now:        now,
		handlers:   map[string]Handler{},
	}, nil
}

// Register binds a handler to an operation kind, e.g. "payment.capture".
func (r *Reconciler) Register(kind string, handler Handler) error {
	if r == nil {
		return fmt.Errorf("reconcile: reconciler is not configured")
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return fmt.Errorf("reconcile: operation kind is required")
	}
	if handler == nil {
		return fmt.Errorf("reconcile: handler is required for kind %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("reconcile: handler already registered for kind %q", kind)
	}
	r.handlers[kind] = handler
	return nil
}

// Sweep claims a batch of divergent rows and runs their handlers. Rows whose
// backoff window has not elapsed are deferred; rows past the attempt budget
// are left for an operator.
func (r *Reconciler) Sweep(ctx context.Context, batchSize int) (Stats, error) {
	if r == nil || r.operations == nil {
		return Stats{}, fmt.Errorf("reconcile: reconciler is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = r.config.BatchSize
	}
	ops, err := r.operations.ListDivergent(ctx, limit)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Claimed: len(ops)}
	var sweepErr error
	for _, op := range ops {
		switch {
		case op.Attempts >= r.config.MaxAttempts:
			stats.Exhausted++
			r.logger.Warn("reconciliation attempts exhausted",
				"operation_id", op.ID,
				"tenant_id", op.TenantID,
				"kind", op.Kind,
				"attempts", op.Attempts,
			)
			continue
		case !r.eligible(op):
			stats.Deferred++
			continue
		}

		handler := r.handlerFor(op.Kind)
		if handler == nil {
			stats.Unhandled++
			r.logger.Warn("no reconciliation handler for kind", "operation_id", op.ID, "kind", op.Kind)
			continue
		}

		if handleErr := handler(ctx, op); handleErr != nil {
			stats.Retried++
			sweepErr = joinErrors(sweepErr, fmt.Errorf("reconcile: operation %q: %w", op.ID, handleErr))
			if bumpErr := r.operations.BumpAttempt(ctx, op.ID, handleErr); bumpErr != nil {
				sweepErr = joinErrors(sweepErr, bumpErr)
			}
			continue
		}
		if markErr := r.operations.MarkReconciled(ctx, op.ID, "resolved by reconciler"); markErr != nil {
			sweepErr = joinErrors(sweepErr, markErr)
			continue
		}
		stats.Reconciled++
		r.logger.Info("operation reconciled", "operation_id", op.ID, "tenant_id", op.TenantID, "kind", op.Kind)
	}

	return stats, sweepErr
}

// eligible reports whether the row's exponential backoff window has elapsed
// since its last failed attempt.
func (r *Reconciler) eligible(op core.ExternalOperation) bool {
	if op.Attempts == 0 {
		return true
	}
	lastErrorAt, ok := lastErrorTime(op)
	if !ok {
		return true
	}
	return !r.now().Before(lastErrorAt.Add(r.backoffDelay(op.Attempts)))
}

func (r *Reconciler) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(r.config.InitialBackoff)
	multiplier := math.Pow(2, float64(attempt-1))
	next := time.Duration(base * multiplier)
	if next < 0 || next > r.config.MaxBackoff {
		return r.config.MaxBackoff
	}
	return next
}

func (r *Reconciler) handlerFor(kind string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[strings.TrimSpace(kind)]
}

func lastErrorTime(op core.ExternalOperation) (time.Time, bool) {
	if len(op.Metadata) == 0 {
		return time.Time{}, false
	}
	raw, ok := op.Metadata[metadataKeyLastErrorAt]
	if !ok {
		return time.Time{}, false
	}
	value, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
