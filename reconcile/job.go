package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-tenant/core"
)

const (
	// SweepJobID identifies reconciliation sweeps on the job queue.
	SweepJobID = "tenant.reconcile.sweep"

	ParameterBatchSize = "batch_size"
)

// EnqueueSweep schedules a backlog sweep. Sweeps dedupe on the job id so a
// slow sweep is not stacked behind identical pending ones.
func EnqueueSweep(ctx context.Context, enqueuer core.JobEnqueuer, batchSize int) error {
	if enqueuer == nil {
		return fmt.Errorf("reconcile: job enqueuer is required")
	}
	msg := &core.JobExecutionMessage{
		JobID:          SweepJobID,
		IdempotencyKey: SweepJobID,
		DedupPolicy:    "drop",
	}
	if batchSize > 0 {
		msg.Parameters = map[string]any{ParameterBatchSize: batchSize}
	}
	return enqueuer.Enqueue(ctx, msg)
}

// Worker consumes sweep deliveries from a queue and runs the reconciler.
type Worker struct {
	reconciler *Reconciler
	dequeuer   core.JobDequeuer
	nackDelay  time.Duration
}

func NewWorker(reconciler *Reconciler, dequeuer core.JobDequeuer, nackDelay time.Duration) (*Worker, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("reconcile: reconciler is required")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("reconcile: job dequeuer is required")
	}
	if nackDelay <= 0 {
		nackDelay = 30 * time.Second
	}
	return &Worker{reconciler: reconciler, dequeuer: dequeuer, nackDelay: nackDelay}, nil
}

// ProcessOne blocks for the next delivery and runs a sweep for it. Deliveries
// for other job ids are acked and skipped so the worker can share a queue.
func (w *Worker) ProcessOne(ctx context.Context) (Stats, error) {
	if w == nil || w.reconciler == nil || w.dequeuer == nil {
		return Stats{}, fmt.Errorf("reconcile: worker is not configured")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return Stats{}, err
	}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) != SweepJobID {
		return Stats{}, delivery.Ack(ctx)
	}

	stats, sweepErr := w.reconciler.Sweep(ctx, batchSizeParameter(msg))
	if sweepErr != nil {
		nackErr := delivery.Nack(ctx, core.JobNackOptions{
			Delay:   w.nackDelay,
			Requeue: true,
			Reason:  sweepErr.Error(),
		})
		return stats, joinErrors(sweepErr, nackErr)
	}
	return stats, delivery.Ack(ctx)
}

func batchSizeParameter(msg *core.JobExecutionMessage) int {
	if msg == nil || len(msg.Parameters) == 0 {
		return 0
	}
	raw, ok := msg.Parameters[ParameterBatchSize]
	if !ok {
		return 0
	}
	switch typed := raw.(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err == nil {
			return parsed
		}
	}
	return 0
}
