// Package coordinator sequences an external side effect (for example a
// payment-processor charge) with a local transactional write, and runs a
// compensating action when the local half fails after the external half
// already committed.
package coordinator

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-tenant/core"
)

type Config struct {
	Runner     core.TransactionRunner
	Operations core.ExternalOperationStore
	Logger     core.Logger
	Now        func() time.Time
}

type Coordinator struct {
	runner     core.TransactionRunner
	operations core.ExternalOperationStore
	logger     core.Logger
	now        func() time.Time
}

func NewCoordinator(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		_, logger = glog.Resolve("tenant.coordinator", nil, nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		runner:     cfg.Runner,
		operations: cfg.Operations,
		logger:     logger,
		now:        now,
	}
}

// Coordinate runs the request's external call, then its local transactional
// write. The correlation row persists in the same transaction as the local
// half, so a committed local write always has its external correlation on
// durable storage.
//
// Failure order matters: an external failure leaves no local trace; a local
// failure triggers the compensating action exactly once; a compensation
// failure records a divergent operation row and surfaces the original local
// error with the compensation detail attached as metadata.
func (c *Coordinator) Coordinate(ctx context.Context, rc *core.RequestContext, req core.CoordinateRequest) (core.CoordinateResult, error) {
	if c == nil || c.runner == nil || c.operations == nil {
		return core.CoordinateResult{}, invalidCoordinateError("coordinator is not configured")
	}
	if rc == nil {
		return core.CoordinateResult{}, invalidCoordinateError("request context is required")
	}
	if req.External == nil || req.Local == nil {
		return core.CoordinateResult{}, invalidCoordinateError("external and local functions are required")
	}
	if strings.TrimSpace(req.Kind) == "" {
		return core.CoordinateResult{}, invalidCoordinateError("operation kind is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	external, err := req.External(ctx)
	if err != nil {
		return core.CoordinateResult{}, core.NewExternalEffectError(err)
	}

	operation := core.ExternalOperation{
		ID:            uuid.NewString(),
		TenantID:      rc.TenantID,
		Kind:          strings.TrimSpace(req.Kind),
		EntityID:      strings.TrimSpace(req.EntityID),
		CorrelationID: external.CorrelationID,
		Status:        core.ExternalOperationCommitted,
		CreatedAt:     c.now().UTC(),
	}

	localErr := c.runner.Run(ctx, rc, func(ctx context.Context, h core.TransactionHandle) error {
		if err := req.Local(ctx, h, external); err != nil {
			return err
		}
		return c.operations.SaveTx(ctx, h.Tx(), operation)
	}, core.TxOptions{})
	if localErr == nil {
		return core.CoordinateResult{Operation: operation, External: external}, nil
	}

	return core.CoordinateResult{}, c.compensate(ctx, rc, req, external, operation, localErr)
}

// compensate unwinds the external side effect after a local failure. It runs
// at most once; its own failure is recorded as a divergent operation for the
// reconciler and never masks the local error.
func (c *Coordinator) compensate(ctx context.Context, rc *core.RequestContext, req core.CoordinateRequest, external core.ExternalResult, operation core.ExternalOperation, localErr error) error {
	if req.Compensate == nil {
		c.recordDivergence(ctx, operation, localErr, fmt.Errorf("no compensating action registered"))
		return localErr
	}

	compErr := req.Compensate(ctx, external)
	if compErr == nil {
		c.logger.Info("compensated external effect",
			"tenant_id", rc.TenantID, "kind", operation.Kind, "correlation_id", external.CorrelationID)
		return localErr
	}

	c.logger.Error("compensation failed; operation is divergent",
		"tenant_id", rc.TenantID,
		"kind", operation.Kind,
		"correlation_id", external.CorrelationID,
		"local_error", localErr,
		"compensation_error", compErr)
	c.recordDivergence(ctx, operation, localErr, compErr)
	return attachCompensationFailure(localErr, compErr)
}

func (c *Coordinator) recordDivergence(ctx context.Context, operation core.ExternalOperation, localErr, compErr error) {
	operation.Status = core.ExternalOperationDivergent
	operation.FailureDetail = localErr.Error()
	if compErr != nil {
		operation.CompensationDetail = compErr.Error()
	}
	operation.UpdatedAt = c.now().UTC()
	if _, err := c.operations.RecordDivergence(ctx, operation); err != nil {
		c.logger.Error("failed to record divergent operation",
			"tenant_id", operation.TenantID, "kind", operation.Kind,
			"correlation_id", operation.CorrelationID, "error", err)
	}
}

// attachCompensationFailure keeps the local error as the primary failure and
// threads the compensation failure through its metadata.
func attachCompensationFailure(localErr, compErr error) error {
	var rich *goerrors.Error
	if goerrors.As(localErr, &rich) {
		metadata := make(map[string]any, len(rich.Metadata)+1)
		for key, value := range rich.Metadata {
			metadata[key] = value
		}
		metadata[core.MetadataKeyCompensation] = compErr.Error()
		return rich.WithMetadata(metadata)
	}
	return goerrors.Wrap(localErr, goerrors.CategoryOperation, "local write failed and compensation did not complete").
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.TenantErrorTxFatal).
		WithMetadata(map[string]any{core.MetadataKeyCompensation: compErr.Error()})
}

func invalidCoordinateError(message string) error {
	return goerrors.New(fmt.Sprintf("coordinator: %s", message), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.TenantErrorBadInput)
}

var _ core.EffectCoordinator = (*Coordinator)(nil)
