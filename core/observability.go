package core

import (
	"context"
	"sort"
	"time"
)

// The service observes a closed set of operations. Everything funnels into
// two metric families, a counter and a latency histogram, with the operation
// carried as a tag rather than baked into the metric name.
const (
	opResolveContext     = "resolve_context"
	opRunTransaction     = "run_transaction"
	opRunWithRetry       = "run_with_retry"
	opCoordinateEffect   = "coordinate_external_effect"
	opTenantCreate       = "tenant_create"
	opTenantStatus       = "tenant_status_change"
	opTenantSubscription = "tenant_subscription_change"
	opTenantQuota        = "tenant_quota_change"
)

const (
	metricOperations = "tenant.core.operations.total"
	metricDuration   = "tenant.core.operation_duration_ms"
)

var observedOperations = map[string]struct{}{
	opResolveContext:     {},
	opRunTransaction:     {},
	opRunWithRetry:       {},
	opCoordinateEffect:   {},
	opTenantCreate:       {},
	opTenantStatus:       {},
	opTenantSubscription: {},
	opTenantQuota:        {},
}

func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	if _, known := observedOperations[operation]; !known {
		operation = "unknown"
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	elapsed := time.Since(startedAt)

	tags := map[string]string{"operation": operation, "status": status}
	if id, ok := fields["tenant_id"].(string); ok && id != "" {
		tags["tenant_id"] = id
	}
	if s.metricsRecorder != nil {
		s.metricsRecorder.IncCounter(ctx, metricOperations, 1, cloneTags(tags))
		s.metricsRecorder.ObserveHistogram(ctx, metricDuration, float64(elapsed.Milliseconds()), cloneTags(tags))
	}

	logFields := make(map[string]any, len(fields)+3)
	for key, value := range fields {
		logFields[key] = value
	}
	logFields["operation"] = operation
	logFields["duration_ms"] = elapsed.Milliseconds()
	if err != nil {
		logFields["error"] = err.Error()
		s.logError(ctx, operation+" failed", logFields)
		return
	}
	s.logInfo(ctx, operation+" succeeded", logFields)
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	if logger := s.operationLogger(ctx, fields); logger != nil {
		logger.Info(message, sortedArgs(fields)...)
	}
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	if logger := s.operationLogger(ctx, fields); logger != nil {
		logger.Error(message, sortedArgs(fields)...)
	}
}

func (s *Service) operationLogger(ctx context.Context, fields map[string]any) Logger {
	if s == nil || s.logger == nil {
		return nil
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	return logger
}

// sortedArgs flattens fields into key-value pairs with a stable order so log
// lines diff cleanly.
func sortedArgs(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
