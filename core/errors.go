package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TenantErrorAuthRequired           = "TENANT_AUTH_REQUIRED"
	TenantErrorNotFound               = "TENANT_NOT_FOUND"
	TenantErrorInactive               = "TENANT_INACTIVE"
	TenantErrorSubscriptionExpired    = "TENANT_SUBSCRIPTION_EXPIRED"
	TenantErrorCrossTenantDenied      = "TENANT_CROSS_TENANT_DENIED"
	TenantErrorConnectionTimeout      = "TENANT_CONNECTION_TIMEOUT"
	TenantErrorConnectionUnresolvable = "TENANT_CONNECTION_UNRESOLVABLE"
	TenantErrorConnectionFailed       = "TENANT_CONNECTION_FAILED"
	TenantErrorTxConflict             = "TENANT_TX_CONFLICT"
	TenantErrorTxFatal                = "TENANT_TX_FATAL"
	TenantErrorExternalEffectFailed   = "TENANT_EXTERNAL_EFFECT_FAILED"
	TenantErrorCompensationFailed     = "TENANT_COMPENSATION_FAILED"
	TenantErrorQuotaExceeded          = "TENANT_QUOTA_EXCEEDED"
	TenantErrorCacheUnavailable       = "TENANT_CACHE_UNAVAILABLE"
	TenantErrorBadInput               = "TENANT_BAD_INPUT"
	TenantErrorInternal               = "TENANT_INTERNAL_ERROR"
)

// MetadataKeyCompensation carries a failed compensation's detail on the
// primary local error; the compensation failure is never the thrown type.
const MetadataKeyCompensation = "compensation_error"

func NewAuthRequiredError(message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "authentication required"
	}
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(TenantErrorAuthRequired)
}

func NewTenantNotFoundError(tenantID string) *goerrors.Error {
	return goerrors.New("tenant not found", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(TenantErrorNotFound).
		WithMetadata(map[string]any{"tenant_id": strings.TrimSpace(tenantID)})
}

func NewTenantInactiveError(tenantID string, status TenantStatus) *goerrors.Error {
	return goerrors.New("tenant is not active", goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(TenantErrorInactive).
		WithMetadata(map[string]any{
			"tenant_id": strings.TrimSpace(tenantID),
			"reason":    string(status),
		})
}

func NewSubscriptionExpiredError(tenantID string) *goerrors.Error {
	return goerrors.New("tenant subscription is expired", goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(TenantErrorSubscriptionExpired).
		WithMetadata(map[string]any{"tenant_id": strings.TrimSpace(tenantID)})
}

func NewCrossTenantDeniedError(claimed, requested string) *goerrors.Error {
	return goerrors.New("caller tenant does not match requested tenant", goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(TenantErrorCrossTenantDenied).
		WithMetadata(map[string]any{
			"claimed_tenant_id":   strings.TrimSpace(claimed),
			"requested_tenant_id": strings.TrimSpace(requested),
		})
}

func NewConnectionTimeoutError(tenantID string, cause error) *goerrors.Error {
	err := goerrors.New("no connection became available within the acquire timeout", goerrors.CategoryOperation).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(TenantErrorConnectionTimeout).
		WithMetadata(map[string]any{"tenant_id": strings.TrimSpace(tenantID)})
	if cause != nil {
		err = goerrors.Wrap(cause, goerrors.CategoryOperation, err.Message).
			WithCode(http.StatusServiceUnavailable).
			WithTextCode(TenantErrorConnectionTimeout).
			WithMetadata(map[string]any{"tenant_id": strings.TrimSpace(tenantID)})
	}
	return err
}

// NewConnectionFailedError covers dial, auth, and session setup failures on
// a resolvable tenant connection. Distinct from the acquire timeout, which
// only signals pool exhaustion.
func NewConnectionFailedError(tenantID string, cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryOperation, "tenant connection could not be established").
		WithCode(http.StatusBadGateway).
		WithTextCode(TenantErrorConnectionFailed).
		WithMetadata(map[string]any{"tenant_id": strings.TrimSpace(tenantID)})
}

func NewConnectionUnresolvableError(tenantID string) *goerrors.Error {
	return goerrors.New("tenant connection descriptor cannot be determined", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TenantErrorConnectionUnresolvable).
		WithMetadata(map[string]any{"tenant_id": strings.TrimSpace(tenantID)})
}

func NewTxConflictError(cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryConflict, "transaction serialization conflict").
		WithCode(http.StatusConflict).
		WithTextCode(TenantErrorTxConflict)
}

func NewTxFatalError(cause error, message string) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "transaction failed"
	}
	return goerrors.Wrap(cause, goerrors.CategoryOperation, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TenantErrorTxFatal)
}

func NewQuotaExceededError(tenantID, resource string, limit, requested int) *goerrors.Error {
	return goerrors.New("tenant resource quota exceeded", goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(TenantErrorQuotaExceeded).
		WithMetadata(map[string]any{
			"tenant_id": strings.TrimSpace(tenantID),
			"resource":  strings.TrimSpace(resource),
			"limit":     limit,
			"requested": requested,
		})
}

func NewExternalEffectError(cause error) *goerrors.Error {
	return goerrors.Wrap(cause, goerrors.CategoryExternal, "external operation failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(TenantErrorExternalEffectFailed)
}

// IsRetryable reports whether an error is a serialization/deadlock conflict
// that a fresh transaction may resolve. Classification is by envelope
// category and text code, never by message matching.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	if rich.TextCode == TenantErrorTxConflict {
		return true
	}
	return rich.Category == goerrors.CategoryConflict
}

// TextCode extracts the stable machine-readable reason code, if any.
func TextCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}

func tenantErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureTenantErrorEnvelope(rich)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureTenantErrorEnvelope(mapped)
}

func ensureTenantErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = tenantHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTenantTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTenantTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return TenantErrorBadInput
	case goerrors.CategoryNotFound:
		return TenantErrorNotFound
	case goerrors.CategoryAuth:
		return TenantErrorAuthRequired
	case goerrors.CategoryAuthz:
		return TenantErrorCrossTenantDenied
	case goerrors.CategoryConflict:
		return TenantErrorTxConflict
	case goerrors.CategoryExternal:
		return TenantErrorExternalEffectFailed
	case goerrors.CategoryOperation:
		return TenantErrorTxFatal
	default:
		return TenantErrorInternal
	}
}

func tenantHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
