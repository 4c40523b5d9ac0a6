package command

import (
	"strings"
	"time"

	"github.com/goliatone/go-tenant/core"
)

const (
	TypeSuspendTenant      = "tenant.command.suspend"
	TypeActivateTenant     = "tenant.command.activate"
	TypeUpdateSubscription = "tenant.command.subscription.update"
	TypeUpdateQuotas       = "tenant.command.quotas.update"
	TypeCreateTenant       = "tenant.command.create"
)

type SuspendTenantMessage struct {
	TenantID string
	Reason   string
}

func (SuspendTenantMessage) Type() string { return TypeSuspendTenant }

func (m SuspendTenantMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type ActivateTenantMessage struct {
	TenantID string
	Reason   string
}

func (ActivateTenantMessage) Type() string { return TypeActivateTenant }

func (m ActivateTenantMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	return nil
}

type UpdateSubscriptionMessage struct {
	TenantID string
	Status   core.SubscriptionStatus
	EndsAt   *time.Time
}

func (UpdateSubscriptionMessage) Type() string { return TypeUpdateSubscription }

func (m UpdateSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(string(m.Status)) == "" {
		return commandValidationError("status", "subscription status is required")
	}
	return nil
}

type UpdateQuotasMessage struct {
	TenantID string
	Quotas   core.ResourceQuotas
}

func (UpdateQuotasMessage) Type() string { return TypeUpdateQuotas }

func (m UpdateQuotasMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if m.Quotas.MaxLibraries < 0 || m.Quotas.MaxStudents < 0 || m.Quotas.MaxStaff < 0 || m.Quotas.MaxStorageMB < 0 {
		return commandValidationError("quotas", "quota values must not be negative")
	}
	return nil
}

type CreateTenantMessage struct {
	Tenant core.Tenant
}

func (CreateTenantMessage) Type() string { return TypeCreateTenant }

func (m CreateTenantMessage) Validate() error {
	if strings.TrimSpace(m.Tenant.Name) == "" {
		return commandValidationError("name", "tenant name is required")
	}
	if m.Tenant.Status != "" && !m.Tenant.Status.Valid() {
		return commandValidationError("status", "unknown tenant status")
	}
	return nil
}
