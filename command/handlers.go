package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tenant/core"
)

// MutatingService is the slice of the tenant service the admin commands need.
type MutatingService interface {
	CreateTenant(ctx context.Context, tenant core.Tenant) (core.Tenant, error)
	SuspendTenant(ctx context.Context, tenantID string, reason string) error
	ActivateTenant(ctx context.Context, tenantID string, reason string) error
	UpdateSubscription(ctx context.Context, tenantID string, status core.SubscriptionStatus, endsAt *time.Time) error
	UpdateQuotas(ctx context.Context, tenantID string, quotas core.ResourceQuotas) error
}

type CreateTenantCommand struct {
	service MutatingService
}

func NewCreateTenantCommand(service MutatingService) *CreateTenantCommand {
	return &CreateTenantCommand{service: service}
}

func (c *CreateTenantCommand) Execute(ctx context.Context, msg CreateTenantMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: tenant service is required")
	}
	out, err := c.service.CreateTenant(ctx, msg.Tenant)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SuspendTenantCommand struct {
	service MutatingService
}

func NewSuspendTenantCommand(service MutatingService) *SuspendTenantCommand {
	return &SuspendTenantCommand{service: service}
}

func (c *SuspendTenantCommand) Execute(ctx context.Context, msg SuspendTenantMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: tenant service is required")
	}
	return c.service.SuspendTenant(ctx, msg.TenantID, msg.Reason)
}

type ActivateTenantCommand struct {
	service MutatingService
}

func NewActivateTenantCommand(service MutatingService) *ActivateTenantCommand {
	return &ActivateTenantCommand{service: service}
}

func (c *ActivateTenantCommand) Execute(ctx context.Context, msg ActivateTenantMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: tenant service is required")
	}
	return c.service.ActivateTenant(ctx, msg.TenantID, msg.Reason)
}

type UpdateSubscriptionCommand struct {
	service MutatingService
}

func NewUpdateSubscriptionCommand(service MutatingService) *UpdateSubscriptionCommand {
	return &UpdateSubscriptionCommand{service: service}
}

func (c *UpdateSubscriptionCommand) Execute(ctx context.Context, msg UpdateSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscription service is required")
	}
	return c.service.UpdateSubscription(ctx, msg.TenantID, msg.Status, msg.EndsAt)
}

type UpdateQuotasCommand struct {
	service MutatingService
}

func NewUpdateQuotasCommand(service MutatingService) *UpdateQuotasCommand {
	return &UpdateQuotasCommand{service: service}
}

func (c *UpdateQuotasCommand) Execute(ctx context.Context, msg UpdateQuotasMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: quota service is required")
	}
	return c.service.UpdateQuotas(ctx, msg.TenantID, msg.Quotas)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
