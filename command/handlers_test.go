package command

import (
	"context"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tenant/core"
)

type stubMutatingService struct {
	createTenantFn       func(context.Context, core.Tenant) (core.Tenant, error)
	suspendTenantFn      func(context.Context, string, string) error
	activateTenantFn     func(context.Context, string, string) error
	updateSubscriptionFn func(context.Context, string, core.SubscriptionStatus, *time.Time) error
	updateQuotasFn       func(context.Context, string, core.ResourceQuotas) error
}

func (s stubMutatingService) CreateTenant(ctx context.Context, tenant core.Tenant) (core.Tenant, error) {
	if s.createTenantFn != nil {
		return s.createTenantFn(ctx, tenant)
	}
	return core.Tenant{}, nil
}

func (s stubMutatingService) SuspendTenant(ctx context.Context, tenantID string, reason string) error {
	if s.suspendTenantFn != nil {
		return s.suspendTenantFn(ctx, tenantID, reason)
	}
	return nil
}

func (s stubMutatingService) ActivateTenant(ctx context.Context, tenantID string, reason string) error {
	if s.activateTenantFn != nil {
		return s.activateTenantFn(ctx, tenantID, reason)
	}
	return nil
}

func (s stubMutatingService) UpdateSubscription(ctx context.Context, tenantID string, status core.SubscriptionStatus, endsAt *time.Time) error {
	if s.updateSubscriptionFn != nil {
		return s.updateSubscriptionFn(ctx, tenantID, status, endsAt)
	}
	return nil
}

func (s stubMutatingService) UpdateQuotas(ctx context.Context, tenantID string, quotas core.ResourceQuotas) error {
	if s.updateQuotasFn != nil {
		return s.updateQuotasFn(ctx, tenantID, quotas)
	}
	return nil
}

func TestCreateTenantCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.Tenant{ID: "tenant_1", Name: "Acme Bookings"}
	called := false

	svc := stubMutatingService{
		createTenantFn: func(_ context.Context, tenant core.Tenant) (core.Tenant, error) {
			called = true
			if tenant.Name != "Acme Bookings" {
				t.Fatalf("expected tenant name, got %q", tenant.Name)
			}
			return expected, nil
		},
	}

	cmd := NewCreateTenantCommand(svc)
	collector := gocmd.NewResult[core.Tenant]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, CreateTenantMessage{Tenant: core.Tenant{Name: "Acme Bookings"}}); err != nil {
		t.Fatalf("execute create tenant: %v", err)
	}
	if !called {
		t.Fatalf("expected create tenant invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.ID != expected.ID {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("suspend", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			suspendTenantFn: func(_ context.Context, tenantID string, reason string) error {
				called = true
				if tenantID != "tenant_1" || reason != "billing hold" {
					t.Fatalf("unexpected suspend payload: %q %q", tenantID, reason)
				}
				return nil
			},
		}
		cmd := NewSuspendTenantCommand(svc)
		if err := cmd.Execute(context.Background(), SuspendTenantMessage{TenantID: "tenant_1", Reason: "billing hold"}); err != nil {
			t.Fatalf("execute suspend: %v", err)
		}
		if !called {
			t.Fatalf("expected suspend invocation")
		}
	})

	t.Run("activate", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			activateTenantFn: func(_ context.Context, tenantID string, reason string) error {
				called = true
				if tenantID != "tenant_1" {
					t.Fatalf("unexpected activate payload: %q", tenantID)
				}
				return nil
			},
		}
		cmd := NewActivateTenantCommand(svc)
		if err := cmd.Execute(context.Background(), ActivateTenantMessage{TenantID: "tenant_1", Reason: "payment received"}); err != nil {
			t.Fatalf("execute activate: %v", err)
		}
		if !called {
			t.Fatalf("expected activate invocation")
		}
	})

	t.Run("update subscription", func(t *testing.T) {
		called := false
		endsAt := time.Now().Add(30 * 24 * time.Hour)
		svc := stubMutatingService{
			updateSubscriptionFn: func(_ context.Context, tenantID string, status core.SubscriptionStatus, got *time.Time) error {
				called = true
				if tenantID != "tenant_1" || status != core.SubscriptionStatusPastDue {
					t.Fatalf("unexpected subscription payload: %q %q", tenantID, status)
				}
				if got == nil || !got.Equal(endsAt) {
					t.Fatalf("unexpected subscription end date: %v", got)
				}
				return nil
			},
		}
		cmd := NewUpdateSubscriptionCommand(svc)
		err := cmd.Execute(context.Background(), UpdateSubscriptionMessage{
			TenantID: "tenant_1",
			Status:   core.SubscriptionStatusPastDue,
			EndsAt:   &endsAt,
		})
		if err != nil {
			t.Fatalf("execute update subscription: %v", err)
		}
		if !called {
			t.Fatalf("expected subscription invocation")
		}
	})

	t.Run("update quotas", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			updateQuotasFn: func(_ context.Context, tenantID string, quotas core.ResourceQuotas) error {
				called = true
				if quotas.MaxStudents != 500 {
					t.Fatalf("unexpected quota payload: %+v", quotas)
				}
				return nil
			},
		}
		cmd := NewUpdateQuotasCommand(svc)
		err := cmd.Execute(context.Background(), UpdateQuotasMessage{
			TenantID: "tenant_1",
			Quotas:   core.ResourceQuotas{MaxStudents: 500},
		})
		if err != nil {
			t.Fatalf("execute update quotas: %v", err)
		}
		if !called {
			t.Fatalf("expected quota invocation")
		}
	})
}

func TestMessages_Validate(t *testing.T) {
	if err := (SuspendTenantMessage{TenantID: "tenant_1"}).Validate(); err != nil {
		t.Fatalf("expected valid suspend message, got %v", err)
	}
	if err := (SuspendTenantMessage{}).Validate(); err == nil {
		t.Fatalf("expected suspend validation error")
	}
	if err := (UpdateSubscriptionMessage{TenantID: "tenant_1"}).Validate(); err == nil {
		t.Fatalf("expected subscription validation error without status")
	}
	if err := (UpdateQuotasMessage{TenantID: "tenant_1", Quotas: core.ResourceQuotas{MaxStaff: -1}}).Validate(); err == nil {
		t.Fatalf("expected quota validation error for negative values")
	}
	if err := (CreateTenantMessage{Tenant: core.Tenant{Name: "Acme", Status: "bogus"}}).Validate(); err == nil {
		t.Fatalf("expected create validation error for unknown status")
	}
}
