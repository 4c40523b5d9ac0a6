package tenant

import (
	"context"
	"testing"

	"github.com/goliatone/go-tenant/core"
)

func TestSubscribeFacade_RoutesMessagesThroughDispatcher(t *testing.T) {
	ctx := context.Background()
	store := core.NewMemoryTenantStore()
	seeded, err := store.Create(ctx, newSetupTenant("Dispatch Tenant"))
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	service, err := Setup(DefaultConfig(), WithTenantStore(store))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer func() { _ = service.Teardown(ctx) }()

	facade, err := NewFacade(service)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	subscriptions, err := SubscribeFacade(facade)
	if err != nil {
		t.Fatalf("subscribe facade: %v", err)
	}
	defer Unsubscribe(subscriptions)

	if len(subscriptions) != 7 {
		t.Fatalf("expected seven subscriptions, got %d", len(subscriptions))
	}

	if err := DispatchSuspendTenant(ctx, seeded.ID, "billing hold"); err != nil {
		t.Fatalf("dispatch suspend: %v", err)
	}

	got, err := QueryTenant(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("query tenant: %v", err)
	}
	if got.Status != core.TenantStatusSuspended {
		t.Fatalf("expected suspended tenant, got %q", got.Status)
	}
}

func TestSubscribeFacade_RequiresFacade(t *testing.T) {
	if _, err := SubscribeFacade(nil); err == nil {
		t.Fatalf("expected error for nil facade")
	}
}
