package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-tenant/core"
	tenantmigrations "github.com/goliatone/go-tenant/migrations"
	sqlstore "github.com/goliatone/go-tenant/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-tenant-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"tenants",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "tenants" {
		t.Fatalf("expected tenants table, got %q", tableName)
	}
}

func TestTenantStore_CreateGetAndUpdate(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}

	store := factory.TenantStore()
	if store == nil {
		t.Fatalf("expected tenant store from factory")
	}

	created, err := store.Create(ctx, core.Tenant{
		Name:               "Acme Bookings",
		Status:             core.TenantStatusActive,
		SubscriptionStatus: core.SubscriptionStatusActive,
		Quotas:             core.ResourceQuotas{MaxLibraries: 3, MaxStudents: 500},
		Connection: core.ConnectionDescriptor{
			Driver: "sqlite3",
			DSN:    "file:acme?mode=memory",
		},
	})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated tenant id")
	}

	fetched, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if fetched.Name != "Acme Bookings" {
		t.Fatalf("expected tenant name round trip, got %q", fetched.Name)
	}
	if fetched.Quotas.MaxStudents != 500 {
		t.Fatalf("expected quotas round trip, got %+v", fetched.Quotas)
	}
	if fetched.Connection.DSN != "file:acme?mode=memory" {
		t.Fatalf("expected connection descriptor round trip, got %+v", fetched.Connection)
	}

	if err := store.UpdateStatus(ctx, created.ID, core.TenantStatusSuspended, "billing hold"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	endsAt := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	if err := store.UpdateSubscription(ctx, created.ID, core.SubscriptionStatusPastDue, &endsAt); err != nil {
		t.Fatalf("update subscription: %v", err)
	}
	if err := store.UpdateQuotas(ctx, created.ID, core.ResourceQuotas{MaxLibraries: 10}); err != nil {
		t.Fatalf("update quotas: %v", err)
	}

	updated, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get updated tenant: %v", err)
	}
	if updated.Status != core.TenantStatusSuspended {
		t.Fatalf("expected suspended status, got %q", updated.Status)
	}
	if updated.SubscriptionStatus != core.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due subscription, got %q", updated.SubscriptionStatus)
	}
	if updated.SubscriptionEndsAt == nil || !updated.SubscriptionEndsAt.Equal(endsAt) {
		t.Fatalf("expected subscription end date %v, got %v", endsAt, updated.SubscriptionEndsAt)
	}
	if updated.Quotas.MaxLibraries != 10 {
		t.Fatalf("expected quota update, got %+v", updated.Quotas)
	}
}

func TestTenantStore_GetUnknownMapsToNotFound(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}

	_, err = factory.TenantStore().Get(ctx, "b6f7f7a3-0000-4000-8000-000000000000")
	if err == nil {
		t.Fatalf("expected not found error")
	}
	if code := core.TextCode(err); code != core.TenantErrorNotFound {
		t.Fatalf("expected %s, got %s (%v)", core.TenantErrorNotFound, code, err)
	}

	if err := factory.TenantStore().UpdateStatus(ctx, "b6f7f7a3-0000-4000-8000-000000000000", core.TenantStatusActive, ""); err == nil {
		t.Fatalf("expected not found error on status update")
	}
}

func TestExternalOperationStore_DivergenceLifecycle(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.ExternalOperationStore()

	committed := core.ExternalOperation{
		ID:            "op_committed_1",
		TenantID:      "tenant_1",
		Kind:          "payment.capture",
		EntityID:      "booking_1",
		CorrelationID: "psp_charge_1",
		Status:        core.ExternalOperationCommitted,
	}
	if err := factory.DB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return store.SaveTx(ctx, tx, committed)
	}); err != nil {
		t.Fatalf("save committed operation in tx: %v", err)
	}

	rolledBack := func(op core.ExternalOperation) bool {
		var count int
		if err := factory.DB().NewRaw(
			"SELECT COUNT(*) FROM tenant_external_operations WHERE id = ?", op.ID,
		).Scan(ctx, &count); err != nil {
			t.Fatalf("count operation rows: %v", err)
		}
		return count == 0
	}
	aborted := core.ExternalOperation{
		ID:            "op_aborted_1",
		TenantID:      "tenant_1",
		Kind:          "payment.capture",
		CorrelationID: "psp_charge_aborted",
		Status:        core.ExternalOperationCommitted,
	}
	txErr := factory.DB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := store.SaveTx(ctx, tx, aborted); err != nil {
			return err
		}
		return errors.New("local write failed")
	})
	if txErr == nil {
		t.Fatalf("expected aborted transaction to fail")
	}
	if !rolledBack(aborted) {
		t.Fatalf("expected operation row to roll back with the transaction")
	}

	divergent, err := store.RecordDivergence(ctx, core.ExternalOperation{
		ID:            "op_committed_1",
		TenantID:      "tenant_1",
		Kind:          "payment.capture",
		EntityID:      "booking_1",
		CorrelationID: "psp_charge_1",
		FailureDetail: "local commit failed",
	})
	if err != nil {
		t.Fatalf("record divergence: %v", err)
	}
	if divergent.Status != core.ExternalOperationDivergent {
		t.Fatalf("expected divergent status, got %q", divergent.Status)
	}

	listed, err := store.ListDivergent(ctx, 10)
	if err != nil {
		t.Fatalf("list divergent: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "op_committed_1" {
		t.Fatalf("expected one divergent row op_committed_1, got %+v", listed)
	}

	if err := store.BumpAttempt(ctx, "op_committed_1", errors.New("refund endpoint timeout")); err != nil {
		t.Fatalf("bump attempt: %v", err)
	}
	afterBump, err := store.ListDivergent(ctx, 10)
	if err != nil {
		t.Fatalf("list divergent after bump: %v", err)
	}
	if len(afterBump) != 1 || afterBump[0].Attempts != 1 {
		t.Fatalf("expected attempts=1 after bump, got %+v", afterBump)
	}

	if err := store.MarkReconciled(ctx, "op_committed_1", "refund confirmed"); err != nil {
		t.Fatalf("mark reconciled: %v", err)
	}
	afterReconcile, err := store.ListDivergent(ctx, 10)
	if err != nil {
		t.Fatalf("list divergent after reconcile: %v", err)
	}
	if len(afterReconcile) != 0 {
		t.Fatalf("expected no divergent rows after reconcile, got %+v", afterReconcile)
	}
}

func TestAuditStore_RecordAndList(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.AuditStore()

	events := []core.AuditEvent{
		{
			Kind:      core.AuditKindPrivilegedAccess,
			ActorID:   "usr_admin",
			ActorRole: core.RolePlatformAdmin,
			TenantID:  "tenant_audit_1",
			Metadata:  map[string]any{"claimed_tenant_id": "tenant_other"},
		},
		{
			Kind:     core.AuditKindPrivilegedAccess,
			ActorID:  "usr_support",
			TenantID: "tenant_audit_1",
		},
	}
	for _, event := range events {
		if err := store.Record(ctx, event); err != nil {
			t.Fatalf("record audit event: %v", err)
		}
	}

	listed, err := store.ListByTenant(ctx, "tenant_audit_1", 10)
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(listed))
	}
	for _, event := range listed {
		if event.ID == "" {
			t.Fatalf("expected generated audit event id")
		}
		if event.OccurredAt.IsZero() {
			t.Fatalf("expected occurred_at to default")
		}
	}

	other, err := store.ListByTenant(ctx, "tenant_audit_other", 10)
	if err != nil {
		t.Fatalf("list audit events for other tenant: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no audit events for other tenant, got %d", len(other))
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:tenant-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = tenantmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != tenantmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, tenantmigrations.WithValidationTargets(tenantmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
