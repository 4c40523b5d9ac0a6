package pool

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-tenant/core"
)

var poolSeq atomic.Int64

func sqliteDescriptor() core.ConnectionDescriptor {
	return core.ConnectionDescriptor{
		Driver: "sqlite3",
		DSN:    fmt.Sprintf("file:pooltest_%d?mode=memory&cache=shared", poolSeq.Add(1)),
	}
}

func staticDescriptor(descriptor core.ConnectionDescriptor) DescriptorFunc {
	return func(context.Context, string) (core.ConnectionDescriptor, error) {
		return descriptor, nil
	}
}

func newTestManager(t *testing.T, cfg core.PoolConfig, descriptor DescriptorFunc) *Manager {
	t.Helper()
	manager := NewManager(Config{Descriptor: descriptor, Pool: cfg})
	t.Cleanup(func() {
		if err := manager.Teardown(context.Background()); err != nil {
			t.Fatalf("teardown: %v", err)
		}
	})
	return manager
}

func TestAcquireAndRelease(t *testing.T) {
	manager := newTestManager(t, core.PoolConfig{Max: 4, Min: 1, AcquireTimeoutMS: 1000}, staticDescriptor(sqliteDescriptor()))

	lease, err := manager.Acquire(context.Background(), "t1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if lease.TenantID() != "t1" {
		t.Fatalf("expected lease for t1, got %s", lease.TenantID())
	}

	var one int
	if err := lease.DB().NewSelect().ColumnExpr("1").Scan(context.Background(), &one); err != nil {
		t.Fatalf("query on lease: %v", err)
	}
	if one != 1 {
		t.Fatalf("expected 1, got %d", one)
	}

	if err := lease.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := lease.Release(); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
}

func TestAcquireReusesTenantPool(t *testing.T) {
	var calls atomic.Int64
	descriptor := sqliteDescriptor()
	manager := newTestManager(t, core.PoolConfig{Max: 4, AcquireTimeoutMS: 1000}, func(context.Context, string) (core.ConnectionDescriptor, error) {
		calls.Add(1)
		return descriptor, nil
	})

	for i := 0; i < 3; i++ {
		lease, err := manager.Acquire(context.Background(), "t1")
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if err := lease.Release(); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}

	manager.mu.Lock()
	pools := len(manager.pools)
	manager.mu.Unlock()
	if pools != 1 {
		t.Fatalf("expected one pool for one tenant, got %d", pools)
	}
}

func TestAcquireIsolatesTenantPools(t *testing.T) {
	manager := newTestManager(t, core.PoolConfig{Max: 2, AcquireTimeoutMS: 1000}, func(_ context.Context, tenantID string) (core.ConnectionDescriptor, error) {
		return core.ConnectionDescriptor{
			Driver: "sqlite3",
			DSN:    fmt.Sprintf("file:pooliso_%s?mode=memory&cache=shared", tenantID),
		}, nil
	})

	leaseA, err := manager.Acquire(context.Background(), "ta")
	if err != nil {
		t.Fatalf("acquire ta: %v", err)
	}
	defer leaseA.Release()
	leaseB, err := manager.Acquire(context.Background(), "tb")
	if err != nil {
		t.Fatalf("acquire tb: %v", err)
	}
	defer leaseB.Release()

	if _, err := leaseA.DB().NewRaw("CREATE TABLE marker (id INTEGER)").Exec(context.Background()); err != nil {
		t.Fatalf("create marker: %v", err)
	}
	var count int
	err = leaseB.DB().NewRaw("SELECT count(*) FROM marker").Scan(context.Background(), &count)
	if err == nil {
		t.Fatal("expected tb to not see ta's schema")
	}
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	manager := newTestManager(t, core.PoolConfig{Max: 1, AcquireTimeoutMS: 100}, staticDescriptor(sqliteDescriptor()))

	held, err := manager.Acquire(context.Background(), "t1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer held.Release()

	started := time.Now()
	_, err = manager.Acquire(context.Background(), "t1")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if got := core.TextCode(err); got != core.TenantErrorConnectionTimeout {
		t.Fatalf("expected %s, got %s", core.TenantErrorConnectionTimeout, got)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("acquire blocked past the timeout: %s", elapsed)
	}
}

func TestAcquireDialFailureIsNotTimeout(t *testing.T) {
	manager := newTestManager(t, core.PoolConfig{Max: 1, AcquireTimeoutMS: 1000}, staticDescriptor(core.ConnectionDescriptor{
		Driver: "sqlite3",
		DSN:    "file:/no/such/dir/pool.db?mode=rw",
	}))

	_, err := manager.Acquire(context.Background(), "t1")
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if got := core.TextCode(err); got != core.TenantErrorConnectionFailed {
		t.Fatalf("expected %s, got %s (%v)", core.TenantErrorConnectionFailed, got, err)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if rich.Metadata["tenant_id"] != "t1" {
		t.Fatalf("expected tenant id in metadata, got %v", rich.Metadata)
	}
}

func TestOpenFailureCarriesTenantAndCause(t *testing.T) {
	manager := newTestManager(t, core.PoolConfig{}, staticDescriptor(core.ConnectionDescriptor{
		Driver: "no-such-driver",
		DSN:    "irrelevant",
	}))

	_, err := manager.Acquire(context.Background(), "t2")
	if err == nil {
		t.Fatal("expected open failure")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if rich.Metadata["tenant_id"] != "t2" {
		t.Fatalf("expected tenant id in metadata, got %v", rich.Metadata)
	}
}

func TestAcquireUnresolvableDescriptor(t *testing.T) {
	manager := newTestManager(t, core.PoolConfig{}, staticDescriptor(core.ConnectionDescriptor{}))

	_, err := manager.Acquire(context.Background(), "t1")
	if err == nil {
		t.Fatal("expected unresolvable error")
	}
	if got := core.TextCode(err); got != core.TenantErrorConnectionUnresolvable {
		t.Fatalf("expected %s, got %s", core.TenantErrorConnectionUnresolvable, got)
	}
}

func TestAcquirePropagatesDescriptorLookupError(t *testing.T) {
	manager := newTestManager(t, core.PoolConfig{}, func(_ context.Context, tenantID string) (core.ConnectionDescriptor, error) {
		return core.ConnectionDescriptor{}, core.NewTenantNotFoundError(tenantID)
	})

	_, err := manager.Acquire(context.Background(), "missing")
	if got := core.TextCode(err); got != core.TenantErrorNotFound {
		t.Fatalf("expected %s, got %s (%v)", core.TenantErrorNotFound, got, err)
	}
}

func TestDescriptorFromStore(t *testing.T) {
	store := core.NewMemoryTenantStore()
	seed := core.Tenant{ID: "t1", Name: "T1", Status: core.TenantStatusActive, Connection: sqliteDescriptor()}
	if _, err := store.Create(context.Background(), seed); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	descriptor, err := DescriptorFromStore(store)(context.Background(), "t1")
	if err != nil {
		t.Fatalf("descriptor lookup: %v", err)
	}
	if descriptor.Driver != "sqlite3" {
		t.Fatalf("unexpected descriptor %+v", descriptor)
	}
}

func TestTeardownClosesPools(t *testing.T) {
	manager := NewManager(Config{Descriptor: staticDescriptor(sqliteDescriptor()), Pool: core.PoolConfig{Max: 2, AcquireTimeoutMS: 500}})

	lease, err := manager.Acquire(context.Background(), "t1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := lease.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := manager.Teardown(context.Background()); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if _, err := manager.Acquire(context.Background(), "t1"); err != nil {
		// Teardown resets the pool map, so a fresh acquire reopens.
		t.Fatalf("acquire after teardown should reopen, got %v", err)
	}
	if err := manager.Teardown(context.Background()); err != nil {
		t.Fatalf("final teardown: %v", err)
	}
}
