// Package pool manages one bounded database pool per tenant and hands out
// connection leases.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-tenant/core"
)

// DescriptorFunc resolves the connection descriptor for a tenant.
type DescriptorFunc func(ctx context.Context, tenantID string) (core.ConnectionDescriptor, error)

// DescriptorFromStore reads descriptors off the tenant record.
func DescriptorFromStore(store core.TenantStore) DescriptorFunc {
	return func(ctx context.Context, tenantID string) (core.ConnectionDescriptor, error) {
		tenant, err := store.Get(ctx, tenantID)
		if err != nil {
			return core.ConnectionDescriptor{}, err
		}
		return tenant.Connection, nil
	}
}

type Config struct {
	Descriptor DescriptorFunc
	Pool       core.PoolConfig
	Logger     core.Logger
}

// Manager opens one *bun.DB per tenant on first use and keeps it for the
// process lifetime. Pools are bounded by the configured limits; exceeding
// demand queues on the database/sql pool until the acquire timeout fires.
type Manager struct {
	descriptor DescriptorFunc
	cfg        core.PoolConfig
	logger     core.Logger

	mu    sync.Mutex
	pools map[string]*bun.DB
}

func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		_, logger = glog.Resolve("tenant.pool", nil, nil)
	}
	return &Manager{
		descriptor: cfg.Descriptor,
		cfg:        cfg.Pool,
		logger:     logger,
		pools:      map[string]*bun.DB{},
	}
}

// Acquire resolves the tenant's pool and checks out a dedicated connection.
// Waiting is bounded by the acquire timeout; hitting it surfaces as a
// retryable unavailability rather than an indefinite hang.
func (m *Manager) Acquire(ctx context.Context, tenantID string) (core.Lease, error) {
	if m == nil || m.descriptor == nil {
		return nil, core.NewConnectionUnresolvableError(tenantID)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, core.NewConnectionUnresolvableError(tenantID)
	}

	db, descriptor, err := m.poolFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	acquireCtx := ctx
	cancel := func() {}
	if timeout := m.cfg.AcquireTimeout(); timeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	conn, err := db.Conn(acquireCtx)
	if err != nil {
		// only deadline exhaustion reads as pool pressure; dial and auth
		// failures are a different problem and must not look retryable-later
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.NewConnectionTimeoutError(tenantID, err)
		}
		return nil, core.NewConnectionFailedError(tenantID, err)
	}

	if descriptor.Driver == "postgres" && strings.TrimSpace(descriptor.Schema) != "" {
		statement := "SET search_path TO " + pq.QuoteIdentifier(strings.TrimSpace(descriptor.Schema))
		if _, err := conn.ExecContext(acquireCtx, statement); err != nil {
			conn.Close()
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, core.NewConnectionTimeoutError(tenantID, err)
			}
			return nil, core.NewConnectionFailedError(tenantID, err)
		}
	}

	return &lease{tenantID: tenantID, conn: conn}, nil
}

func (m *Manager) poolFor(ctx context.Context, tenantID string) (*bun.DB, core.ConnectionDescriptor, error) {
	descriptor, err := m.descriptor(ctx, tenantID)
	if err != nil {
		return nil, core.ConnectionDescriptor{}, err
	}
	if descriptor.Empty() {
		return nil, core.ConnectionDescriptor{}, core.NewConnectionUnresolvableError(tenantID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if db, ok := m.pools[tenantID]; ok {
		return db, descriptor, nil
	}

	db, err := m.open(tenantID, descriptor)
	if err != nil {
		return nil, core.ConnectionDescriptor{}, err
	}
	m.pools[tenantID] = db
	m.logger.Debug("opened tenant pool", "tenant_id", tenantID, "driver", descriptor.Driver)
	return db, descriptor, nil
}

func (m *Manager) open(tenantID string, descriptor core.ConnectionDescriptor) (*bun.DB, error) {
	driver := strings.TrimSpace(strings.ToLower(descriptor.Driver))
	sqldb, err := sql.Open(driver, descriptor.DSN)
	if err != nil {
		return nil, core.NewConnectionFailedError(tenantID, err)
	}
	if m.cfg.Max > 0 {
		sqldb.SetMaxOpenConns(m.cfg.Max)
	}
	if m.cfg.Min > 0 {
		sqldb.SetMaxIdleConns(m.cfg.Min)
	}
	if idle := m.cfg.IdleTimeout(); idle > 0 {
		sqldb.SetConnMaxIdleTime(idle)
	}

	switch driver {
	case "postgres":
		return bun.NewDB(sqldb, pgdialect.New()), nil
	case "sqlite3", "sqlite":
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	default:
		sqldb.Close()
		return nil, core.NewConnectionUnresolvableError(tenantID)
	}
}

// Teardown closes every tenant pool. Outstanding leases error on next use.
func (m *Manager) Teardown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	pools := m.pools
	m.pools = map[string]*bun.DB{}
	m.mu.Unlock()

	var firstErr error
	for tenantID, db := range pools {
		if err := db.Close(); err != nil {
			m.logger.Error("close tenant pool", "tenant_id", tenantID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// lease wraps one checked-out connection. Release is guarded by a Once so a
// double release on overlapping terminal paths stays harmless.
type lease struct {
	tenantID string
	conn     bun.Conn
	once     sync.Once
	err      error
}

func (l *lease) TenantID() string { return l.tenantID }

func (l *lease) DB() bun.IDB { return l.conn }

func (l *lease) BeginTx(ctx context.Context, opts *sql.TxOptions) (bun.Tx, error) {
	return l.conn.BeginTx(ctx, opts)
}

func (l *lease) Release() error {
	l.once.Do(func() {
		l.err = l.conn.Close()
	})
	return l.err
}

var _ core.ConnectionPool = (*Manager)(nil)
var _ core.Lease = (*lease)(nil)
