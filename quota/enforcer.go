package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-tenant/core"
)

var ErrUsageNotFound = errors.New("quota: usage not found")

// Resource names one quota-bounded dimension of a tenant.
type Resource string

const (
	ResourceLibraries Resource = "libraries"
	ResourceStudents  Resource = "students"
	ResourceStaff     Resource = "staff"
	ResourceStorageMB Resource = "storage_mb"
)

func (r Resource) Valid() bool {
	switch r {
	case ResourceLibraries, ResourceStudents, ResourceStaff, ResourceStorageMB:
		return true
	}
	return false
}

// Usage is the current consumption counter for one tenant resource.
type Usage struct {
	TenantID  string
	Resource  Resource
	Used      int
	UpdatedAt time.Time
}

// UsageStore persists consumption counters. Implementations must treat a
// missing counter as ErrUsageNotFound rather than zero so the enforcer can
// distinguish "never reserved" from "fully released".
type UsageStore interface {
	Get(ctx context.Context, tenantID string, resource Resource) (Usage, error)
	Upsert(ctx context.Context, usage Usage) error
}

// ExceededError is returned when a reservation would push a tenant past its
// configured limit. Limit zero means unlimited and never produces this.
type ExceededError struct {
	TenantID  string
	Resource  Resource
	Limit     int
	Requested int
}

func (e ExceededError) Error() string {
	return fmt.Sprintf(
		"quota: tenant %q resource %q limit %d cannot absorb %d more",
		strings.TrimSpace(e.TenantID), e.Resource, e.Limit, e.Requested,
	)
}

func (e ExceededError) ToTenantError() *goerrors.Error {
	return core.NewQuotaExceededError(e.TenantID, string(e.Resource), e.Limit, e.Requested)
}

// Enforcer checks reservations against the quotas stored on the tenant
// record. It reads the tenant on every reservation so quota updates take
// effect without restarts.
type Enforcer struct {
	tenants core.TenantStore
	store   UsageStore
	now     func() time.Time
}

type Config struct {
	Tenants core.TenantStore
	Store   UsageStore
	Now     func() time.Time
}

func NewEnforcer(cfg Config) (*Enforcer, error) {
	if cfg.Tenants == nil {
		return nil, fmt.Errorf("quota: tenant store is required")
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryUsageStore()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Enforcer{tenants: cfg.Tenants, store: store, now: now}, nil
}

// Reserve consumes delta units of a resource, failing with an ExceededError
// envelope when the tenant's limit cannot absorb it. Delta must be positive.
func (e *Enforcer) Reserve(ctx context.Context, tenantID string, resource Resource, delta int) error {
	if e == nil || e.tenants == nil || e.store == nil {
		return fmt.Errorf("quota: enforcer is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("quota: tenant id is required")
	}
	if !resource.Valid() {
		return fmt.Errorf("quota: unknown resource %q", resource)
	}
	if delta <= 0 {
		return fmt.Errorf("quota: reservation delta must be positive")
	}

	tenant, err := e.tenants.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	limit := limitFor(tenant.Quotas, resource)

	usage, err := e.currentUsage(ctx, tenantID, resource)
	if err != nil {
		return err
	}
	if limit > 0 && usage.Used+delta > limit {
		return ExceededError{
			TenantID:  tenantID,
			Resource:  resource,
			Limit:     limit,
			Requested: delta,
		}.ToTenantError()
	}

	usage.Used += delta
	usage.UpdatedAt = e.now()
	return e.store.Upsert(ctx, usage)
}

// Release returns delta units of a resource, clamping at zero so duplicate
// releases cannot drive a counter negative.
func (e *Enforcer) Release(ctx context.Context, tenantID string, resource Resource, delta int) error {
	if e == nil || e.store == nil {
		return fmt.Errorf("quota: enforcer is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("quota: tenant id is required")
	}
	if !resource.Valid() {
		return fmt.Errorf("quota: unknown resource %q", resource)
	}
	if delta <= 0 {
		return fmt.Errorf("quota: release delta must be positive")
	}

	usage, err := e.currentUsage(ctx, tenantID, resource)
	if err != nil {
		return err
	}
	usage.Used -= delta
	if usage.Used < 0 {
		usage.Used = 0
	}
	usage.UpdatedAt = e.now()
	return e.store.Upsert(ctx, usage)
}

// Remaining reports how many units the tenant may still reserve. A negative
// value means unlimited.
func (e *Enforcer) Remaining(ctx context.Context, tenantID string, resource Resource) (int, error) {
	if e == nil || e.tenants == nil || e.store == nil {
		return 0, fmt.Errorf("quota: enforcer is not configured")
	}
	tenant, err := e.tenants.Get(ctx, strings.TrimSpace(tenantID))
	if err != nil {
		return 0, err
	}
	limit := limitFor(tenant.Quotas, resource)
	if limit <= 0 {
		return -1, nil
	}
	usage, err := e.currentUsage(ctx, tenantID, resource)
	if err != nil {
		return 0, err
	}
	remaining := limit - usage.Used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (e *Enforcer) currentUsage(ctx context.Context, tenantID string, resource Resource) (Usage, error) {
	usage, err := e.store.Get(ctx, tenantID, resource)
	if err != nil {
		if errors.Is(err, ErrUsageNotFound) {
			return Usage{TenantID: tenantID, Resource: resource}, nil
		}
		return Usage{}, err
	}
	return usage, nil
}

func limitFor(quotas core.ResourceQuotas, resource Resource) int {
	switch resource {
	case ResourceLibraries:
		return quotas.MaxLibraries
	case ResourceStudents:
		return quotas.MaxStudents
	case ResourceStaff:
		return quotas.MaxStaff
	case ResourceStorageMB:
		return quotas.MaxStorageMB
	}
	return 0
}

// MemoryUsageStore keeps counters in process memory. Suitable for tests and
// single-node deployments; multi-node deployments want a shared store.
type MemoryUsageStore struct {
	mu    sync.RWMutex
	items map[string]Usage
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{items: map[string]Usage{}}
}

func (s *MemoryUsageStore) Get(_ context.Context, tenantID string, resource Resource) (Usage, error) {
	if s == nil {
		return Usage{}, fmt.Errorf("quota: usage store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	usage, ok := s.items[usageKey(tenantID, resource)]
	if !ok {
		return Usage{}, ErrUsageNotFound
	}
	return usage, nil
}

func (s *MemoryUsageStore) Upsert(_ context.Context, usage Usage) error {
	if s == nil {
		return fmt.Errorf("quota: usage store is nil")
	}
	usage.TenantID = strings.TrimSpace(usage.TenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[usageKey(usage.TenantID, usage.Resource)] = usage
	return nil
}

func usageKey(tenantID string, resource Resource) string {
	return strings.TrimSpace(tenantID) + "|" + string(resource)
}

var _ UsageStore = (*MemoryUsageStore)(nil)
