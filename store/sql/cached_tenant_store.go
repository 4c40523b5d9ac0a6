package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-tenant/core"
)

const tenantCacheKeyPrefix = "go-tenant::tenant::v1"

// CachedTenantStore fronts the tenant store with a read-through cache. Every
// mutation deletes the tenant's cached entry, which is the designed path
// that lets the resolver's standing checks read cached rows safely.
type CachedTenantStore struct {
	base  core.TenantStore
	cache repositorycache.CacheService
}

func NewCachedTenantStore(base core.TenantStore, cacheService repositorycache.CacheService) (*CachedTenantStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base tenant store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: tenant cache service is required")
	}
	return &CachedTenantStore{base: base, cache: cacheService}, nil
}

// TenantCacheKey returns the deterministic cache key contract for tenant
// reads: go-tenant::tenant::v1::<tenant_id> with the id URL-path escaped.
func TenantCacheKey(tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("sqlstore: tenant id is required")
	}
	return tenantCacheKeyPrefix + "::" + url.PathEscape(tenantID), nil
}

func (s *CachedTenantStore) Get(ctx context.Context, tenantID string) (core.Tenant, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Tenant{}, fmt.Errorf("sqlstore: cached tenant store is not configured")
	}
	cacheKey, err := TenantCacheKey(tenantID)
	if err != nil {
		return core.Tenant{}, err
	}
	tenant, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Tenant, error) {
		return s.base.Get(ctx, tenantID)
	})
	if err != nil {
		return core.Tenant{}, err
	}
	return tenant, nil
}

func (s *CachedTenantStore) Create(ctx context.Context, tenant core.Tenant) (core.Tenant, error) {
	if s == nil || s.base == nil {
		return core.Tenant{}, fmt.Errorf("sqlstore: cached tenant store is not configured")
	}
	created, err := s.base.Create(ctx, tenant)
	if err != nil {
		return core.Tenant{}, err
	}
	if err := s.invalidate(ctx, created.ID); err != nil {
		return core.Tenant{}, err
	}
	return created, nil
}

func (s *CachedTenantStore) UpdateStatus(ctx context.Context, tenantID string, status core.TenantStatus, reason string) error {
	if err := s.base.UpdateStatus(ctx, tenantID, status, reason); err != nil {
		return err
	}
	return s.invalidate(ctx, tenantID)
}

func (s *CachedTenantStore) UpdateSubscription(ctx context.Context, tenantID string, status core.SubscriptionStatus, endsAt *time.Time) error {
	if err := s.base.UpdateSubscription(ctx, tenantID, status, endsAt); err != nil {
		return err
	}
	return s.invalidate(ctx, tenantID)
}

func (s *CachedTenantStore) UpdateQuotas(ctx context.Context, tenantID string, quotas core.ResourceQuotas) error {
	if err := s.base.UpdateQuotas(ctx, tenantID, quotas); err != nil {
		return err
	}
	return s.invalidate(ctx, tenantID)
}

func (s *CachedTenantStore) invalidate(ctx context.Context, tenantID string) error {
	cacheKey, err := TenantCacheKey(tenantID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.TenantStore = (*CachedTenantStore)(nil)
