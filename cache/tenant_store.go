package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-tenant/core"
)

// TenantStore is a read-through wrapper over another tenant store. Reads are
// served from the cache while an entry is fresh; mutations write through and
// drop the tenant's entry so the next read refetches. Keys follow
// core.TenantCacheKey, the same prefix the service invalidates on tenant
// mutations.
type TenantStore struct {
	next    core.TenantStore
	entries core.CacheService
	prefix  string
	ttl     time.Duration
}

func NewTenantStore(next core.TenantStore, entries core.CacheService, prefix string, ttl time.Duration) *TenantStore {
	return &TenantStore{next: next, entries: entries, prefix: prefix, ttl: ttl}
}

func (s *TenantStore) Get(ctx context.Context, tenantID string) (core.Tenant, error) {
	if s == nil || s.next == nil {
		return core.Tenant{}, core.NewTenantNotFoundError(tenantID)
	}
	key := core.TenantCacheKey(s.prefix, tenantID)
	if s.entries != nil {
		if entry := s.entries.Get(ctx, key); entry.Found {
			if tenant, ok := entry.Value.(core.Tenant); ok {
				return tenant, nil
			}
			// foreign value under our key, drop it and refetch
			s.entries.Delete(ctx, key)
		}
	}
	tenant, err := s.next.Get(ctx, tenantID)
	if err != nil {
		return core.Tenant{}, err
	}
	if s.entries != nil {
		s.entries.Set(ctx, key, tenant, s.ttl)
	}
	return tenant, nil
}

func (s *TenantStore) Create(ctx context.Context, tenant core.Tenant) (core.Tenant, error) {
	created, err := s.next.Create(ctx, tenant)
	if err != nil {
		return core.Tenant{}, err
	}
	s.drop(ctx, created.ID)
	return created, nil
}

func (s *TenantStore) UpdateStatus(ctx context.Context, tenantID string, status core.TenantStatus, reason string) error {
	if err := s.next.UpdateStatus(ctx, tenantID, status, reason); err != nil {
		return err
	}
	s.drop(ctx, tenantID)
	return nil
}

func (s *TenantStore) UpdateSubscription(ctx context.Context, tenantID string, status core.SubscriptionStatus, endsAt *time.Time) error {
	if err := s.next.UpdateSubscription(ctx, tenantID, status, endsAt); err != nil {
		return err
	}
	s.drop(ctx, tenantID)
	return nil
}

func (s *TenantStore) UpdateQuotas(ctx context.Context, tenantID string, quotas core.ResourceQuotas) error {
	if err := s.next.UpdateQuotas(ctx, tenantID, quotas); err != nil {
		return err
	}
	s.drop(ctx, tenantID)
	return nil
}

func (s *TenantStore) drop(ctx context.Context, tenantID string) {
	if s.entries == nil {
		return
	}
	s.entries.Delete(ctx, core.TenantCacheKey(s.prefix, tenantID))
}

var _ core.TenantStore = (*TenantStore)(nil)
