package core

import (
	"sync"
	"time"
)

// RequestContext is the ephemeral product of tenant resolution: the resolved
// tenant, the caller, and a borrowed connection lease. One per logical
// operation; never persisted, never shared across operations.
type RequestContext struct {
	TenantID   string
	Tenant     Tenant
	Caller     CallerIdentity
	ResolvedAt time.Time

	mu    sync.Mutex
	lease Lease
	taken bool
}

func NewRequestContext(tenant Tenant, caller CallerIdentity, lease Lease, resolvedAt time.Time) *RequestContext {
	return &RequestContext{
		TenantID:   tenant.ID,
		Tenant:     tenant,
		Caller:     caller,
		ResolvedAt: resolvedAt,
		lease:      lease,
	}
}

// Lease peeks at the borrowed connection without transferring ownership.
// Returns nil once the lease has been taken.
func (rc *RequestContext) Lease() Lease {
	if rc == nil {
		return nil
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.taken {
		return nil
	}
	return rc.lease
}

// TakeLease transfers the borrowed connection to the caller, who becomes
// responsible for releasing it. Subsequent calls return nil so exactly one
// component ever owns the release path.
func (rc *RequestContext) TakeLease() Lease {
	if rc == nil {
		return nil
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.taken || rc.lease == nil {
		return nil
	}
	rc.taken = true
	return rc.lease
}

// Release returns the borrowed connection to the pool unless another
// component already took ownership. Safe to defer unconditionally.
func (rc *RequestContext) Release() error {
	if rc == nil {
		return nil
	}
	rc.mu.Lock()
	if rc.taken || rc.lease == nil {
		rc.mu.Unlock()
		return nil
	}
	lease := rc.lease
	rc.taken = true
	rc.mu.Unlock()
	return lease.Release()
}
