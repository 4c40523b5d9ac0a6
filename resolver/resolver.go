// Package resolver turns inbound request credentials into a validated
// tenant RequestContext with a borrowed connection lease.
package resolver

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-tenant/core"
)

type Config struct {
	Store     core.TenantStore
	Directory core.TenantDirectory
	Verifier  core.TokenVerifier
	Pool      core.ConnectionPool
	Audit     core.AuditSink
	Logger    core.Logger
	// BypassRoles may resolve tenants other than their own claim. Every
	// bypass is recorded through the audit sink.
	BypassRoles []string
	Now         func() time.Time
}

type Resolver struct {
	store       core.TenantStore
	directory   core.TenantDirectory
	verifier    core.TokenVerifier
	pool        core.ConnectionPool
	audit       core.AuditSink
	logger      core.Logger
	bypassRoles map[string]struct{}
	now         func() time.Time
}

func NewResolver(cfg Config) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		_, logger = glog.Resolve("tenant.resolver", nil, nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	bypass := make(map[string]struct{}, len(cfg.BypassRoles))
	for _, role := range cfg.BypassRoles {
		normalized := strings.TrimSpace(strings.ToLower(role))
		if normalized == "" {
			continue
		}
		bypass[normalized] = struct{}{}
	}
	return &Resolver{
		store:       cfg.Store,
		directory:   cfg.Directory,
		verifier:    cfg.Verifier,
		pool:        cfg.Pool,
		audit:       cfg.Audit,
		logger:      logger,
		bypassRoles: bypass,
		now:         now,
	}
}

// ResolveContext authenticates the caller, determines the target tenant,
// validates the tenant's standing, and borrows a connection lease. The
// returned context owns the lease; callers defer rc.Release().
func (r *Resolver) ResolveContext(ctx context.Context, req core.Request) (*core.RequestContext, error) {
	if r == nil || r.store == nil {
		return nil, core.NewConnectionUnresolvableError("")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	identity, err := r.authenticate(ctx, req)
	if err != nil {
		return nil, err
	}

	tenantID, err := r.targetTenant(ctx, req, identity)
	if err != nil {
		return nil, err
	}

	tenant, err := r.store.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	if err := validateStanding(tenant, now); err != nil {
		return nil, err
	}
	if err := r.enforceTenantClaim(ctx, identity, tenantID); err != nil {
		return nil, err
	}

	if r.pool == nil {
		return nil, core.NewConnectionUnresolvableError(tenantID)
	}
	lease, err := r.pool.Acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return core.NewRequestContext(tenant, identity, lease, now), nil
}

func (r *Resolver) authenticate(ctx context.Context, req core.Request) (core.CallerIdentity, error) {
	if req.Identity != nil {
		if strings.TrimSpace(req.Identity.UserID) == "" {
			return core.CallerIdentity{}, core.NewAuthRequiredError("identity is missing user id")
		}
		return *req.Identity, nil
	}
	if strings.TrimSpace(req.BearerToken) == "" {
		return core.CallerIdentity{}, core.NewAuthRequiredError("credential is required")
	}
	if r.verifier == nil {
		return core.CallerIdentity{}, core.NewAuthRequiredError("no token verifier configured")
	}
	return r.verifier.Verify(ctx, req.BearerToken)
}

// targetTenant applies the resolution precedence: an explicit tenant field
// wins, then the credential's tenant claim, then the directory lookup. The
// directory is reserved for platform principals whose credentials carry no
// tenant claim; tenant-scoped callers never resolve through it.
func (r *Resolver) targetTenant(ctx context.Context, req core.Request, identity core.CallerIdentity) (string, error) {
	if id := strings.TrimSpace(req.TenantID); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(identity.TenantID); id != "" {
		return id, nil
	}
	if r.directory != nil && core.PlatformRole(identity.Role) {
		id, err := r.directory.TenantForUser(ctx, identity.UserID)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id), nil
		}
	}
	return "", core.NewTenantNotFoundError("")
}

// validateStanding admits only active tenants. Any other status, trial and
// expired included, fails with the status as the inactive reason; the
// subscription check applies on top of an active status.
func validateStanding(tenant core.Tenant, now time.Time) error {
	if tenant.Status != core.TenantStatusActive {
		return core.NewTenantInactiveError(tenant.ID, tenant.Status)
	}
	if !tenant.SubscriptionCurrent(now) {
		return core.NewSubscriptionExpiredError(tenant.ID)
	}
	return nil
}

// enforceTenantClaim rejects a caller whose credential names a different
// tenant, unless the caller's role is in the bypass set. A bypass is
// privileged access and leaves an audit trail.
func (r *Resolver) enforceTenantClaim(ctx context.Context, identity core.CallerIdentity, tenantID string) error {
	claimed := strings.TrimSpace(identity.TenantID)
	if claimed == "" || claimed == tenantID {
		return nil
	}
	role := strings.TrimSpace(strings.ToLower(identity.Role))
	if _, ok := r.bypassRoles[role]; !ok {
		return core.NewCrossTenantDeniedError(claimed, tenantID)
	}
	r.recordBypass(ctx, identity, claimed, tenantID)
	return nil
}

func (r *Resolver) recordBypass(ctx context.Context, identity core.CallerIdentity, claimed, requested string) {
	if r.audit == nil {
		return
	}
	event := core.AuditEvent{
		ID:        uuid.NewString(),
		Kind:      core.AuditKindPrivilegedAccess,
		ActorID:   identity.UserID,
		ActorRole: identity.Role,
		TenantID:  requested,
		Metadata: map[string]any{
			"claimed_tenant_id": claimed,
		},
		OccurredAt: r.now().UTC(),
	}
	if err := r.audit.Record(ctx, event); err != nil && r.logger != nil {
		r.logger.Warn("record privileged access audit", "error", err, "tenant_id", requested)
	}
}

var _ core.ContextResolver = (*Resolver)(nil)
