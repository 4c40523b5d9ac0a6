package core

import (
	"strings"
	"time"
)

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusExpired   TenantStatus = "expired"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case TenantStatusActive, TenantStatusSuspended, TenantStatusTrial, TenantStatusExpired:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// ResourceQuotas bounds what a tenant may provision. Zero means unlimited.
type ResourceQuotas struct {
	MaxLibraries int `json:"max_libraries"`
	MaxStudents  int `json:"max_students"`
	MaxStaff     int `json:"max_staff"`
	MaxStorageMB int `json:"max_storage_mb"`
}

// ConnectionDescriptor tells the pool manager how to reach a tenant's
// database. Driver is "postgres" or "sqlite3".
type ConnectionDescriptor struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	Schema string `json:"schema,omitempty"`
}

func (d ConnectionDescriptor) Empty() bool {
	return strings.TrimSpace(d.Driver) == "" || strings.TrimSpace(d.DSN) == ""
}

type Tenant struct {
	ID                 string
	Name               string
	Status             TenantStatus
	SubscriptionStatus SubscriptionStatus
	SubscriptionEndsAt *time.Time
	Quotas             ResourceQuotas
	Connection         ConnectionDescriptor
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SubscriptionCurrent reports whether the tenant's subscription allows
// access at the given instant.
func (t Tenant) SubscriptionCurrent(now time.Time) bool {
	if t.SubscriptionStatus != SubscriptionStatusActive {
		return false
	}
	if t.SubscriptionEndsAt != nil && t.SubscriptionEndsAt.Before(now) {
		return false
	}
	return true
}

const (
	RolePlatformAdmin = "platform_admin"
	RolePlatformStaff = "platform_staff"
	RoleTenantOwner   = "tenant_owner"
	RoleTenantStaff   = "tenant_staff"
	RoleTenantMember  = "tenant_member"
)

// PlatformRole reports whether the role belongs to platform operations
// personnel rather than a single tenant.
func PlatformRole(role string) bool {
	switch strings.TrimSpace(strings.ToLower(role)) {
	case RolePlatformAdmin, RolePlatformStaff:
		return true
	}
	return false
}

// CallerIdentity is the authenticated principal attached to a request.
// TenantID is the tenant claim embedded in the credential and may be empty
// for platform principals.
type CallerIdentity struct {
	UserID   string
	Role     string
	TenantID string
}

// Request carries the inbound fields the resolver needs. Transport framing
// (HTTP routing, header parsing) happens upstream; by the time a Request
// reaches the resolver it is already shape-normalized.
type Request struct {
	TenantID    string
	BearerToken string
	// Identity short-circuits token verification when the caller was already
	// authenticated upstream, e.g. by middleware sharing this core.
	Identity *CallerIdentity
}

type AuditEvent struct {
	ID         string
	Kind       string
	ActorID    string
	ActorRole  string
	TenantID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

const AuditKindPrivilegedAccess = "tenant.privileged_access"

type ExternalOperationStatus string

const (
	ExternalOperationCommitted  ExternalOperationStatus = "committed"
	ExternalOperationDivergent  ExternalOperationStatus = "divergent"
	ExternalOperationReconciled ExternalOperationStatus = "reconciled"
)

// ExternalOperation correlates an external processor's opaque result with a
// local entity. A divergent row means the external side effect committed but
// the local transaction and the compensating action both failed.
type ExternalOperation struct {
	ID                 string
	TenantID           string
	Kind               string
	EntityID           string
	CorrelationID      string
	Status             ExternalOperationStatus
	FailureDetail      string
	CompensationDetail string
	Attempts           int
	Metadata           map[string]any
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ExternalResult is what an external call yields: an opaque correlation id
// plus whatever payload the caller wants to thread into the local half.
type ExternalResult struct {
	CorrelationID string
	Payload       map[string]any
}

func copyAnyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
