package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-tenant/core"
)

type tenantRecord struct {
	bun.BaseModel `bun:"table:tenants,alias:t"`

	ID                 string               `bun:"id,pk"`
	Name               string               `bun:"name,notnull"`
	Status             string               `bun:"status,notnull"`
	StatusReason       string               `bun:"status_reason"`
	SubscriptionStatus string               `bun:"subscription_status,notnull"`
	SubscriptionEndsAt *time.Time           `bun:"subscription_ends_at,nullzero"`
	Quotas             core.ResourceQuotas  `bun:"quotas,type:jsonb,notnull"`
	Connection         connectionDescriptor `bun:"connection,type:jsonb,notnull"`
	CreatedAt          time.Time            `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time            `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	DeletedAt          *time.Time           `bun:"deleted_at,soft_delete"`
}

// connectionDescriptor mirrors core.ConnectionDescriptor for jsonb storage.
type connectionDescriptor struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	Schema string `json:"schema,omitempty"`
}

func (r *tenantRecord) toDomain() core.Tenant {
	return core.Tenant{
		ID:                 r.ID,
		Name:               r.Name,
		Status:             core.TenantStatus(r.Status),
		SubscriptionStatus: core.SubscriptionStatus(r.SubscriptionStatus),
		SubscriptionEndsAt: cloneTime(r.SubscriptionEndsAt),
		Quotas:             r.Quotas,
		Connection: core.ConnectionDescriptor{
			Driver: r.Connection.Driver,
			DSN:    r.Connection.DSN,
			Schema: r.Connection.Schema,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func newTenantRecord(tenant core.Tenant, now time.Time) *tenantRecord {
	return &tenantRecord{
		ID:                 tenant.ID,
		Name:               tenant.Name,
		Status:             string(tenant.Status),
		SubscriptionStatus: string(tenant.SubscriptionStatus),
		SubscriptionEndsAt: cloneTime(tenant.SubscriptionEndsAt),
		Quotas:             tenant.Quotas,
		Connection: connectionDescriptor{
			Driver: tenant.Connection.Driver,
			DSN:    tenant.Connection.DSN,
			Schema: tenant.Connection.Schema,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

type externalOperationRecord struct {
	bun.BaseModel `bun:"table:tenant_external_operations,alias:teo"`

	ID                 string         `bun:"id,pk"`
	TenantID           string         `bun:"tenant_id,notnull"`
	Kind               string         `bun:"kind,notnull"`
	EntityID           string         `bun:"entity_id"`
	CorrelationID      string         `bun:"correlation_id,notnull"`
	Status             string         `bun:"status,notnull"`
	FailureDetail      string         `bun:"failure_detail"`
	CompensationDetail string         `bun:"compensation_detail"`
	Attempts           int            `bun:"attempts,notnull,default:0"`
	Metadata           map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt          time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *externalOperationRecord) toDomain() core.ExternalOperation {
	return core.ExternalOperation{
		ID:                 r.ID,
		TenantID:           r.TenantID,
		Kind:               r.Kind,
		EntityID:           r.EntityID,
		CorrelationID:      r.CorrelationID,
		Status:             core.ExternalOperationStatus(r.Status),
		FailureDetail:      r.FailureDetail,
		CompensationDetail: r.CompensationDetail,
		Attempts:           r.Attempts,
		Metadata:           copyAnyMap(r.Metadata),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func newExternalOperationRecord(op core.ExternalOperation, now time.Time) *externalOperationRecord {
	createdAt := op.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &externalOperationRecord{
		ID:                 op.ID,
		TenantID:           op.TenantID,
		Kind:               op.Kind,
		EntityID:           op.EntityID,
		CorrelationID:      op.CorrelationID,
		Status:             string(op.Status),
		FailureDetail:      op.FailureDetail,
		CompensationDetail: op.CompensationDetail,
		Attempts:           op.Attempts,
		Metadata:           copyAnyMap(op.Metadata),
		CreatedAt:          createdAt,
		UpdatedAt:          now,
	}
}

type auditEventRecord struct {
	bun.BaseModel `bun:"table:tenant_audit_events,alias:tae"`

	ID         string         `bun:"id,pk"`
	Kind       string         `bun:"kind,notnull"`
	ActorID    string         `bun:"actor_id,notnull"`
	ActorRole  string         `bun:"actor_role"`
	TenantID   string         `bun:"tenant_id,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	OccurredAt time.Time      `bun:"occurred_at,nullzero,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *auditEventRecord) toDomain() core.AuditEvent {
	return core.AuditEvent{
		ID:         r.ID,
		Kind:       r.Kind,
		ActorID:    r.ActorID,
		ActorRole:  r.ActorRole,
		TenantID:   r.TenantID,
		Metadata:   copyAnyMap(r.Metadata),
		OccurredAt: r.OccurredAt,
	}
}

func cloneTime(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := *input
	return &value
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
