package query

import (
	"context"

	"github.com/goliatone/go-tenant/core"
)

type TenantReader interface {
	GetTenant(ctx context.Context, tenantID string) (core.Tenant, error)
}

type DivergentOperationsReader interface {
	ListDivergentOperations(ctx context.Context, limit int) ([]core.ExternalOperation, error)
}

type AuditEventReader interface {
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]core.AuditEvent, error)
}

type GetTenantQuery struct {
	reader TenantReader
}

func NewGetTenantQuery(reader TenantReader) *GetTenantQuery {
	return &GetTenantQuery{reader: reader}
}

func (q *GetTenantQuery) Query(ctx context.Context, msg GetTenantMessage) (core.Tenant, error) {
	if q == nil || q.reader == nil {
		return core.Tenant{}, queryDependencyError("query: tenant reader is required")
	}
	return q.reader.GetTenant(ctx, msg.TenantID)
}

type ListDivergentOperationsQuery struct {
	reader DivergentOperationsReader
}

func NewListDivergentOperationsQuery(reader DivergentOperationsReader) *ListDivergentOperationsQuery {
	return &ListDivergentOperationsQuery{reader: reader}
}

func (q *ListDivergentOperationsQuery) Query(
	ctx context.Context,
	msg ListDivergentOperationsMessage,
) ([]core.ExternalOperation, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: divergent operations reader is required")
	}
	return q.reader.ListDivergentOperations(ctx, msg.Limit)
}

type ListAuditEventsQuery struct {
	reader AuditEventReader
}

func NewListAuditEventsQuery(reader AuditEventReader) *ListAuditEventsQuery {
	return &ListAuditEventsQuery{reader: reader}
}

func (q *ListAuditEventsQuery) Query(ctx context.Context, msg ListAuditEventsMessage) ([]core.AuditEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: audit event reader is required")
	}
	return q.reader.ListByTenant(ctx, msg.TenantID, msg.Limit)
}
