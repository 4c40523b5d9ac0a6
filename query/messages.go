package query

import (
	"fmt"
	"strings"
)

const (
	TypeGetTenant               = "tenant.query.get"
	TypeListDivergentOperations = "tenant.query.external_operations.list_divergent"
	TypeListAuditEventsByTenant = "tenant.query.audit.list"
)

const (
	maxDivergentOperationsLimit = 500
	maxAuditEventsLimit         = 500
)

type GetTenantMessage struct {
	TenantID string
}

func (GetTenantMessage) Type() string { return TypeGetTenant }

func (m GetTenantMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	return nil
}

type ListDivergentOperationsMessage struct {
	Limit int
}

func (ListDivergentOperationsMessage) Type() string { return TypeListDivergentOperations }

func (m ListDivergentOperationsMessage) Validate() error {
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	if m.Limit > maxDivergentOperationsLimit {
		return fmt.Errorf("query: limit must be <= %d", maxDivergentOperationsLimit)
	}
	return nil
}

type ListAuditEventsMessage struct {
	TenantID string
	Limit    int
}

func (ListAuditEventsMessage) Type() string { return TypeListAuditEventsByTenant }

func (m ListAuditEventsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("query: tenant id is required")
	}
	if m.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	if m.Limit > maxAuditEventsLimit {
		return fmt.Errorf("query: limit must be <= %d", maxAuditEventsLimit)
	}
	return nil
}
