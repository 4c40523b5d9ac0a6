package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tenant/core"
)

var (
	_ gocmd.Querier[GetTenantMessage, core.Tenant]                            = (*GetTenantQuery)(nil)
	_ gocmd.Querier[ListDivergentOperationsMessage, []core.ExternalOperation] = (*ListDivergentOperationsQuery)(nil)
	_ gocmd.Querier[ListAuditEventsMessage, []core.AuditEvent]                = (*ListAuditEventsQuery)(nil)
)
