package tenant

import (
	"fmt"

	tenantcommand "github.com/goliatone/go-tenant/command"
	tenantquery "github.com/goliatone/go-tenant/query"
)

// CommandQueryService is the slice of the tenant service the facade exposes
// through commands and queries.
type CommandQueryService interface {
	tenantcommand.MutatingService
	tenantquery.TenantReader
	tenantquery.DivergentOperationsReader
}

type Commands struct {
	CreateTenant       *tenantcommand.CreateTenantCommand
	SuspendTenant      *tenantcommand.SuspendTenantCommand
	ActivateTenant     *tenantcommand.ActivateTenantCommand
	UpdateSubscription *tenantcommand.UpdateSubscriptionCommand
	UpdateQuotas       *tenantcommand.UpdateQuotasCommand
}

type Queries struct {
	GetTenant               *tenantquery.GetTenantQuery
	ListDivergentOperations *tenantquery.ListDivergentOperationsQuery
	ListAuditEvents         *tenantquery.ListAuditEventsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	auditReader tenantquery.AuditEventReader
}

// WithAuditReader supplies the audit log reader backing the audit query;
// without one the query is omitted.
func WithAuditReader(reader tenantquery.AuditEventReader) FacadeOption {
	return func(options *facadeOptions) {
		options.auditReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("tenant: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		CreateTenant:       tenantcommand.NewCreateTenantCommand(service),
		SuspendTenant:      tenantcommand.NewSuspendTenantCommand(service),
		ActivateTenant:     tenantcommand.NewActivateTenantCommand(service),
		UpdateSubscription: tenantcommand.NewUpdateSubscriptionCommand(service),
		UpdateQuotas:       tenantcommand.NewUpdateQuotasCommand(service),
	}
	facade.queries = Queries{
		GetTenant:               tenantquery.NewGetTenantQuery(service),
		ListDivergentOperations: tenantquery.NewListDivergentOperationsQuery(service),
	}
	if cfg.auditReader != nil {
		facade.queries.ListAuditEvents = tenantquery.NewListAuditEventsQuery(cfg.auditReader)
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
