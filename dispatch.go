package tenant

import (
	"context"
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	tenantcommand "github.com/goliatone/go-tenant/command"
	"github.com/goliatone/go-tenant/core"
	tenantquery "github.com/goliatone/go-tenant/query"
)

// Subscription is one live dispatcher registration.
type Subscription = commanddispatcher.Subscription

// SubscribeFacade registers every wired command and query with the
// in-process go-command dispatcher so callers can route by message instead
// of holding the facade. The returned subscriptions stay active until
// released; Unsubscribe them on shutdown.
func SubscribeFacade(facade *Facade, runnerOpts ...runner.Option) ([]Subscription, error) {
	if facade == nil {
		return nil, fmt.Errorf("tenant: facade is required")
	}

	commands := facade.Commands()
	queries := facade.Queries()

	subscriptions := []Subscription{
		commanddispatcher.SubscribeCommand(commands.CreateTenant, runnerOpts...),
		commanddispatcher.SubscribeCommand(commands.SuspendTenant, runnerOpts...),
		commanddispatcher.SubscribeCommand(commands.ActivateTenant, runnerOpts...),
		commanddispatcher.SubscribeCommand(commands.UpdateSubscription, runnerOpts...),
		commanddispatcher.SubscribeCommand(commands.UpdateQuotas, runnerOpts...),
		commanddispatcher.SubscribeQuery(queries.GetTenant, runnerOpts...),
		commanddispatcher.SubscribeQuery(queries.ListDivergentOperations, runnerOpts...),
	}
	if queries.ListAuditEvents != nil {
		subscriptions = append(subscriptions,
			commanddispatcher.SubscribeQuery(queries.ListAuditEvents, runnerOpts...))
	}
	return subscriptions, nil
}

// Unsubscribe releases dispatcher registrations, tolerating nil entries.
func Unsubscribe(subscriptions []Subscription) {
	for _, subscription := range subscriptions {
		if subscription == nil {
			continue
		}
		subscription.Unsubscribe()
	}
}

// Dispatch routes a tenant command message through the dispatcher.
func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

// Query routes a tenant query message through the dispatcher.
func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// QueryTenant fetches a tenant record via the dispatcher.
func QueryTenant(ctx context.Context, tenantID string) (core.Tenant, error) {
	return Query[tenantquery.GetTenantMessage, core.Tenant](ctx, tenantquery.GetTenantMessage{TenantID: tenantID})
}

// DispatchSuspendTenant suspends a tenant via the dispatcher.
func DispatchSuspendTenant(ctx context.Context, tenantID, reason string) error {
	return Dispatch(ctx, tenantcommand.SuspendTenantMessage{TenantID: tenantID, Reason: reason})
}
