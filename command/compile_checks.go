package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CreateTenantMessage]       = (*CreateTenantCommand)(nil)
	_ gocmd.Commander[SuspendTenantMessage]      = (*SuspendTenantCommand)(nil)
	_ gocmd.Commander[ActivateTenantMessage]     = (*ActivateTenantCommand)(nil)
	_ gocmd.Commander[UpdateSubscriptionMessage] = (*UpdateSubscriptionCommand)(nil)
	_ gocmd.Commander[UpdateQuotasMessage]       = (*UpdateQuotasCommand)(nil)
)
