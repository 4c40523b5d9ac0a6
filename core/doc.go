// Package core defines the domain model, contracts, error envelope, and
// composition root for the multi-tenant data-access layer. The Service type
// owns the connection pool manager, tenant context resolver, transaction
// orchestrator, and external-effect coordinator, and exposes the operations
// downstream handlers consume.
package core
