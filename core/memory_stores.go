package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MemoryTenantStore keeps tenants in process memory. Used by tests and as a
// bootstrap default until a SQL store is wired.
type MemoryTenantStore struct {
	mu    sync.RWMutex
	items map[string]Tenant
}

func NewMemoryTenantStore() *MemoryTenantStore {
	return &MemoryTenantStore{items: map[string]Tenant{}}
}

func (s *MemoryTenantStore) Get(_ context.Context, tenantID string) (Tenant, error) {
	if s == nil {
		return Tenant{}, fmt.Errorf("core: tenant store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenant, ok := s.items[strings.TrimSpace(tenantID)]
	if !ok {
		return Tenant{}, NewTenantNotFoundError(tenantID)
	}
	return tenant, nil
}

func (s *MemoryTenantStore) Create(_ context.Context, tenant Tenant) (Tenant, error) {
	if s == nil {
		return Tenant{}, fmt.Errorf("core: tenant store is nil")
	}
	if strings.TrimSpace(tenant.ID) == "" {
		tenant.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}
	tenant.UpdatedAt = now
	if tenant.Status == "" {
		tenant.Status = TenantStatusTrial
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[tenant.ID]; exists {
		return Tenant{}, fmt.Errorf("core: tenant %q already exists", tenant.ID)
	}
	s.items[tenant.ID] = tenant
	return tenant, nil
}

func (s *MemoryTenantStore) UpdateStatus(_ context.Context, tenantID string, status TenantStatus, _ string) error {
	if s == nil {
		return fmt.Errorf("core: tenant store is nil")
	}
	if !status.Valid() {
		return fmt.Errorf("core: invalid tenant status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.items[strings.TrimSpace(tenantID)]
	if !ok {
		return NewTenantNotFoundError(tenantID)
	}
	tenant.Status = status
	tenant.UpdatedAt = time.Now().UTC()
	s.items[tenant.ID] = tenant
	return nil
}

func (s *MemoryTenantStore) UpdateSubscription(_ context.Context, tenantID string, status SubscriptionStatus, endsAt *time.Time) error {
	if s == nil {
		return fmt.Errorf("core: tenant store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.items[strings.TrimSpace(tenantID)]
	if !ok {
		return NewTenantNotFoundError(tenantID)
	}
	tenant.SubscriptionStatus = status
	if endsAt == nil {
		tenant.SubscriptionEndsAt = nil
	} else {
		value := endsAt.UTC()
		tenant.SubscriptionEndsAt = &value
	}
	tenant.UpdatedAt = time.Now().UTC()
	s.items[tenant.ID] = tenant
	return nil
}

func (s *MemoryTenantStore) UpdateQuotas(_ context.Context, tenantID string, quotas ResourceQuotas) error {
	if s == nil {
		return fmt.Errorf("core: tenant store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.items[strings.TrimSpace(tenantID)]
	if !ok {
		return NewTenantNotFoundError(tenantID)
	}
	tenant.Quotas = quotas
	tenant.UpdatedAt = time.Now().UTC()
	s.items[tenant.ID] = tenant
	return nil
}

// MemoryAuditSink records audit events in memory for inspection in tests.
type MemoryAuditSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

func (s *MemoryAuditSink) Record(_ context.Context, event AuditEvent) error {
	if s == nil {
		return fmt.Errorf("core: audit sink is nil")
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.Metadata = copyAnyMap(event.Metadata)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryAuditSink) Events() []AuditEvent {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// MemoryExternalOperationStore backs coordinator and reconciler tests.
type MemoryExternalOperationStore struct {
	mu    sync.Mutex
	items map[string]ExternalOperation
}

func NewMemoryExternalOperationStore() *MemoryExternalOperationStore {
	return &MemoryExternalOperationStore{items: map[string]ExternalOperation{}}
}

func (s *MemoryExternalOperationStore) SaveTx(_ context.Context, _ bun.IDB, op ExternalOperation) error {
	return s.save(op)
}

func (s *MemoryExternalOperationStore) RecordDivergence(_ context.Context, op ExternalOperation) (ExternalOperation, error) {
	op.Status = ExternalOperationDivergent
	if err := s.save(op); err != nil {
		return ExternalOperation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[op.ID], nil
}

func (s *MemoryExternalOperationStore) save(op ExternalOperation) error {
	if s == nil {
		return fmt.Errorf("core: external operation store is nil")
	}
	if strings.TrimSpace(op.ID) == "" {
		op.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	op.UpdatedAt = now
	op.Metadata = copyAnyMap(op.Metadata)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[op.ID] = op
	return nil
}

func (s *MemoryExternalOperationStore) ListDivergent(_ context.Context, limit int) ([]ExternalOperation, error) {
	if s == nil {
		return nil, fmt.Errorf("core: external operation store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ExternalOperation, 0, len(s.items))
	for _, op := range s.items {
		if op.Status == ExternalOperationDivergent {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryExternalOperationStore) MarkReconciled(_ context.Context, id string, detail string) error {
	if s == nil {
		return fmt.Errorf("core: external operation store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.items[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("core: external operation %q not found", id)
	}
	op.Status = ExternalOperationReconciled
	op.CompensationDetail = strings.TrimSpace(detail)
	op.UpdatedAt = time.Now().UTC()
	s.items[op.ID] = op
	return nil
}

func (s *MemoryExternalOperationStore) BumpAttempt(_ context.Context, id string, cause error) error {
	if s == nil {
		return fmt.Errorf("core: external operation store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.items[strings.TrimSpace(id)]
	if !ok {
		return fmt.Errorf("core: external operation %q not found", id)
	}
	op.Attempts++
	if cause != nil {
		op.CompensationDetail = cause.Error()
	}
	op.UpdatedAt = time.Now().UTC()
	s.items[op.ID] = op
	return nil
}

func (s *MemoryExternalOperationStore) Get(id string) (ExternalOperation, bool) {
	if s == nil {
		return ExternalOperation{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.items[strings.TrimSpace(id)]
	return op, ok
}

var (
	_ TenantStore            = (*MemoryTenantStore)(nil)
	_ AuditSink              = (*MemoryAuditSink)(nil)
	_ ExternalOperationStore = (*MemoryExternalOperationStore)(nil)
)
