package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-tenant/core"
)

// TenantStore persists tenant records in the control-plane database.
type TenantStore struct {
	db   *bun.DB
	repo repository.Repository[*tenantRecord]
}

func NewTenantStore(db *bun.DB) (*TenantStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tenantRecord](db, tenantHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid tenant repository wiring: %w", err)
		}
	}
	return &TenantStore{db: db, repo: repo}, nil
}

func (s *TenantStore) Get(ctx context.Context, tenantID string) (core.Tenant, error) {
	if s == nil || s.repo == nil {
		return core.Tenant{}, fmt.Errorf("sqlstore: tenant store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return core.Tenant{}, core.NewTenantNotFoundError(tenantID)
	}
	record, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		if isNotFound(err) {
			return core.Tenant{}, core.NewTenantNotFoundError(tenantID)
		}
		return core.Tenant{}, err
	}
	if record == nil || strings.TrimSpace(record.ID) == "" {
		return core.Tenant{}, core.NewTenantNotFoundError(tenantID)
	}
	return record.toDomain(), nil
}

func (s *TenantStore) Create(ctx context.Context, tenant core.Tenant) (core.Tenant, error) {
	if s == nil || s.db == nil {
		return core.Tenant{}, fmt.Errorf("sqlstore: tenant store is not configured")
	}
	tenant.ID = strings.TrimSpace(tenant.ID)
	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	tenant.Name = strings.TrimSpace(tenant.Name)
	if tenant.Name == "" {
		return core.Tenant{}, fmt.Errorf("sqlstore: tenant name is required")
	}
	if !tenant.Status.Valid() {
		return core.Tenant{}, fmt.Errorf("sqlstore: invalid tenant status %q", tenant.Status)
	}

	record := newTenantRecord(tenant, time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Tenant{}, err
	}
	return record.toDomain(), nil
}

func (s *TenantStore) UpdateStatus(ctx context.Context, tenantID string, status core.TenantStatus, reason string) error {
	if !status.Valid() {
		return fmt.Errorf("sqlstore: invalid tenant status %q", status)
	}
	return s.update(ctx, tenantID, func(record *tenantRecord) {
		record.Status = string(status)
		record.StatusReason = strings.TrimSpace(reason)
	})
}

func (s *TenantStore) UpdateSubscription(ctx context.Context, tenantID string, status core.SubscriptionStatus, endsAt *time.Time) error {
	return s.update(ctx, tenantID, func(record *tenantRecord) {
		record.SubscriptionStatus = string(status)
		record.SubscriptionEndsAt = cloneTime(endsAt)
	})
}

func (s *TenantStore) UpdateQuotas(ctx context.Context, tenantID string, quotas core.ResourceQuotas) error {
	return s.update(ctx, tenantID, func(record *tenantRecord) {
		record.Quotas = quotas
	})
}

func (s *TenantStore) update(ctx context.Context, tenantID string, mutate func(*tenantRecord)) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: tenant store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return core.NewTenantNotFoundError(tenantID)
	}
	record, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		if isNotFound(err) {
			return core.NewTenantNotFoundError(tenantID)
		}
		return err
	}
	mutate(record)
	record.UpdatedAt = time.Now().UTC()
	_, err = s.repo.Update(ctx, record, repository.UpdateByID(tenantID))
	return err
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Category == goerrors.CategoryNotFound
	}
	return false
}

var _ core.TenantStore = (*TenantStore)(nil)
