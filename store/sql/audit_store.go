package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-tenant/core"
)

// AuditStore persists audit events, privileged cross-tenant access included.
type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*auditEventRecord]
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*auditEventRecord](db, auditEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit repository wiring: %w", err)
		}
	}
	return &AuditStore{db: db, repo: repo}, nil
}

func (s *AuditStore) Record(ctx context.Context, event core.AuditEvent) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: audit store is not configured")
	}
	if strings.TrimSpace(event.Kind) == "" {
		return fmt.Errorf("sqlstore: audit event kind is required")
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	record := &auditEventRecord{
		ID:         event.ID,
		Kind:       strings.TrimSpace(event.Kind),
		ActorID:    strings.TrimSpace(event.ActorID),
		ActorRole:  strings.TrimSpace(event.ActorRole),
		TenantID:   strings.TrimSpace(event.TenantID),
		Metadata:   copyAnyMap(event.Metadata),
		OccurredAt: occurredAt,
	}
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	return err
}

// ListByTenant returns the most recent events for one tenant, newest first.
func (s *AuditStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]core.AuditEvent, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: audit store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", strings.TrimSpace(tenantID)),
		repository.OrderBy("occurred_at DESC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.AuditEvent, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

var _ core.AuditSink = (*AuditStore)(nil)
