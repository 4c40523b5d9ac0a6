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

// ExternalOperationStore persists the correlation and divergence rows the
// effect coordinator and the reconciler share.
type ExternalOperationStore struct {
	db   *bun.DB
	repo repository.Repository[*externalOperationRecord]
}

func NewExternalOperationStore(db *bun.DB) (*ExternalOperationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*externalOperationRecord](db, externalOperationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid external operation repository wiring: %w", err)
		}
	}
	return &ExternalOperationStore{db: db, repo: repo}, nil
}

// SaveTx writes the committed correlation row inside the caller's open
// transaction: the row and the local write commit or roll back together.
func (s *ExternalOperationStore) SaveTx(ctx context.Context, idb bun.IDB, op core.ExternalOperation) error {
	if s == nil {
		return fmt.Errorf("sqlstore: external operation store is not configured")
	}
	if idb == nil {
		return fmt.Errorf("sqlstore: transaction is required")
	}
	record, err := validOperationRecord(op)
	if err != nil {
		return err
	}
	_, err = idb.NewInsert().Model(record).Exec(ctx)
	return err
}

// RecordDivergence upserts the divergent row outside any caller transaction;
// the local transaction already rolled back by the time this runs.
func (s *ExternalOperationStore) RecordDivergence(ctx context.Context, op core.ExternalOperation) (core.ExternalOperation, error) {
	if s == nil || s.db == nil {
		return core.ExternalOperation{}, fmt.Errorf("sqlstore: external operation store is not configured")
	}
	op.Status = core.ExternalOperationDivergent
	record, err := validOperationRecord(op)
	if err != nil {
		return core.ExternalOperation{}, err
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, insertErr := tx.NewInsert().
			Model(record).
			On("CONFLICT (id) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("failure_detail = EXCLUDED.failure_detail").
			Set("compensation_detail = EXCLUDED.compensation_detail").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return insertErr
	})
	if err != nil {
		return core.ExternalOperation{}, err
	}
	return record.toDomain(), nil
}

func (s *ExternalOperationStore) ListDivergent(ctx context.Context, limit int) ([]core.ExternalOperation, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: external operation store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", string(core.ExternalOperationDivergent)),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.ExternalOperation, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *ExternalOperationStore) MarkReconciled(ctx context.Context, id string, detail string) error {
	return s.update(ctx, id, func(record *externalOperationRecord) {
		record.Status = string(core.ExternalOperationReconciled)
		record.Metadata = copyAnyMap(record.Metadata)
		if strings.TrimSpace(detail) != "" {
			record.Metadata["reconciled_detail"] = strings.TrimSpace(detail)
		}
	})
}

func (s *ExternalOperationStore) BumpAttempt(ctx context.Context, id string, cause error) error {
	return s.update(ctx, id, func(record *externalOperationRecord) {
		record.Attempts++
		record.Metadata = copyAnyMap(record.Metadata)
		if cause != nil {
			record.Metadata["last_error"] = cause.Error()
			record.Metadata["last_error_at"] = time.Now().UTC().Format(time.RFC3339Nano)
		}
	})
}

func (s *ExternalOperationStore) update(ctx context.Context, id string, mutate func(*externalOperationRecord)) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: external operation store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: operation id is required")
	}
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	mutate(record)
	record.UpdatedAt = time.Now().UTC()
	_, err = s.repo.Update(ctx, record, repository.UpdateByID(id))
	return err
}

func validOperationRecord(op core.ExternalOperation) (*externalOperationRecord, error) {
	if strings.TrimSpace(op.TenantID) == "" {
		return nil, fmt.Errorf("sqlstore: operation tenant id is required")
	}
	if strings.TrimSpace(op.Kind) == "" {
		return nil, fmt.Errorf("sqlstore: operation kind is required")
	}
	if strings.TrimSpace(op.ID) == "" {
		op.ID = uuid.NewString()
	}
	if strings.TrimSpace(string(op.Status)) == "" {
		op.Status = core.ExternalOperationCommitted
	}
	return newExternalOperationRecord(op, time.Now().UTC()), nil
}

var _ core.ExternalOperationStore = (*ExternalOperationStore)(nil)
