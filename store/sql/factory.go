package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-tenant/core"
)

// RepositoryFactory builds the control-plane stores over one bun handle and
// satisfies core.TenantStoreProvider for service wiring.
type RepositoryFactory struct {
	db *bun.DB

	tenantStore            *TenantStore
	externalOperationStore *ExternalOperationStore
	auditStore             *AuditStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.tenantStore != nil && f.externalOperationStore != nil && f.auditStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) initStores() error {
	tenantStore, err := NewTenantStore(f.db)
	if err != nil {
		return err
	}
	f.tenantStore = tenantStore

	externalOperationStore, err := NewExternalOperationStore(f.db)
	if err != nil {
		return err
	}
	f.externalOperationStore = externalOperationStore

	auditStore, err := NewAuditStore(f.db)
	if err != nil {
		return err
	}
	f.auditStore = auditStore
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) TenantStore() core.TenantStore {
	if f == nil || f.tenantStore == nil {
		return nil
	}
	return f.tenantStore
}

func (f *RepositoryFactory) ExternalOperationStore() core.ExternalOperationStore {
	if f == nil || f.externalOperationStore == nil {
		return nil
	}
	return f.externalOperationStore
}

func (f *RepositoryFactory) AuditSink() core.AuditSink {
	if f == nil || f.auditStore == nil {
		return nil
	}
	return f.auditStore
}

func (f *RepositoryFactory) AuditStore() *AuditStore {
	if f == nil {
		return nil
	}
	return f.auditStore
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var _ core.TenantStoreProvider = (*RepositoryFactory)(nil)
