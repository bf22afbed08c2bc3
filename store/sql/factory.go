package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory wires the durable stores off one bun handle. Build once,
// hand the stores to the processor options.
type RepositoryFactory struct {
	db  *bun.DB
	cfg core.Config

	idempotencyStore *IdempotencyStore
	dedupStore       *DedupStore
	sequenceStore    *SequenceStore
	auditStore       *AuditStore
}

func NewRepositoryFactory(cfg core.Config) *RepositoryFactory {
	return &RepositoryFactory{cfg: cfg}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, cfg core.Config) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(cfg)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, cfg core.Config) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(cfg)
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
	if f.idempotencyStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) IdempotencyStore() *IdempotencyStore {
	if f == nil {
		return nil
	}
	return f.idempotencyStore
}

func (f *RepositoryFactory) DedupStore() *DedupStore {
	if f == nil {
		return nil
	}
	return f.dedupStore
}

func (f *RepositoryFactory) SequenceStore() *SequenceStore {
	if f == nil {
		return nil
	}
	return f.sequenceStore
}

func (f *RepositoryFactory) AuditStore() *AuditStore {
	if f == nil {
		return nil
	}
	return f.auditStore
}

func (f *RepositoryFactory) initStores() error {
	idempotencyStore, err := NewIdempotencyStore(f.db, f.cfg.Idempotency)
	if err != nil {
		return err
	}
	f.idempotencyStore = idempotencyStore

	dedupStore, err := NewDedupStore(f.db, f.cfg.Dedup)
	if err != nil {
		return err
	}
	f.dedupStore = dedupStore

	sequenceStore, err := NewSequenceStore(f.db)
	if err != nil {
		return err
	}
	f.sequenceStore = sequenceStore

	auditStore, err := NewAuditStore(f.db)
	if err != nil {
		return err
	}
	f.auditStore = auditStore

	return nil
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
