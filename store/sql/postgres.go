package sqlstore

import (
	"database/sql"
	"fmt"

	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	_ "github.com/lib/pq"
)

// NewPostgresFactory opens a Postgres connection and builds the durable
// stores on it. The caller owns the returned factory's DB handle.
func NewPostgresFactory(dsn string, cfg core.Config) (*RepositoryFactory, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	factory, err := NewRepositoryFactoryFromDB(db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return factory, nil
}
