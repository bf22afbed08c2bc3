// Package migrations exposes the embedded ingest schema to migration runners.
// The schema is fixed: four tables, one migration each, in postgres and
// sqlite flavors.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	webhookingest "github.com/goliatone/go-webhook-ingest"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceLabel identifies this module's migrations to a shared runner.
	SourceLabel = "webhook-ingest"

	migrationsPath = "data/sql/migrations"
)

// schemaMigrations lists every migration stem the embedded tree must carry,
// in apply order. Both dialect trees ship the full set.
var schemaMigrations = []string{
	"20260301000001_create_webhook_idempotency_keys",
	"20260301000002_create_webhook_dedup_records",
	"20260301000003_create_webhook_entity_sequences",
	"20260301000004_create_webhook_audit_records",
}

// FilesystemSpec is one dialect's migration tree, rooted so every *.up.sql
// sits at the top level.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc hands one dialect's filesystem to the caller's migration
// runner.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

// Filesystems resolves the embedded migration trees and verifies each dialect
// carries every schema migration with non-empty SQL.
func Filesystems() ([]FilesystemSpec, error) {
	root := webhookingest.GetMigrationsFS()

	postgresFS, err := fs.Sub(root, migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve postgres filesystem: %w", err)
	}
	sqliteFS, err := fs.Sub(root, migrationsPath+"/sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: migrationsPath, FS: postgresFS},
		{Dialect: DialectSQLite, Path: migrationsPath + "/sqlite", FS: sqliteFS},
	}

	for _, spec := range filesystems {
		for _, stem := range schemaMigrations {
			name := stem + ".up.sql"
			content, readErr := fs.ReadFile(spec.FS, name)
			if readErr != nil {
				return nil, fmt.Errorf("migrations: %s missing %s: %w", spec.Dialect, name, readErr)
			}
			if strings.TrimSpace(string(content)) == "" {
				return nil, fmt.Errorf("migrations: %s migration %s is empty", spec.Dialect, name)
			}
		}
	}

	return filesystems, nil
}

// Register hands the requested dialects to registerFn. With no dialects it
// registers both; an unknown dialect is an error.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) ([]FilesystemSpec, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	wanted, err := normalizeDialects(dialects)
	if err != nil {
		return nil, err
	}

	filesystems, err := Filesystems()
	if err != nil {
		return nil, err
	}

	registered := make([]FilesystemSpec, 0, len(wanted))
	for _, spec := range filesystems {
		if _, ok := wanted[spec.Dialect]; !ok {
			continue
		}
		if err := registerFn(ctx, spec.Dialect, SourceLabel, spec.FS); err != nil {
			return nil, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
		registered = append(registered, spec)
	}

	return registered, nil
}

func normalizeDialects(dialects []string) (map[string]struct{}, error) {
	if len(dialects) == 0 {
		return map[string]struct{}{
			DialectPostgres: {},
			DialectSQLite:   {},
		}, nil
	}
	wanted := make(map[string]struct{}, len(dialects))
	for _, dialect := range dialects {
		normalized := strings.TrimSpace(strings.ToLower(dialect))
		switch normalized {
		case DialectPostgres, DialectSQLite:
			wanted[normalized] = struct{}{}
		default:
			return nil, fmt.Errorf("migrations: unknown dialect %q", dialect)
		}
	}
	return wanted, nil
}
