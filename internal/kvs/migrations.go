// ABOUTME: Embedded migration sets for the two kvs_info metadata tables
// ABOUTME: One set per storage area, each versioned independently

package kvs

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/2389/grimoire/internal/migrate"
	"github.com/2389/grimoire/internal/sqldb"
)

//go:embed migrations/kvs_persistent_0_to_1.sql
var persistentV1 string

//go:embed migrations/kvs_transient_0_to_1.sql
var transientV1 string

var persistentMigrations = &migrate.Set{
	ID:     "persistent 3f6d1a2e-9b47-4c11-8a02-5de07c6f41b9",
	Name:   "persistent_kvs",
	Area:   sqldb.Persistent,
	Target: 1,
	Steps: []migrate.Step{
		{From: 0, To: 1, SQL: persistentV1},
	},
}

var transientMigrations = &migrate.Set{
	ID:     "transient c81d4f0a-2d6b-4f83-9c55-1ab9e02d7e64",
	Name:   "transient_kvs",
	Area:   sqldb.Transient,
	Target: 1,
	Steps: []migrate.Step{
		{From: 0, To: 1, SQL: transientV1},
	},
}

// Migrate brings both kvs metadata tables to their target schema.
// Registry.Init runs this itself; tooling that only reads metadata can
// call it directly instead of a full (and destructive to abandoned
// transient namespaces) initialization pass.
func Migrate(ctx context.Context, db *sqldb.DB) error {
	for _, set := range []*migrate.Set{persistentMigrations, transientMigrations} {
		if err := set.Run(ctx, db); err != nil {
			return fmt.Errorf("migrating kvs metadata: %w", err)
		}
	}
	return nil
}
