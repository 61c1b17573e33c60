package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations holds every schema migration. Each migration file registers
// itself from init.
var Migrations = migrate.NewMigrations()

// NewMigrator returns a migrator over Migrations.
func NewMigrator(db *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, Migrations)
}

// BringUpToDate creates the bookkeeping tables if needed and applies every
// pending migration as one group.
func BringUpToDate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := NewMigrator(db)
	if err := migrator.Init(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return group, nil
}

// RollbackAll rolls back applied groups newest first until none remain and
// returns them in rollback order.
func RollbackAll(ctx context.Context, db *bun.DB) ([]*migrate.MigrationGroup, error) {
	migrator := NewMigrator(db)
	var groups []*migrate.MigrationGroup
	for {
		group, err := migrator.Rollback(ctx)
		if err != nil {
			return groups, errors.WithStack(err)
		}
		if group.IsZero() {
			return groups, nil
		}
		groups = append(groups, group)
	}
}
