package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		statements := []string{
			`
			CREATE TABLE organizations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				slug TEXT NOT NULL
			)
			`,
			`CREATE UNIQUE INDEX ux_organizations_slug ON organizations(slug)`,
			`
			CREATE TABLE roles (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT NOT NULL,
				is_system BOOLEAN NOT NULL DEFAULT FALSE
			)
			`,
			`CREATE UNIQUE INDEX ux_roles_name ON roles(name COLLATE NOCASE)`,
			`
			CREATE TABLE permissions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
				resource TEXT NOT NULL,
				operation TEXT NOT NULL
			)
			`,
			`CREATE UNIQUE INDEX ux_permissions_role_resource_operation ON permissions(role_id, resource, operation)`,
			`
			CREATE TABLE users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				username TEXT NOT NULL,
				email TEXT,
				password_hash TEXT NOT NULL,
				role_id INTEGER NOT NULL REFERENCES roles(id),
				is_active BOOLEAN NOT NULL DEFAULT TRUE
			)
			`,
			`CREATE UNIQUE INDEX ux_users_username ON users(username COLLATE NOCASE)`,
			`
			CREATE TABLE user_organization_access (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				org_id INTEGER REFERENCES organizations(id) ON DELETE CASCADE
			)
			`,
			`CREATE INDEX ix_user_organization_access_user_id ON user_organization_access(user_id)`,
			`
			CREATE TABLE courses (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				course_uuid TEXT NOT NULL,
				org_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
				author_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
				name TEXT NOT NULL,
				description TEXT,
				public BOOLEAN NOT NULL DEFAULT FALSE
			)
			`,
			`CREATE UNIQUE INDEX ux_courses_course_uuid ON courses(course_uuid)`,
			`CREATE INDEX ix_courses_org_id ON courses(org_id)`,
			`
			CREATE TABLE chapters (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				chapter_uuid TEXT NOT NULL,
				org_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
				course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
				name TEXT NOT NULL,
				description TEXT,
				thumbnail_image TEXT
			)
			`,
			`CREATE UNIQUE INDEX ux_chapters_chapter_uuid ON chapters(chapter_uuid)`,
			`CREATE INDEX ix_chapters_course_id ON chapters(course_id)`,
		}

		for _, stmt := range statements {
			if _, err := db.Exec(stmt); err != nil {
				return errors.WithStack(err)
			}
		}

		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		tables := []string{
			"chapters",
			"courses",
			"user_organization_access",
			"users",
			"permissions",
			"roles",
			"organizations",
		}
		for _, table := range tables {
			if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
