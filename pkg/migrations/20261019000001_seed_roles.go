package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		grants := []struct {
			role       string
			resources  []string
			operations []string
		}{
			{role: "admin", resources: []string{"courses", "organizations", "users"}, operations: []string{"read", "write"}},
			{role: "editor", resources: []string{"courses"}, operations: []string{"read", "write"}},
			{role: "viewer", resources: []string{"courses"}, operations: []string{"read"}},
		}

		for _, g := range grants {
			_, err := db.Exec(`INSERT INTO roles (name, is_system) VALUES (?, TRUE)`, g.role)
			if err != nil {
				return errors.WithStack(err)
			}

			var roleID int
			err = db.QueryRow(`SELECT id FROM roles WHERE name = ?`, g.role).Scan(&roleID)
			if err != nil {
				return errors.WithStack(err)
			}

			for _, resource := range g.resources {
				for _, operation := range g.operations {
					_, err = db.Exec(`INSERT INTO permissions (role_id, resource, operation) VALUES (?, ?, ?)`,
						roleID, resource, operation)
					if err != nil {
						return errors.WithStack(err)
					}
				}
			}
		}

		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`DELETE FROM permissions WHERE role_id IN (SELECT id FROM roles WHERE is_system = TRUE)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`DELETE FROM roles WHERE is_system = TRUE`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
