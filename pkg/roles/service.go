package roles

import (
	"context"
	"database/sql"

	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Service exposes the seeded system roles.
type Service struct {
	db *bun.DB
}

// NewService creates a new roles service.
func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// ListRoles returns every role with its permissions, ordered by id.
func (s *Service) ListRoles(ctx context.Context) ([]*models.Role, error) {
	roles := []*models.Role{}
	err := s.db.NewSelect().
		Model(&roles).
		Relation("Permissions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("p.resource ASC", "p.operation ASC")
		}).
		Order("r.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return roles, nil
}

// RetrieveRole returns a role by id with its permissions.
func (s *Service) RetrieveRole(ctx context.Context, id int) (*models.Role, error) {
	role := &models.Role{}
	err := s.db.NewSelect().
		Model(role).
		Relation("Permissions", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("p.resource ASC", "p.operation ASC")
		}).
		Where("r.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Role")
		}
		return nil, errors.WithStack(err)
	}
	return role, nil
}
