package organizations

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type RetrieveOrganizationOptions struct {
	ID   *int
	Slug *string
}

type ListOrganizationsOptions struct {
	Limit  *int
	Offset *int
	// IDs restricts the result to these organizations. nil means no
	// restriction.
	IDs []int

	includeTotal bool
}

type UpdateOrganizationOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// Slugify derives the default slug for an organization name.
func Slugify(name string) string {
	return strcase.ToKebab(strings.TrimSpace(name))
}

func (svc *Service) CreateOrganization(ctx context.Context, org *models.Organization) error {
	now := time.Now()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = org.CreatedAt
	if org.Slug == "" {
		org.Slug = Slugify(org.Name)
	}

	_, err := svc.db.
		NewInsert().
		Model(org).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return slugConflict(err)
	}

	return nil
}

func (svc *Service) RetrieveOrganization(ctx context.Context, opts RetrieveOrganizationOptions) (*models.Organization, error) {
	org := &models.Organization{}

	q := svc.db.
		NewSelect().
		Model(org)

	if opts.ID != nil {
		q = q.Where("o.id = ?", *opts.ID)
	}
	if opts.Slug != nil {
		q = q.Where("o.slug = ?", *opts.Slug)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Organization")
		}
		return nil, errors.WithStack(err)
	}

	return org, nil
}

func (svc *Service) ListOrganizations(ctx context.Context, opts ListOrganizationsOptions) ([]*models.Organization, error) {
	o, _, err := svc.listOrganizationsWithTotal(ctx, opts)
	return o, errors.WithStack(err)
}

func (svc *Service) ListOrganizationsWithTotal(ctx context.Context, opts ListOrganizationsOptions) ([]*models.Organization, int, error) {
	opts.includeTotal = true
	return svc.listOrganizationsWithTotal(ctx, opts)
}

func (svc *Service) listOrganizationsWithTotal(ctx context.Context, opts ListOrganizationsOptions) ([]*models.Organization, int, error) {
	orgs := []*models.Organization{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&orgs).
		Order("o.name ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.IDs != nil {
		if len(opts.IDs) == 0 {
			return orgs, 0, nil
		}
		q = q.Where("o.id IN (?)", bun.In(opts.IDs))
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return orgs, total, nil
}

func (svc *Service) UpdateOrganization(ctx context.Context, org *models.Organization, opts UpdateOrganizationOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	org.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	res, err := svc.db.
		NewUpdate().
		Model(org).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return slugConflict(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errcodes.NotFound("Organization")
	}

	return nil
}

func slugConflict(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint") {
		return errcodes.Conflict("An organization with this slug already exists.")
	}
	return errors.WithStack(err)
}
