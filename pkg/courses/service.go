package courses

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const uuidPrefix = "course_"

type RetrieveCourseOptions struct {
	ID   *int
	UUID *string
}

type ListCoursesOptions struct {
	Limit  *int
	Offset *int
	OrgID  *int

	// PublicOnly limits the result to public courses.
	PublicOnly bool
	// OrganizationIDs limits the result to courses of these organizations,
	// widened by IncludePublic and IncludeAuthorID. nil means all
	// organizations.
	OrganizationIDs []int
	IncludePublic   bool
	IncludeAuthorID *int

	includeTotal bool
}

type UpdateCourseOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateCourse(ctx context.Context, course *models.Course) error {
	now := time.Now()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = course.CreatedAt
	if course.CourseUUID == "" {
		course.CourseUUID = uuidPrefix + uuid.New().String()
	}

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.
			NewSelect().
			Model((*models.Organization)(nil)).
			Where("o.id = ?", course.OrgID).
			Exists(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if !exists {
			return errcodes.NotFound("Organization")
		}

		_, err = tx.
			NewInsert().
			Model(course).
			Returning("*").
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveCourse(ctx context.Context, opts RetrieveCourseOptions) (*models.Course, error) {
	course := &models.Course{}

	q := svc.db.
		NewSelect().
		Model(course)

	if opts.ID != nil {
		q = q.Where("c.id = ?", *opts.ID)
	}
	if opts.UUID != nil {
		q = q.Where("c.course_uuid = ?", *opts.UUID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Course")
		}
		return nil, errors.WithStack(err)
	}

	return course, nil
}

func (svc *Service) ListCourses(ctx context.Context, opts ListCoursesOptions) ([]*models.Course, error) {
	c, _, err := svc.listCoursesWithTotal(ctx, opts)
	return c, errors.WithStack(err)
}

func (svc *Service) ListCoursesWithTotal(ctx context.Context, opts ListCoursesOptions) ([]*models.Course, int, error) {
	opts.includeTotal = true
	return svc.listCoursesWithTotal(ctx, opts)
}

func (svc *Service) listCoursesWithTotal(ctx context.Context, opts ListCoursesOptions) ([]*models.Course, int, error) {
	courses := []*models.Course{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&courses).
		Order("c.name ASC", "c.id ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.OrgID != nil {
		q = q.Where("c.org_id = ?", *opts.OrgID)
	}
	if opts.PublicOnly {
		q = q.Where("c.public = ?", true)
	}
	if opts.OrganizationIDs != nil {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			if len(opts.OrganizationIDs) > 0 {
				q = q.WhereOr("c.org_id IN (?)", bun.In(opts.OrganizationIDs))
			} else {
				q = q.WhereOr("1 = 0")
			}
			if opts.IncludePublic {
				q = q.WhereOr("c.public = ?", true)
			}
			if opts.IncludeAuthorID != nil {
				q = q.WhereOr("c.author_id = ?", *opts.IncludeAuthorID)
			}
			return q
		})
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return courses, total, nil
}

func (svc *Service) UpdateCourse(ctx context.Context, course *models.Course, opts UpdateCourseOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	course.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	res, err := svc.db.
		NewUpdate().
		Model(course).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errcodes.NotFound("Course")
	}

	return nil
}

// DeleteCourse removes the course together with its chapters and their
// edges.
func (svc *Service) DeleteCourse(ctx context.Context, courseID int) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.
			NewDelete().
			Model((*models.ChapterEdge)(nil)).
			Where("course_id = ?", courseID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = tx.
			NewDelete().
			Model((*models.Chapter)(nil)).
			Where("course_id = ?", courseID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		res, err := tx.
			NewDelete().
			Model((*models.Course)(nil)).
			Where("id = ?", courseID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errcodes.NotFound("Course")
		}
		return nil
	})
}
