package chapters

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/learnmap/learnmap/pkg/chaptergraph"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const uuidPrefix = "chapter_"

type CreateChapterOptions struct {
	// PredecessorIDs are linked to the new chapter through the engine, so
	// each is validated like any other edge.
	PredecessorIDs []int
}

type RetrieveChapterOptions struct {
	ID   *int
	UUID *string
}

type ListChaptersOptions struct {
	CourseID int
}

type UpdateChapterOptions struct {
	Columns []string
}

type Service struct {
	db     *bun.DB
	engine *chaptergraph.Engine
}

func NewService(db *bun.DB, engine *chaptergraph.Engine) *Service {
	return &Service{db: db, engine: engine}
}

// CreateChapter inserts a chapter together with its requested predecessors.
// If any predecessor is rejected nothing is written and the rejection is
// returned.
func (svc *Service) CreateChapter(ctx context.Context, chapter *models.Chapter, opts CreateChapterOptions) error {
	now := time.Now()
	if chapter.CreatedAt.IsZero() {
		chapter.CreatedAt = now
	}
	chapter.UpdatedAt = chapter.CreatedAt
	if chapter.ChapterUUID == "" {
		chapter.ChapterUUID = uuidPrefix + uuid.New().String()
	}

	if err := svc.engine.CreateChapter(ctx, chapter, opts.PredecessorIDs); err != nil {
		return err
	}

	chapter.Predecessors = nonNil(slices.Sorted(slices.Values(opts.PredecessorIDs)))
	return nil
}

func (svc *Service) RetrieveChapter(ctx context.Context, opts RetrieveChapterOptions) (*models.Chapter, error) {
	chapter := &models.Chapter{}

	q := svc.db.
		NewSelect().
		Model(chapter)

	if opts.ID != nil {
		q = q.Where("ch.id = ?", *opts.ID)
	}
	if opts.UUID != nil {
		q = q.Where("ch.chapter_uuid = ?", *opts.UUID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Chapter")
		}
		return nil, errors.WithStack(err)
	}

	predecessors, err := svc.engine.PredecessorsOf(ctx, chapter.CourseID, chapter.ID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	chapter.Predecessors = nonNil(predecessors)

	return chapter, nil
}

// ListChapters returns every chapter of a course in creation order, each with
// its direct predecessors.
func (svc *Service) ListChapters(ctx context.Context, opts ListChaptersOptions) ([]*models.Chapter, error) {
	chapters := []*models.Chapter{}
	err := svc.db.
		NewSelect().
		Model(&chapters).
		Where("ch.course_id = ?", opts.CourseID).
		Order("ch.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ids := make([]int, 0, len(chapters))
	for _, ch := range chapters {
		ids = append(ids, ch.ID)
	}

	predecessors, err := svc.engine.PredecessorsFor(ctx, opts.CourseID, ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, ch := range chapters {
		ch.Predecessors = nonNil(predecessors[ch.ID])
	}

	return chapters, nil
}

func (svc *Service) UpdateChapter(ctx context.Context, chapter *models.Chapter, opts UpdateChapterOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	chapter.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	res, err := svc.db.
		NewUpdate().
		Model(chapter).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errcodes.NotFound("Chapter")
	}

	return nil
}

// DeleteChapter removes a chapter and every edge that touches it in one
// transaction. Removing edges can't introduce a cycle.
func (svc *Service) DeleteChapter(ctx context.Context, chapterID int) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.
			NewDelete().
			Model((*models.ChapterEdge)(nil)).
			WhereOr("chapter_id = ?", chapterID).
			WhereOr("predecessor_id = ?", chapterID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		res, err := tx.
			NewDelete().
			Model((*models.Chapter)(nil)).
			Where("id = ?", chapterID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return errcodes.NotFound("Chapter")
		}
		return nil
	})
}

// Graph returns the full chapter graph of a course.
func (svc *Service) Graph(ctx context.Context, courseID int) (*chaptergraph.Graph, error) {
	return svc.engine.BuildAdjacency(ctx, courseID)
}

// SetEdge adds or removes a dependency between two chapters of a course.
func (svc *Service) SetEdge(ctx context.Context, opts chaptergraph.SetEdgeOptions) error {
	return svc.engine.SetEdge(ctx, opts)
}

func nonNil(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
