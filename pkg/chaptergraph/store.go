package chaptergraph

import (
	"context"
	"database/sql"
	"time"

	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Store gives the engine access to a course's chapters and edges. RunInTx runs
// fn against a transactional view of the store: either every write made
// through tx is committed or none is.
type Store interface {
	ChapterIDs(ctx context.Context, courseID int) ([]int, error)
	Edges(ctx context.Context, courseID int) ([]Edge, error)
	PredecessorIDs(ctx context.Context, courseID, chapterID int) ([]int, error)
	PredecessorsFor(ctx context.Context, courseID int, chapterIDs []int) (map[int][]int, error)
	ChapterInCourse(ctx context.Context, courseID, chapterID int) (bool, error)
	InsertChapter(ctx context.Context, chapter *models.Chapter) error
	EdgeExists(ctx context.Context, courseID int, edge Edge) (bool, error)
	InsertEdge(ctx context.Context, courseID int, edge Edge) error
	DeleteEdge(ctx context.Context, courseID int, edge Edge) (bool, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// BunStore is a Store backed by the chapters and chapter_edges tables.
type BunStore struct {
	db   *bun.DB
	idb  bun.IDB
	inTx bool
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db, idb: db}
}

func (s *BunStore) ChapterIDs(ctx context.Context, courseID int) ([]int, error) {
	ids := []int{}
	err := s.idb.NewSelect().
		Model((*models.Chapter)(nil)).
		Column("id").
		Where("course_id = ?", courseID).
		Order("id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ids, nil
}

func (s *BunStore) Edges(ctx context.Context, courseID int) ([]Edge, error) {
	var rows []*models.ChapterEdge
	err := s.idb.NewSelect().
		Model(&rows).
		Where("course_id = ?", courseID).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	edges := make([]Edge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, Edge{ChapterID: row.ChapterID, PredecessorID: row.PredecessorID})
	}
	return edges, nil
}

func (s *BunStore) PredecessorIDs(ctx context.Context, courseID, chapterID int) ([]int, error) {
	ids := []int{}
	err := s.idb.NewSelect().
		Model((*models.ChapterEdge)(nil)).
		Column("predecessor_id").
		Where("course_id = ?", courseID).
		Where("chapter_id = ?", chapterID).
		Order("predecessor_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ids, nil
}

func (s *BunStore) PredecessorsFor(ctx context.Context, courseID int, chapterIDs []int) (map[int][]int, error) {
	result := make(map[int][]int, len(chapterIDs))
	for _, id := range chapterIDs {
		result[id] = []int{}
	}
	if len(chapterIDs) == 0 {
		return result, nil
	}

	var rows []*models.ChapterEdge
	err := s.idb.NewSelect().
		Model(&rows).
		Where("course_id = ?", courseID).
		Where("chapter_id IN (?)", bun.In(chapterIDs)).
		Order("chapter_id ASC", "predecessor_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for _, row := range rows {
		result[row.ChapterID] = append(result[row.ChapterID], row.PredecessorID)
	}
	return result, nil
}

func (s *BunStore) ChapterInCourse(ctx context.Context, courseID, chapterID int) (bool, error) {
	exists, err := s.idb.NewSelect().
		Model((*models.Chapter)(nil)).
		Where("id = ?", chapterID).
		Where("course_id = ?", courseID).
		Exists(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return exists, nil
}

// InsertChapter inserts the chapter row and fills in its generated columns.
func (s *BunStore) InsertChapter(ctx context.Context, chapter *models.Chapter) error {
	_, err := s.idb.NewInsert().
		Model(chapter).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (s *BunStore) EdgeExists(ctx context.Context, courseID int, edge Edge) (bool, error) {
	exists, err := s.idb.NewSelect().
		Model((*models.ChapterEdge)(nil)).
		Where("course_id = ?", courseID).
		Where("chapter_id = ?", edge.ChapterID).
		Where("predecessor_id = ?", edge.PredecessorID).
		Exists(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return exists, nil
}

func (s *BunStore) InsertEdge(ctx context.Context, courseID int, edge Edge) error {
	row := &models.ChapterEdge{
		CourseID:      courseID,
		ChapterID:     edge.ChapterID,
		PredecessorID: edge.PredecessorID,
		CreatedAt:     time.Now(),
	}
	_, err := s.idb.NewInsert().Model(row).Exec(ctx)
	return errors.WithStack(err)
}

func (s *BunStore) DeleteEdge(ctx context.Context, courseID int, edge Edge) (bool, error) {
	res, err := s.idb.NewDelete().
		Model((*models.ChapterEdge)(nil)).
		Where("course_id = ?", courseID).
		Where("chapter_id = ?", edge.ChapterID).
		Where("predecessor_id = ?", edge.PredecessorID).
		Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return n > 0, nil
}

// RunInTx runs fn inside a database transaction. Nested calls reuse the
// outer transaction.
func (s *BunStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &BunStore{db: s.db, idb: tx, inTx: true})
	})
}
