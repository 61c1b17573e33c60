package chaptergraph

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
)

// ErrStaleSnapshot is returned when a MemoryStore transaction tries to commit
// writes on top of a snapshot that another transaction has since changed.
var ErrStaleSnapshot error = staleSnapshotError{}

type staleSnapshotError struct{}

func (staleSnapshotError) Error() string   { return "transaction snapshot is stale" }
func (staleSnapshotError) Temporary() bool { return true }

// MemoryStore is an in-memory Store. Transactions work on a private snapshot
// and commit only if no other transaction committed in the meantime, which
// mirrors a serializable database.
type MemoryStore struct {
	mu      sync.Mutex
	version int
	state   *memState

	// BeforeCommit, when set, runs right before a transaction commits. A
	// returned error aborts the commit.
	BeforeCommit func() error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// AddChapter registers a chapter node in a course.
func (s *MemoryStore) AddChapter(courseID, chapterID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.chapters[chapterID] = courseID
	s.version++
}

// RemoveChapter drops a chapter node and every edge that touches it.
func (s *MemoryStore) RemoveChapter(chapterID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	courseID, ok := s.state.chapters[chapterID]
	if !ok {
		return
	}
	delete(s.state.chapters, chapterID)
	for e := range s.state.edges[courseID] {
		if e.ChapterID == chapterID || e.PredecessorID == chapterID {
			delete(s.state.edges[courseID], e)
		}
	}
	s.version++
}

// EdgeCount returns the number of committed edges in a course.
func (s *MemoryStore) EdgeCount(courseID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.edges[courseID])
}

func (s *MemoryStore) ChapterIDs(_ context.Context, courseID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.chapterIDs(courseID), nil
}

func (s *MemoryStore) Edges(_ context.Context, courseID int) ([]Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.courseEdges(courseID), nil
}

func (s *MemoryStore) PredecessorIDs(_ context.Context, courseID, chapterID int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.predecessorIDs(courseID, chapterID), nil
}

func (s *MemoryStore) PredecessorsFor(_ context.Context, courseID int, chapterIDs []int) (map[int][]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[int][]int, len(chapterIDs))
	for _, id := range chapterIDs {
		result[id] = s.state.predecessorIDs(courseID, id)
	}
	return result, nil
}

func (s *MemoryStore) ChapterInCourse(_ context.Context, courseID, chapterID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.chapterInCourse(courseID, chapterID), nil
}

func (s *MemoryStore) EdgeExists(_ context.Context, courseID int, edge Edge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.edges[courseID][edge], nil
}

func (s *MemoryStore) InsertChapter(ctx context.Context, chapter *models.Chapter) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.InsertChapter(ctx, chapter)
	})
}

func (s *MemoryStore) InsertEdge(ctx context.Context, courseID int, edge Edge) error {
	return s.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.InsertEdge(ctx, courseID, edge)
	})
}

func (s *MemoryStore) DeleteEdge(ctx context.Context, courseID int, edge Edge) (bool, error) {
	var deleted bool
	err := s.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		deleted, err = tx.DeleteEdge(ctx, courseID, edge)
		return err
	})
	return deleted, err
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.mu.Lock()
	tx := &memTx{version: s.version, state: s.state.clone()}
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if !tx.dirty {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.BeforeCommit != nil {
		if err := s.BeforeCommit(); err != nil {
			return errors.WithStack(err)
		}
	}
	if s.version != tx.version {
		return errors.WithStack(ErrStaleSnapshot)
	}
	s.state = tx.state
	s.version++
	return nil
}

// memTx is a transactional view of a MemoryStore.
type memTx struct {
	version int
	state   *memState
	dirty   bool
}

func (tx *memTx) ChapterIDs(_ context.Context, courseID int) ([]int, error) {
	return tx.state.chapterIDs(courseID), nil
}

func (tx *memTx) Edges(_ context.Context, courseID int) ([]Edge, error) {
	return tx.state.courseEdges(courseID), nil
}

func (tx *memTx) PredecessorIDs(_ context.Context, courseID, chapterID int) ([]int, error) {
	return tx.state.predecessorIDs(courseID, chapterID), nil
}

func (tx *memTx) PredecessorsFor(_ context.Context, courseID int, chapterIDs []int) (map[int][]int, error) {
	result := make(map[int][]int, len(chapterIDs))
	for _, id := range chapterIDs {
		result[id] = tx.state.predecessorIDs(courseID, id)
	}
	return result, nil
}

func (tx *memTx) ChapterInCourse(_ context.Context, courseID, chapterID int) (bool, error) {
	return tx.state.chapterInCourse(courseID, chapterID), nil
}

func (tx *memTx) EdgeExists(_ context.Context, courseID int, edge Edge) (bool, error) {
	return tx.state.edges[courseID][edge], nil
}

// InsertChapter registers the chapter in its course. A zero ID is replaced
// with the next free one.
func (tx *memTx) InsertChapter(_ context.Context, chapter *models.Chapter) error {
	if chapter.ID == 0 {
		chapter.ID = 1
		for id := range tx.state.chapters {
			chapter.ID = max(chapter.ID, id+1)
		}
	}
	if _, ok := tx.state.chapters[chapter.ID]; ok {
		return errors.Errorf("UNIQUE constraint failed: chapters.id (%d)", chapter.ID)
	}
	tx.state.chapters[chapter.ID] = chapter.CourseID
	tx.dirty = true
	return nil
}

func (tx *memTx) InsertEdge(_ context.Context, courseID int, edge Edge) error {
	if tx.state.edges[courseID][edge] {
		return errors.Errorf("UNIQUE constraint failed: chapter_edges (%d, %d, %d)", courseID, edge.ChapterID, edge.PredecessorID)
	}
	if !tx.state.chapterInCourse(courseID, edge.ChapterID) || !tx.state.chapterInCourse(courseID, edge.PredecessorID) {
		return errors.New("FOREIGN KEY constraint failed")
	}
	if tx.state.edges[courseID] == nil {
		tx.state.edges[courseID] = map[Edge]bool{}
	}
	tx.state.edges[courseID][edge] = true
	tx.dirty = true
	return nil
}

func (tx *memTx) DeleteEdge(_ context.Context, courseID int, edge Edge) (bool, error) {
	if !tx.state.edges[courseID][edge] {
		return false, nil
	}
	delete(tx.state.edges[courseID], edge)
	tx.dirty = true
	return true, nil
}

func (tx *memTx) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, tx)
}

type memState struct {
	chapters map[int]int           // chapter ID -> course ID
	edges    map[int]map[Edge]bool // course ID -> edge set
}

func newMemState() *memState {
	return &memState{
		chapters: map[int]int{},
		edges:    map[int]map[Edge]bool{},
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		chapters: maps.Clone(st.chapters),
		edges:    make(map[int]map[Edge]bool, len(st.edges)),
	}
	for courseID, set := range st.edges {
		c.edges[courseID] = maps.Clone(set)
	}
	return c
}

func (st *memState) chapterInCourse(courseID, chapterID int) bool {
	c, ok := st.chapters[chapterID]
	return ok && c == courseID
}

func (st *memState) chapterIDs(courseID int) []int {
	ids := []int{}
	for chapterID, c := range st.chapters {
		if c == courseID {
			ids = append(ids, chapterID)
		}
	}
	slices.Sort(ids)
	return ids
}

func (st *memState) courseEdges(courseID int) []Edge {
	edges := make([]Edge, 0, len(st.edges[courseID]))
	for e := range st.edges[courseID] {
		edges = append(edges, e)
	}
	slices.SortFunc(edges, func(a, b Edge) int {
		if a.ChapterID != b.ChapterID {
			return a.ChapterID - b.ChapterID
		}
		return a.PredecessorID - b.PredecessorID
	})
	return edges
}

func (st *memState) predecessorIDs(courseID, chapterID int) []int {
	ids := []int{}
	for e := range st.edges[courseID] {
		if e.ChapterID == chapterID {
			ids = append(ids, e.PredecessorID)
		}
	}
	slices.Sort(ids)
	return ids
}
