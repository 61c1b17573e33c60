package chaptergraph

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCourseID  = 1
	otherCourseID = 2

	chapterA = 1
	chapterB = 2
	chapterC = 3
	chapterD = 4

	otherChapter = 10
)

func newTestEngine(t *testing.T, chapterIDs ...int) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	for _, id := range chapterIDs {
		store.AddChapter(testCourseID, id)
	}
	store.AddChapter(otherCourseID, otherChapter)
	return NewEngine(store, EngineOptions{MaxRetries: 3}), store
}

func mustAddEdge(t *testing.T, e *Engine, from, to int) {
	t.Helper()
	err := e.SetEdge(context.Background(), SetEdgeOptions{CourseID: testCourseID, FromChapterID: from, ToChapterID: to})
	require.NoError(t, err)
}

type temporaryError struct{}

func (temporaryError) Error() string   { return "temporary failure" }
func (temporaryError) Temporary() bool { return true }

func TestEngine_BuildAdjacency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("isolated chapter is included with no predecessors", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA, chapterB)
		mustAddEdge(t, e, chapterA, chapterB)
		store.AddChapter(testCourseID, chapterC)

		g, err := e.BuildAdjacency(ctx, testCourseID)
		require.NoError(t, err)
		assert.Equal(t, map[int][]int{
			chapterA: {},
			chapterB: {chapterA},
			chapterC: {},
		}, g.Adjacency())

		preds, err := e.PredecessorsOf(ctx, testCourseID, chapterC)
		require.NoError(t, err)
		assert.Equal(t, []int{}, preds)
	})

	t.Run("only loads the given course", func(t *testing.T) {
		t.Parallel()
		e, _ := newTestEngine(t, chapterA)

		g, err := e.BuildAdjacency(ctx, testCourseID)
		require.NoError(t, err)
		assert.Equal(t, []int{chapterA}, g.Nodes())
		assert.False(t, g.Has(otherChapter))
	})

	t.Run("every call returns an independent snapshot", func(t *testing.T) {
		t.Parallel()
		e, _ := newTestEngine(t, chapterA, chapterB)

		first, err := e.BuildAdjacency(ctx, testCourseID)
		require.NoError(t, err)
		mustAddEdge(t, e, chapterA, chapterB)
		second, err := e.BuildAdjacency(ctx, testCourseID)
		require.NoError(t, err)

		assert.Equal(t, []int{}, first.Predecessors(chapterB))
		assert.Equal(t, []int{chapterA}, second.Predecessors(chapterB))
	})
}

func TestEngine_WouldCreateCycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e, store := newTestEngine(t, chapterA, chapterB, chapterC)
	mustAddEdge(t, e, chapterA, chapterB)
	mustAddEdge(t, e, chapterB, chapterC)

	cyclic, err := e.WouldCreateCycle(ctx, testCourseID, Edge{ChapterID: chapterA, PredecessorID: chapterC})
	require.NoError(t, err)
	assert.True(t, cyclic)

	cyclic, err = e.WouldCreateCycle(ctx, testCourseID, Edge{ChapterID: chapterC, PredecessorID: chapterA})
	require.NoError(t, err)
	assert.False(t, cyclic)

	cyclic, err = e.WouldCreateCycle(ctx, testCourseID, Edge{ChapterID: chapterB, PredecessorID: chapterB})
	require.NoError(t, err)
	assert.True(t, cyclic)

	assert.Equal(t, 2, store.EdgeCount(testCourseID), "checking must not persist anything")
}

func TestEngine_SetEdge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rejects an edge closing a three cycle", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA, chapterB, chapterC)
		mustAddEdge(t, e, chapterA, chapterB)
		mustAddEdge(t, e, chapterB, chapterC)

		err := e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterC, ToChapterID: chapterA})
		require.Error(t, err)
		assert.True(t, errcodes.HasCode(err, errcodes.CodeCyclicStructure))
		assert.Contains(t, err.Error(), "chapter 3 can't precede chapter 1")

		assert.Equal(t, 2, store.EdgeCount(testCourseID))
		preds, err := e.PredecessorsOf(ctx, testCourseID, chapterA)
		require.NoError(t, err)
		assert.Equal(t, []int{}, preds)
	})

	t.Run("rejects a self loop", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA)

		err := e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterA, ToChapterID: chapterA})
		assert.True(t, errcodes.HasCode(err, errcodes.CodeCyclicStructure))
		assert.Equal(t, 0, store.EdgeCount(testCourseID))
	})

	t.Run("duplicate add is a conflict", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA, chapterB)
		mustAddEdge(t, e, chapterA, chapterB)

		err := e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterA, ToChapterID: chapterB})
		assert.True(t, errcodes.HasCode(err, errcodes.CodeConflict))
		assert.Equal(t, 1, store.EdgeCount(testCourseID))
	})

	t.Run("delete then re-add restores the graph", func(t *testing.T) {
		t.Parallel()
		e, _ := newTestEngine(t, chapterA, chapterB, chapterC)
		mustAddEdge(t, e, chapterA, chapterB)
		mustAddEdge(t, e, chapterA, chapterC)

		before, err := e.BuildAdjacency(ctx, testCourseID)
		require.NoError(t, err)

		err = e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterA, ToChapterID: chapterB, Delete: true})
		require.NoError(t, err)
		preds, err := e.PredecessorsOf(ctx, testCourseID, chapterB)
		require.NoError(t, err)
		assert.Equal(t, []int{}, preds)

		mustAddEdge(t, e, chapterA, chapterB)
		after, err := e.BuildAdjacency(ctx, testCourseID)
		require.NoError(t, err)
		assert.Equal(t, before.Adjacency(), after.Adjacency())
	})

	t.Run("deleting a missing edge is not found", func(t *testing.T) {
		t.Parallel()
		e, _ := newTestEngine(t, chapterA, chapterB)

		err := e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterA, ToChapterID: chapterB, Delete: true})
		require.Error(t, err)
		assert.True(t, errcodes.HasCode(err, errcodes.CodeNotFound))
		assert.Equal(t, "Edge not found.", err.Error())
	})

	t.Run("unknown chapter is not found", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA)

		err := e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterA, ToChapterID: 99})
		require.Error(t, err)
		assert.Equal(t, "Chapter not found.", err.Error())
		assert.Equal(t, 0, store.EdgeCount(testCourseID))
	})

	t.Run("chapter from another course is not found", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA)

		err := e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: otherChapter, ToChapterID: chapterA})
		require.Error(t, err)
		assert.True(t, errcodes.HasCode(err, errcodes.CodeNotFound))
		assert.Equal(t, 0, store.EdgeCount(testCourseID))
		assert.Equal(t, 0, store.EdgeCount(otherCourseID))
	})

	t.Run("edges are removed with their chapter", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA, chapterB, chapterC)
		mustAddEdge(t, e, chapterA, chapterB)
		mustAddEdge(t, e, chapterB, chapterC)

		store.RemoveChapter(chapterB)

		g, err := e.BuildAdjacency(ctx, testCourseID)
		require.NoError(t, err)
		assert.Equal(t, map[int][]int{chapterA: {}, chapterC: {}}, g.Adjacency())
	})
}

func TestEngine_SetEdge_Diamond(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	diamond := []SetEdgeOptions{
		{FromChapterID: chapterA, ToChapterID: chapterB},
		{FromChapterID: chapterA, ToChapterID: chapterC},
		{FromChapterID: chapterB, ToChapterID: chapterD},
		{FromChapterID: chapterC, ToChapterID: chapterD},
	}
	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{2, 0, 3, 1},
		{1, 3, 0, 2},
	}

	for _, order := range orders {
		e, _ := newTestEngine(t, chapterA, chapterB, chapterC, chapterD)
		for _, i := range order {
			opts := diamond[i]
			opts.CourseID = testCourseID
			require.NoError(t, e.SetEdge(ctx, opts), "order %v", order)
		}

		g, err := e.BuildAdjacency(ctx, testCourseID)
		require.NoError(t, err)
		assert.Equal(t, map[int][]int{
			chapterA: {},
			chapterB: {chapterA},
			chapterC: {chapterA},
			chapterD: {chapterB, chapterC},
		}, g.Adjacency())
		assert.Equal(t, []int{chapterA}, g.InitialChapters())
	}
}

func TestEngine_SetEdge_StaysAcyclic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const chapters = 12
	ids := make([]int, chapters)
	for i := range ids {
		ids[i] = i + 1
	}
	e, _ := newTestEngine(t, ids...)
	rng := rand.New(rand.NewSource(7))

	accepted := 0
	for range 300 {
		opts := SetEdgeOptions{
			CourseID:      testCourseID,
			FromChapterID: ids[rng.Intn(chapters)],
			ToChapterID:   ids[rng.Intn(chapters)],
			Delete:        rng.Intn(5) == 0,
		}
		err := e.SetEdge(ctx, opts)
		if err != nil {
			var ec *errcodes.Error
			require.True(t, errors.As(err, &ec), "unexpected error: %v", err)
			continue
		}
		if !opts.Delete {
			accepted++
		}

		g, err := e.BuildAdjacency(ctx, testCourseID)
		require.NoError(t, err)
		require.False(t, g.HasCycle())
	}
	assert.Positive(t, accepted)
}

func TestEngine_SetEdge_Retries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("transient commit failure is retried", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA, chapterB)
		failures := 2
		store.BeforeCommit = func() error {
			if failures > 0 {
				failures--
				return temporaryError{}
			}
			return nil
		}

		mustAddEdge(t, e, chapterA, chapterB)
		assert.Equal(t, 0, failures)
		assert.Equal(t, 1, store.EdgeCount(testCourseID))
	})

	t.Run("retries are bounded", func(t *testing.T) {
		t.Parallel()
		store := NewMemoryStore()
		store.AddChapter(testCourseID, chapterA)
		store.AddChapter(testCourseID, chapterB)
		e := NewEngine(store, EngineOptions{MaxRetries: 1})
		attempts := 0
		store.BeforeCommit = func() error {
			attempts++
			return temporaryError{}
		}

		err := e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterA, ToChapterID: chapterB})
		require.Error(t, err)
		assert.ErrorIs(t, err, temporaryError{})
		assert.Equal(t, 2, attempts)
		assert.Equal(t, 0, store.EdgeCount(testCourseID))
	})

	t.Run("failed commit rolls back", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA, chapterB)
		store.BeforeCommit = func() error {
			return errors.New("disk full")
		}

		err := e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterA, ToChapterID: chapterB})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.Equal(t, 0, store.EdgeCount(testCourseID))
	})

	t.Run("domain errors are not retried", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA, chapterB)
		mustAddEdge(t, e, chapterA, chapterB)
		commits := 0
		store.BeforeCommit = func() error {
			commits++
			return nil
		}

		err := e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterB, ToChapterID: chapterA})
		assert.True(t, errcodes.HasCode(err, errcodes.CodeCyclicStructure))
		assert.Equal(t, 0, commits)
	})
}

// interleavingStore runs hook inside the first transaction that writes, after
// its checks passed and before its write.
type interleavingStore struct {
	*MemoryStore
	mu       sync.Mutex
	hook     func()
	attempts int
}

func (s *interleavingStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.MemoryStore.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		return fn(ctx, &interleavingTx{Store: tx, s: s})
	})
}

type interleavingTx struct {
	Store
	s *interleavingStore
}

func (tx *interleavingTx) InsertEdge(ctx context.Context, courseID int, edge Edge) error {
	tx.s.mu.Lock()
	tx.s.attempts++
	hook := tx.s.hook
	tx.s.hook = nil
	tx.s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return tx.Store.InsertEdge(ctx, courseID, edge)
}

func TestEngine_SetEdge_StaleSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Two engines over one store stand in for two server processes, so the
	// in-process course lock does not serialize them.
	shared := NewMemoryStore()
	shared.AddChapter(testCourseID, chapterA)
	shared.AddChapter(testCourseID, chapterB)
	other := NewEngine(shared, EngineOptions{MaxRetries: 3})

	var otherErr error
	racing := &interleavingStore{MemoryStore: shared}
	racing.hook = func() {
		otherErr = other.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterB, ToChapterID: chapterA})
	}
	e := NewEngine(racing, EngineOptions{MaxRetries: 3})

	// Both edges pass the check against the empty graph; together they form a
	// cycle.
	err := e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterA, ToChapterID: chapterB})
	require.NoError(t, otherErr)
	require.Error(t, err)
	assert.True(t, errcodes.HasCode(err, errcodes.CodeCyclicStructure))
	assert.Equal(t, 1, racing.attempts, "the retry must fail the cycle check before writing")

	g, err := other.BuildAdjacency(ctx, testCourseID)
	require.NoError(t, err)
	assert.False(t, g.HasCycle())
	assert.Equal(t, map[int][]int{chapterA: {chapterB}, chapterB: {}}, g.Adjacency())
}

func TestEngine_SetEdge_ConcurrentRace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for range 20 {
		e, store := newTestEngine(t, chapterA, chapterB, chapterC)
		edges := []SetEdgeOptions{
			{CourseID: testCourseID, FromChapterID: chapterA, ToChapterID: chapterB},
			{CourseID: testCourseID, FromChapterID: chapterB, ToChapterID: chapterC},
			{CourseID: testCourseID, FromChapterID: chapterC, ToChapterID: chapterA},
		}

		errs := make([]error, len(edges))
		var wg sync.WaitGroup
		for i, opts := range edges {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = e.SetEdge(ctx, opts)
			}()
		}
		wg.Wait()

		failed := 0
		for _, err := range errs {
			if err != nil {
				failed++
				assert.True(t, errcodes.HasCode(err, errcodes.CodeCyclicStructure), "unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, failed)
		assert.Equal(t, 2, store.EdgeCount(testCourseID))

		g, err := e.BuildAdjacency(ctx, testCourseID)
		require.NoError(t, err)
		assert.False(t, g.HasCycle())
	}
}

func TestEngine_SetEdge_ContextCanceledWhileWaiting(t *testing.T) {
	t.Parallel()

	e, store := newTestEngine(t, chapterA, chapterB)
	release, err := e.locks.acquire(context.Background(), testCourseID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = e.SetEdge(ctx, SetEdgeOptions{CourseID: testCourseID, FromChapterID: chapterA, ToChapterID: chapterB})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, store.EdgeCount(testCourseID))

	rr := httptest.NewRecorder()
	errcodes.NewHandler().Handle(err, echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rr))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"timeout"`)

	release()
	assert.Equal(t, 0, e.locks.held())

	mustAddEdge(t, e, chapterA, chapterB)
}

func TestEngine_PredecessorsFor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e, _ := newTestEngine(t, chapterA, chapterB, chapterC, chapterD)
	mustAddEdge(t, e, chapterA, chapterD)
	mustAddEdge(t, e, chapterB, chapterD)
	mustAddEdge(t, e, chapterA, chapterC)

	preds, err := e.PredecessorsFor(ctx, testCourseID, []int{chapterA, chapterC, chapterD})
	require.NoError(t, err)
	assert.Equal(t, map[int][]int{
		chapterA: {},
		chapterC: {chapterA},
		chapterD: {chapterA, chapterB},
	}, preds)
}

func TestEngine_CreateChapter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("inserts the chapter with its predecessors", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA, chapterB)

		chapter := &models.Chapter{CourseID: testCourseID}
		require.NoError(t, e.CreateChapter(ctx, chapter, []int{chapterB, chapterA}))
		assert.Equal(t, otherChapter+1, chapter.ID)

		preds, err := e.PredecessorsOf(ctx, testCourseID, chapter.ID)
		require.NoError(t, err)
		assert.Equal(t, []int{chapterA, chapterB}, preds)
		assert.Equal(t, 2, store.EdgeCount(testCourseID))
	})

	t.Run("without predecessors the chapter is initial", func(t *testing.T) {
		t.Parallel()
		e, _ := newTestEngine(t, chapterA)

		chapter := &models.Chapter{CourseID: testCourseID}
		require.NoError(t, e.CreateChapter(ctx, chapter, nil))

		g, err := e.BuildAdjacency(ctx, testCourseID)
		require.NoError(t, err)
		assert.Equal(t, []int{chapterA, chapter.ID}, g.InitialChapters())
	})

	t.Run("a rejected predecessor writes nothing", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA)

		for _, preds := range [][]int{{chapterA, 99}, {chapterA, otherChapter}, {chapterA, chapterA}} {
			chapter := &models.Chapter{CourseID: testCourseID}
			err := e.CreateChapter(ctx, chapter, preds)
			require.Error(t, err)
			assert.Zero(t, chapter.ID)

			ids, err := store.ChapterIDs(ctx, testCourseID)
			require.NoError(t, err)
			assert.Equal(t, []int{chapterA}, ids)
			assert.Equal(t, 0, store.EdgeCount(testCourseID))
		}
	})

	t.Run("transient commit failure is retried", func(t *testing.T) {
		t.Parallel()
		e, store := newTestEngine(t, chapterA)

		failures := 1
		store.BeforeCommit = func() error {
			if failures > 0 {
				failures--
				return temporaryError{}
			}
			return nil
		}

		chapter := &models.Chapter{CourseID: testCourseID}
		require.NoError(t, e.CreateChapter(ctx, chapter, []int{chapterA}))
		assert.Equal(t, 1, store.EdgeCount(testCourseID))

		ids, err := store.ChapterIDs(ctx, testCourseID)
		require.NoError(t, err)
		assert.Equal(t, []int{chapterA, chapter.ID}, ids)
	})
}
