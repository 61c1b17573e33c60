package chaptergraph

import (
	"context"

	"github.com/learnmap/learnmap/pkg/database"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/learnmap/learnmap/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

type EngineOptions struct {
	// MaxRetries bounds how many times a mutation is re-run after a transient
	// store failure.
	MaxRetries int
}

// Engine owns every read and write of course chapter graphs. Mutations on the
// same course are serialized; reads run against the latest committed state.
type Engine struct {
	store      Store
	locks      *courseLocks
	maxRetries int
}

func NewEngine(store Store, opts EngineOptions) *Engine {
	return &Engine{
		store:      store,
		locks:      newCourseLocks(),
		maxRetries: max(opts.MaxRetries, 0),
	}
}

// BuildAdjacency loads a fresh snapshot of the course graph. The course is
// assumed to exist.
func (e *Engine) BuildAdjacency(ctx context.Context, courseID int) (*Graph, error) {
	var graph *Graph
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		graph, err = buildGraph(ctx, tx, courseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return graph, nil
}

// WouldCreateCycle reports whether adding edge to the course graph would make
// it cyclic. Nothing is persisted.
func (e *Engine) WouldCreateCycle(ctx context.Context, courseID int, edge Edge) (bool, error) {
	graph, err := e.BuildAdjacency(ctx, courseID)
	if err != nil {
		return false, err
	}
	return graph.WithEdge(edge).HasCycle(), nil
}

// PredecessorsOf returns the direct predecessors of a chapter. An empty list
// means the chapter is an initial chapter.
func (e *Engine) PredecessorsOf(ctx context.Context, courseID, chapterID int) ([]int, error) {
	return e.store.PredecessorIDs(ctx, courseID, chapterID)
}

// PredecessorsFor returns the direct predecessors of every given chapter.
func (e *Engine) PredecessorsFor(ctx context.Context, courseID int, chapterIDs []int) (map[int][]int, error) {
	return e.store.PredecessorsFor(ctx, courseID, chapterIDs)
}

type SetEdgeOptions struct {
	CourseID int
	// FromChapterID is the chapter that must come first.
	FromChapterID int
	// ToChapterID is the chapter that depends on FromChapterID.
	ToChapterID int
	Delete      bool
}

func (opts SetEdgeOptions) edge() Edge {
	return Edge{ChapterID: opts.ToChapterID, PredecessorID: opts.FromChapterID}
}

// SetEdge adds or removes the edge from FromChapterID to ToChapterID. The
// existence check, the cycle check and the write run under the course lock in
// a single store transaction. Transient store failures re-run the whole
// mutation.
func (e *Engine) SetEdge(ctx context.Context, opts SetEdgeOptions) error {
	edge := opts.edge()
	log := logger.FromContext(ctx).Data(logger.Data{
		"course_id":      opts.CourseID,
		"chapter_id":     edge.ChapterID,
		"predecessor_id": edge.PredecessorID,
		"delete":         opts.Delete,
	})

	err := e.mutate(ctx, log, opts.CourseID, func(ctx context.Context, tx Store) error {
		if opts.Delete {
			return removeEdge(ctx, tx, opts.CourseID, edge)
		}
		return addEdge(ctx, tx, opts.CourseID, edge)
	})
	if err != nil {
		if errcodes.HasCode(err, errcodes.CodeCyclicStructure) {
			log.Info("rejected chapter edge that would create a cycle")
		}
		return err
	}

	if opts.Delete {
		log.Info("removed chapter edge")
	} else {
		log.Info("added chapter edge")
	}
	return nil
}

// CreateChapter inserts chapter and links each of predecessorIDs to it in one
// store transaction. If any predecessor is rejected nothing is written.
func (e *Engine) CreateChapter(ctx context.Context, chapter *models.Chapter, predecessorIDs []int) error {
	log := logger.FromContext(ctx).Data(logger.Data{
		"course_id":       chapter.CourseID,
		"predecessor_ids": predecessorIDs,
	})

	requestedID := chapter.ID
	err := e.mutate(ctx, log, chapter.CourseID, func(ctx context.Context, tx Store) error {
		chapter.ID = requestedID
		if err := tx.InsertChapter(ctx, chapter); err != nil {
			return err
		}
		for _, predecessorID := range predecessorIDs {
			edge := Edge{ChapterID: chapter.ID, PredecessorID: predecessorID}
			if err := addEdge(ctx, tx, chapter.CourseID, edge); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		chapter.ID = requestedID
		return err
	}

	log.Info("created chapter", logger.Data{"chapter_id": chapter.ID})
	return nil
}

// mutate runs fn in a store transaction while holding the course lock,
// re-running it after transient store failures.
func (e *Engine) mutate(ctx context.Context, log logger.Logger, courseID int, fn func(ctx context.Context, tx Store) error) error {
	unlock, err := e.locks.acquire(ctx, courseID)
	if err != nil {
		return err
	}
	defer unlock()

	attempt := 0
	var lastErr error
	return database.RetryWithBackoff(ctx, e.maxRetries, func() error {
		if attempt > 0 {
			log.Warn("retrying chapter graph mutation", logger.Data{"attempt": attempt, "error": lastErr.Error()})
		}
		attempt++

		lastErr = e.store.RunInTx(ctx, fn)
		return lastErr
	})
}

func addEdge(ctx context.Context, tx Store, courseID int, edge Edge) error {
	if err := checkEndpoints(ctx, tx, courseID, edge); err != nil {
		return err
	}
	if edge.IsSelfLoop() {
		return errcodes.CyclicStructure(edge.PredecessorID, edge.ChapterID)
	}

	exists, err := tx.EdgeExists(ctx, courseID, edge)
	if err != nil {
		return err
	}
	if exists {
		return errcodes.Conflict("Edge already exists.")
	}

	graph, err := buildGraph(ctx, tx, courseID)
	if err != nil {
		return err
	}
	if graph.WithEdge(edge).HasCycle() {
		return errcodes.CyclicStructure(edge.PredecessorID, edge.ChapterID)
	}

	return tx.InsertEdge(ctx, courseID, edge)
}

func removeEdge(ctx context.Context, tx Store, courseID int, edge Edge) error {
	if err := checkEndpoints(ctx, tx, courseID, edge); err != nil {
		return err
	}
	deleted, err := tx.DeleteEdge(ctx, courseID, edge)
	if err != nil {
		return err
	}
	if !deleted {
		return errcodes.NotFound("Edge")
	}
	return nil
}

// checkEndpoints makes sure both chapters of the edge exist in the course.
func checkEndpoints(ctx context.Context, tx Store, courseID int, edge Edge) error {
	for _, id := range []int{edge.ChapterID, edge.PredecessorID} {
		ok, err := tx.ChapterInCourse(ctx, courseID, id)
		if err != nil {
			return err
		}
		if !ok {
			return errcodes.NotFound("Chapter")
		}
	}
	return nil
}

func buildGraph(ctx context.Context, s Store, courseID int) (*Graph, error) {
	chapterIDs, err := s.ChapterIDs(ctx, courseID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	edges, err := s.Edges(ctx, courseID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewGraph(chapterIDs, edges), nil
}
