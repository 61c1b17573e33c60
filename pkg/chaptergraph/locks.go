package chaptergraph

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// courseLocks hands out one write lock per course. Entries are dropped once no
// caller holds or waits on them.
type courseLocks struct {
	mu    sync.Mutex
	locks map[int]*courseLock
}

type courseLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newCourseLocks() *courseLocks {
	return &courseLocks{locks: map[int]*courseLock{}}
}

// acquire blocks until the course lock is held or ctx is done. The returned
// func releases the lock.
func (l *courseLocks) acquire(ctx context.Context, courseID int) (func(), error) {
	l.mu.Lock()
	cl, ok := l.locks[courseID]
	if !ok {
		cl = &courseLock{sem: semaphore.NewWeighted(1)}
		l.locks[courseID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	if err := cl.sem.Acquire(ctx, 1); err != nil {
		l.unref(courseID, cl)
		return nil, errors.WithStack(err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cl.sem.Release(1)
			l.unref(courseID, cl)
		})
	}, nil
}

func (l *courseLocks) unref(courseID int, cl *courseLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cl.refs--
	if cl.refs == 0 {
		delete(l.locks, courseID)
	}
}

// held returns the number of courses with an active or pending lock.
func (l *courseLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
