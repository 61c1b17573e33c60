package chaptergraph

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseLocks(t *testing.T) {
	t.Parallel()

	t.Run("serializes holders of the same course", func(t *testing.T) {
		t.Parallel()
		locks := newCourseLocks()

		var active, peak atomic.Int32
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := locks.acquire(context.Background(), testCourseID)
				require.NoError(t, err)
				defer release()

				n := active.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), peak.Load())
		assert.Equal(t, 0, locks.held())
	})

	t.Run("different courses do not block each other", func(t *testing.T) {
		t.Parallel()
		locks := newCourseLocks()

		release, err := locks.acquire(context.Background(), testCourseID)
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		releaseOther, err := locks.acquire(ctx, otherCourseID)
		require.NoError(t, err)
		releaseOther()
	})

	t.Run("release is idempotent", func(t *testing.T) {
		t.Parallel()
		locks := newCourseLocks()

		release, err := locks.acquire(context.Background(), testCourseID)
		require.NoError(t, err)
		release()
		release()
		assert.Equal(t, 0, locks.held())
	})

	t.Run("waiting gives up when the context is done", func(t *testing.T) {
		t.Parallel()
		locks := newCourseLocks()

		release, err := locks.acquire(context.Background(), testCourseID)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = locks.acquire(ctx, testCourseID)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, locks.held())

		release()
		assert.Equal(t, 0, locks.held())
	})
}
