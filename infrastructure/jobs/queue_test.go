package jobs

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosscheck-ai/crosscheck/infrastructure/cache"
)

func newTestQueue() (*Queue, *cache.Memory) {
	store := cache.NewMemory()
	return NewQueue(store, zerolog.Nop()), store
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StatePending.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCancelled.Terminal())
}

func TestQueueLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("create yields a pending job with a unique id", func(t *testing.T) {
		q, _ := newTestQueue()

		id1 := q.Create(ctx, "compare", 3)
		id2 := q.Create(ctx, "compare", 3)

		assert.NotEqual(t, id1, id2)
		job, ok := q.Status(ctx, id1)
		require.True(t, ok)
		assert.Equal(t, StatePending, job.State)
		assert.Equal(t, 3, job.TotalItems)
		assert.Zero(t, job.Percent)
	})

	t.Run("start moves pending to running exactly once", func(t *testing.T) {
		q, _ := newTestQueue()
		id := q.Create(ctx, "compare", 2)

		assert.True(t, q.Start(ctx, id))
		assert.False(t, q.Start(ctx, id))

		job, _ := q.Status(ctx, id)
		assert.Equal(t, StateRunning, job.State)
	})

	t.Run("progress floors percent and merges partials", func(t *testing.T) {
		q, _ := newTestQueue()
		id := q.Create(ctx, "compare", 3)
		q.Start(ctx, id)

		require.True(t, q.UpdateProgress(ctx, id, map[string]any{"gpt-4o": "done"}))

		job, _ := q.Status(ctx, id)
		assert.Equal(t, 33, job.Percent)
		assert.Equal(t, 1, job.CompletedItems)
		assert.Equal(t, "done", job.PartialResult["gpt-4o"])
	})

	t.Run("auto-completes when every item is in", func(t *testing.T) {
		q, _ := newTestQueue()
		id := q.Create(ctx, "compare", 2)
		q.Start(ctx, id)

		q.UpdateProgress(ctx, id, map[string]any{"a": 1})
		q.UpdateProgress(ctx, id, map[string]any{"b": 2})

		job, _ := q.Status(ctx, id)
		assert.Equal(t, StateCompleted, job.State)
		assert.Equal(t, 100, job.Percent)
		assert.Len(t, job.Result, 2)
	})

	t.Run("fail records the error and keeps partials", func(t *testing.T) {
		q, _ := newTestQueue()
		id := q.Create(ctx, "compare", 2)
		q.Start(ctx, id)
		q.UpdateProgress(ctx, id, map[string]any{"a": 1})

		require.True(t, q.Fail(ctx, id, "provider exploded"))

		job, _ := q.Status(ctx, id)
		assert.Equal(t, StateFailed, job.State)
		assert.Equal(t, "provider exploded", job.Error)
		assert.Contains(t, job.PartialResult, "a")
	})
}

func TestQueueCancellation(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel stops a running job", func(t *testing.T) {
		q, _ := newTestQueue()
		id := q.Create(ctx, "compare", 2)
		q.Start(ctx, id)

		assert.True(t, q.Cancel(ctx, id))

		job, _ := q.Status(ctx, id)
		assert.Equal(t, StateCancelled, job.State)
	})

	t.Run("cancelling a completed job changes nothing", func(t *testing.T) {
		q, _ := newTestQueue()
		id := q.Create(ctx, "compare", 1)
		q.Start(ctx, id)
		q.Complete(ctx, id, map[string]any{"answer": 42})

		assert.False(t, q.Cancel(ctx, id))

		job, _ := q.Status(ctx, id)
		assert.Equal(t, StateCompleted, job.State)
		assert.EqualValues(t, 42, job.Result["answer"])
	})

	t.Run("cancelled jobs reject progress", func(t *testing.T) {
		q, _ := newTestQueue()
		id := q.Create(ctx, "compare", 2)
		q.Start(ctx, id)
		q.Cancel(ctx, id)

		assert.False(t, q.UpdateProgress(ctx, id, nil))
		assert.False(t, q.Complete(ctx, id, nil))
		assert.False(t, q.Fail(ctx, id, "late"))
	})

	t.Run("unknown job cannot be cancelled", func(t *testing.T) {
		q, _ := newTestQueue()
		assert.False(t, q.Cancel(ctx, "no-such-job"))
	})
}

func TestQueuePersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("status falls back to the snapshot store", func(t *testing.T) {
		store := cache.NewMemory()
		first := NewQueue(store, zerolog.Nop())
		id := first.Create(ctx, "compare", 2)
		first.Start(ctx, id)
		first.UpdateProgress(ctx, id, map[string]any{"a": "done"})

		// A fresh queue over the same store simulates a restart.
		second := NewQueue(store, zerolog.Nop())

		job, ok := second.Status(ctx, id)
		require.True(t, ok)
		assert.Equal(t, StateRunning, job.State)
		assert.Equal(t, 1, job.CompletedItems)
		assert.Equal(t, "done", job.PartialResult["a"])
	})

	t.Run("unknown id is not found anywhere", func(t *testing.T) {
		q, _ := newTestQueue()
		_, ok := q.Status(ctx, "missing")
		assert.False(t, ok)
	})
}
