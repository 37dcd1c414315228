package metrics

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosscheck-ai/crosscheck/infrastructure/cache"
	"github.com/crosscheck-ai/crosscheck/internal/domain"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "metrics.jsonl")
	return NewTracker(cache.NewMemory(), logPath, zerolog.Nop())
}

func result(modelID string, status domain.GenerationStatus, elapsed, cost float64) domain.GenerationResult {
	return domain.GenerationResult{
		ModelID:        modelID,
		Status:         status,
		ElapsedSeconds: elapsed,
		TokensIn:       100,
		TokensOut:      200,
		CostUSD:        cost,
	}
}

func TestTrackerModelStats(t *testing.T) {
	ctx := context.Background()

	t.Run("empty window aggregates to zero", func(t *testing.T) {
		tracker := newTestTracker(t)

		agg := tracker.ModelStats(ctx, "gpt-4o", "extract")

		assert.Zero(t, agg.Count)
		assert.Zero(t, agg.SuccessRate)
		assert.Zero(t, agg.AvgElapsedS)
		assert.Zero(t, agg.TotalCost)
	})

	t.Run("aggregates mixed outcomes", func(t *testing.T) {
		tracker := newTestTracker(t)
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 2.0, 0.01), "extract")
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 4.0, 0.03), "extract")
		tracker.Track(ctx, result("gpt-4o", domain.StatusTimeout, 30.0, 0), "extract")

		agg := tracker.ModelStats(ctx, "gpt-4o", "extract")

		assert.Equal(t, 3, agg.Count)
		// Success rate is a percentage, not a fraction.
		assert.InDelta(t, 200.0/3.0, agg.SuccessRate, 1e-9)
		assert.InDelta(t, 12.0, agg.AvgElapsedS, 1e-9)
		assert.InDelta(t, 0.04, agg.TotalCost, 1e-9)
		assert.InDelta(t, 0.04/3.0, agg.AvgCost, 1e-9)
		assert.InDelta(t, 300.0, agg.AvgTokens, 1e-9)
	})

	t.Run("windows are isolated per model and task", func(t *testing.T) {
		tracker := newTestTracker(t)
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0.01), "extract")

		assert.Zero(t, tracker.ModelStats(ctx, "gpt-4o", "summarize").Count)
		assert.Zero(t, tracker.ModelStats(ctx, "claude-3-opus", "extract").Count)
	})

	t.Run("window is bounded", func(t *testing.T) {
		tracker := newTestTracker(t)
		for range windowSize + 20 {
			tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0), "extract")
		}

		agg := tracker.ModelStats(ctx, "gpt-4o", "extract")

		assert.Equal(t, windowSize, agg.Count)
	})
}

func TestTrackerRateModel(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects ratings outside the scale", func(t *testing.T) {
		tracker := newTestTracker(t)
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0), "extract")

		assert.False(t, tracker.RateModel(ctx, "gpt-4o", "extract", 0))
		assert.False(t, tracker.RateModel(ctx, "gpt-4o", "extract", 6))
		assert.Zero(t, tracker.ModelStats(ctx, "gpt-4o", "extract").RatedCount)
	})

	t.Run("rejects rating with no history", func(t *testing.T) {
		tracker := newTestTracker(t)
		assert.False(t, tracker.RateModel(ctx, "gpt-4o", "extract", 5))
	})

	t.Run("rates only the most recent record", func(t *testing.T) {
		tracker := newTestTracker(t)
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0), "extract")
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0), "extract")

		require.True(t, tracker.RateModel(ctx, "gpt-4o", "extract", 4))

		agg := tracker.ModelStats(ctx, "gpt-4o", "extract")
		assert.Equal(t, 1, agg.RatedCount)
		assert.InDelta(t, 4.0, agg.AvgRating, 1e-9)
	})

	t.Run("rated average ignores unrated records", func(t *testing.T) {
		tracker := newTestTracker(t)
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0), "extract")
		tracker.RateModel(ctx, "gpt-4o", "extract", 2)
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0), "extract")
		tracker.RateModel(ctx, "gpt-4o", "extract", 4)
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0), "extract")

		agg := tracker.ModelStats(ctx, "gpt-4o", "extract")

		assert.Equal(t, 2, agg.RatedCount)
		assert.InDelta(t, 3.0, agg.AvgRating, 1e-9)
	})
}

func TestTrackerTaskStats(t *testing.T) {
	ctx := context.Background()

	t.Run("ranks models by success rate then latency", func(t *testing.T) {
		tracker := newTestTracker(t)
		// flaky: one success, one timeout. fast and slow: all success.
		tracker.Track(ctx, result("flaky", domain.StatusSuccess, 1.0, 0), "extract")
		tracker.Track(ctx, result("flaky", domain.StatusTimeout, 30.0, 0), "extract")
		tracker.Track(ctx, result("slow", domain.StatusSuccess, 10.0, 0), "extract")
		tracker.Track(ctx, result("slow", domain.StatusSuccess, 10.0, 0), "extract")
		tracker.Track(ctx, result("fast", domain.StatusSuccess, 1.0, 0), "extract")
		tracker.Track(ctx, result("fast", domain.StatusSuccess, 1.0, 0), "extract")

		aggs := tracker.TaskStats("extract")

		require.Len(t, aggs, 3)
		assert.Equal(t, "fast", aggs[0].ModelID)
		assert.Equal(t, "slow", aggs[1].ModelID)
		assert.Equal(t, "flaky", aggs[2].ModelID)
	})

	t.Run("other tasks are excluded", func(t *testing.T) {
		tracker := newTestTracker(t)
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0), "extract")
		tracker.Track(ctx, result("claude-3-opus", domain.StatusSuccess, 1.0, 0), "summarize")

		aggs := tracker.TaskStats("extract")

		require.Len(t, aggs, 1)
		assert.Equal(t, "gpt-4o", aggs[0].ModelID)
	})

	t.Run("no durable log yields no stats", func(t *testing.T) {
		tracker := NewTracker(cache.NewMemory(), "", zerolog.Nop())
		tracker.Track(context.Background(), result("gpt-4o", domain.StatusSuccess, 1.0, 0), "extract")

		assert.Empty(t, tracker.TaskStats("extract"))
	})
}

func TestTrackerSessionCost(t *testing.T) {
	ctx := context.Background()

	t.Run("accumulates successful spend only", func(t *testing.T) {
		tracker := newTestTracker(t)
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0.02), "extract")
		tracker.Track(ctx, result("gpt-4o", domain.StatusFailed, 1.0, 0.99), "extract")
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0.03), "extract")

		assert.InDelta(t, 0.05, tracker.SessionCost(), 1e-9)
	})

	t.Run("reset zeroes the counter without touching windows", func(t *testing.T) {
		tracker := newTestTracker(t)
		tracker.Track(ctx, result("gpt-4o", domain.StatusSuccess, 1.0, 0.02), "extract")

		tracker.ResetSessionCost()

		assert.Zero(t, tracker.SessionCost())
		assert.Equal(t, 1, tracker.ModelStats(ctx, "gpt-4o", "extract").Count)
	})
}
