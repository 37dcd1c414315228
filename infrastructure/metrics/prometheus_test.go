package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosscheck-ai/crosscheck/internal/domain"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewPrometheusCollector(reg)

	collector.IncInFlight()
	collector.ObserveGeneration("gpt-4o", "extract", domain.StatusSuccess, 2*time.Second, 0.01)
	collector.ObserveGeneration("gpt-4o", "extract", domain.StatusTimeout, 30*time.Second, 0)
	collector.DecInFlight()

	t.Run("counts generations by model, task, and status", func(t *testing.T) {
		success := collector.generations.WithLabelValues("gpt-4o", "extract", "success")
		timeout := collector.generations.WithLabelValues("gpt-4o", "extract", "timeout")

		assert.Equal(t, 1.0, testutil.ToFloat64(success))
		assert.Equal(t, 1.0, testutil.ToFloat64(timeout))
	})

	t.Run("accumulates cost for paid generations only", func(t *testing.T) {
		cost := collector.costUSD.WithLabelValues("gpt-4o")

		assert.InDelta(t, 0.01, testutil.ToFloat64(cost), 1e-9)
	})

	t.Run("in-flight gauge returns to zero", func(t *testing.T) {
		assert.Zero(t, testutil.ToFloat64(collector.inFlight))
	})

	t.Run("registers all metric families once", func(t *testing.T) {
		families, err := reg.Gather()
		require.NoError(t, err)
		assert.Len(t, families, 4)
	})

	t.Run("a second collector on a fresh registry does not collide", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewPrometheusCollector(prometheus.NewRegistry())
		})
	})
}
